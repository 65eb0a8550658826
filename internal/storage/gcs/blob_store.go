// Package gcs mirrors run artifacts and result files into a Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	blob "github.com/JakeFAU/directory-crawler/internal/storage"
)

// Config names the destination bucket.
type Config struct {
	Bucket string
}

// BlobStore uploads run artifacts as single-request objects.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{client: client, bucket: bucket}, nil
}

// PutObject uploads r under objectPath and returns its gs:// URI.
// A blank contentType is derived from the object name.
func (s *BlobStore) PutObject(ctx context.Context, objectPath string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(objectPath) == "" {
		return "", fmt.Errorf("object path is required")
	}
	w := s.newWriter(ctx, objectPath, contentType)
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("upload %s: %w (close writer: %v)", objectPath, err, closeErr)
		}
		return "", fmt.Errorf("upload %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", objectPath, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, objectPath), nil
}

func (s *BlobStore) newWriter(ctx context.Context, objectPath, contentType string) *storage.Writer {
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	if contentType == "" {
		contentType = blob.ContentTypeFor(objectPath)
	}
	w.ContentType = contentType
	// single-request upload
	w.ChunkSize = 0
	return w
}
