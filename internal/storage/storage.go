// Package storage defines where run artifacts land.
// Diagnostics and result files are written through a BlobStore so a run can keep
// them on the local disk, mirror them to a bucket, or hold them in memory for tests.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"go.uber.org/zap"
)

// BlobStore persists a single object and returns a URI for it.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Mirror writes every object to a primary store and then, best-effort, to each secondary.
// Only primary failures are returned; secondary failures are logged.
type Mirror struct {
	primary     BlobStore
	secondaries []BlobStore
	logger      *zap.Logger
}

// NewMirror builds a Mirror. Nil secondaries are ignored.
func NewMirror(primary BlobStore, logger *zap.Logger, secondaries ...BlobStore) (*Mirror, error) {
	if primary == nil {
		return nil, errors.New("primary store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mirror{primary: primary, logger: logger}
	for _, s := range secondaries {
		if s != nil {
			m.secondaries = append(m.secondaries, s)
		}
	}
	return m, nil
}

// PutObject buffers r once so each store receives the full payload.
func (m *Mirror) PutObject(ctx context.Context, objectPath string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read object %s: %w", objectPath, err)
	}
	uri, err := m.primary.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	for _, s := range m.secondaries {
		secondaryURI, err := s.PutObject(ctx, objectPath, contentType, bytes.NewReader(data))
		if err != nil {
			m.logger.Warn("mirror write failed", zap.String("path", objectPath), zap.Error(err))
			continue
		}
		m.logger.Debug("mirrored object", zap.String("path", objectPath), zap.String("uri", secondaryURI))
	}
	return uri, nil
}

// Prefixed scopes every object path of a store under prefix.
type Prefixed struct {
	Store  BlobStore
	Prefix string
}

// PutObject implements BlobStore.
func (p Prefixed) PutObject(ctx context.Context, objectPath string, contentType string, r io.Reader) (string, error) {
	return p.Store.PutObject(ctx, JoinPath(p.Prefix, objectPath), contentType, r)
}

// JoinPath joins object path segments with "/" and drops empty segments.
func JoinPath(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

// ContentTypeFor guesses a content type from an object name.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".png":
		return "image/png"
	case ".csv":
		return "text/csv; charset=utf-8"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}
