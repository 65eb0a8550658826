package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/directory-crawler/internal/storage"
	"github.com/JakeFAU/directory-crawler/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestMirrorWritesToEveryStore(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	secondary := memory.NewBlobStore()
	mirror, err := storage.NewMirror(primary, zap.NewNop(), secondary, nil)
	require.NoError(t, err)

	uri, err := mirror.PutObject(context.Background(), "runs/1/page.html", "text/html", strings.NewReader("<html/>"))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/1/page.html", uri)

	for _, store := range []*memory.BlobStore{primary, secondary} {
		data, ok := store.Get("runs/1/page.html")
		require.True(t, ok)
		require.Equal(t, "<html/>", string(data))
	}
}

func TestMirrorSecondaryFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	primary := memory.NewBlobStore()
	mirror, err := storage.NewMirror(primary, nil, failingStore{})
	require.NoError(t, err)

	_, err = mirror.PutObject(context.Background(), "a.png", "image/png", strings.NewReader("png"))
	require.NoError(t, err)
}

func TestMirrorPrimaryFailureIsReturned(t *testing.T) {
	t.Parallel()

	mirror, err := storage.NewMirror(failingStore{}, nil, memory.NewBlobStore())
	require.NoError(t, err)
	_, err = mirror.PutObject(context.Background(), "a.png", "image/png", strings.NewReader("png"))
	require.Error(t, err)

	_, err = storage.NewMirror(nil, nil)
	require.Error(t, err)
}

func TestPrefixed(t *testing.T) {
	t.Parallel()

	inner := memory.NewBlobStore()
	store := storage.Prefixed{Store: inner, Prefix: "runs/abc/"}
	uri, err := store.PutObject(context.Background(), "/debug_page_source.html", "text/html", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, "memory://runs/abc/debug_page_source.html", uri)
}

func TestJoinPath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "runs/id/out.csv", storage.JoinPath("runs/", "", "/id", "out.csv"))
	require.Equal(t, "out.csv", storage.JoinPath("", "out.csv"))
}

func TestContentTypeFor(t *testing.T) {
	t.Parallel()

	require.Equal(t, "image/png", storage.ContentTypeFor("after_search_submit.png"))
	require.Equal(t, "text/html; charset=utf-8", storage.ContentTypeFor("debug_page_source.HTML"))
	require.Equal(t, "text/csv; charset=utf-8", storage.ContentTypeFor("company_details.csv"))
	require.Contains(t, storage.ContentTypeFor("out.xlsx"), "spreadsheetml")
	require.Equal(t, "application/octet-stream", storage.ContentTypeFor("blob"))
}
