package storage

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	payload := []byte("hello")
	require.NoError(t, s.Upload(ctx, "files/a", bytes.NewReader(payload), int64(len(payload)), "text/plain"))
	assert.Equal(t, 1, s.Len())

	obj, err := s.Download(ctx, "files/a")
	require.NoError(t, err)
	defer obj.Body.Close()

	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, int64(5), obj.Size)
	assert.Equal(t, "text/plain", obj.ContentType)

	require.NoError(t, s.Delete(ctx, "files/a"))
	_, err = s.Download(ctx, "files/a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageSizeMismatch(t *testing.T) {
	s := NewMemoryStorage()
	err := s.Upload(context.Background(), "k", bytes.NewReader([]byte("abc")), 10, "")
	assert.Error(t, err)
	assert.Zero(t, s.Len())
}

func TestMemoryStorageDownloadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()
	require.NoError(t, s.Upload(ctx, "k", bytes.NewReader([]byte("abc")), -1, ""))

	obj, err := s.Download(ctx, "k")
	require.NoError(t, err)
	b, _ := io.ReadAll(obj.Body)
	b[0] = 'z'

	obj, err = s.Download(ctx, "k")
	require.NoError(t, err)
	b, _ = io.ReadAll(obj.Body)
	assert.Equal(t, "abc", string(b))
}
