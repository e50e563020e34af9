package storage

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStorage(t *testing.T) *LocalStorage {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewLocalStorage(LocalConfig{
		BasePath: t.TempDir(),
		BaseURL:  "http://localhost:8790/files/",
	}, logger)
	require.NoError(t, err)
	return s
}

func TestLocalStoragePutAndExists(t *testing.T) {
	s := newLocalStorage(t)
	ctx := context.Background()

	key := EvidenceKey("earthworks_subgrade_1_abc", "certificate.jpg")
	err := s.Put(ctx, key, bytes.NewReader([]byte("jpeg bytes")), PutOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := os.ReadFile(filepath.Join(s.BasePath(), filepath.FromSlash(key)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestLocalStorageURL(t *testing.T) {
	s := newLocalStorage(t)
	ctx := context.Background()

	key := "forms/x/evidence/a.jpg"
	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{}))

	url, err := s.URL(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8790/files/forms/x/evidence/a.jpg", url)
}

func TestLocalStorageDeleteIsIdempotent(t *testing.T) {
	s := newLocalStorage(t)
	ctx := context.Background()

	key := "forms/x/evidence/a.jpg"
	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{}))
	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s := newLocalStorage(t)
	ctx := context.Background()

	err := s.Put(ctx, "../outside.txt", bytes.NewReader([]byte("x")), PutOptions{})
	assert.ErrorIs(t, err, ErrInvalidKey)

	err = s.Put(ctx, "/absolute.txt", bytes.NewReader([]byte("x")), PutOptions{})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestLocalStorageMaxSize(t *testing.T) {
	s := newLocalStorage(t)
	ctx := context.Background()

	err := s.Put(ctx, "forms/x/evidence/big.bin", bytes.NewReader(make([]byte, 100)), PutOptions{MaxSize: 10})
	assert.True(t, IsTooLarge(err))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/png", ContentTypeFor("image/png", "a.jpg"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("", "a.jpg"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("", "a.unknownext"))
}
