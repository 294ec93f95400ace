package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, "http://localhost:8080/static/")
	require.NoError(t, err)
	ctx := context.Background()

	key := ObjectKey("user-1", "col-1", "task-1", "image/jpeg")
	assert.Equal(t, "user-1/col-1/task-1.jpg", key)

	url, err := store.Upload(ctx, key, []byte("jpeg-bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/static/user-1/col-1/task-1.jpg", url)

	data, err := os.ReadFile(filepath.Join(dir, "user-1", "col-1", "task-1.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	got, err := store.Download(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, CollectionPrefix("user-1", "col-1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"task-1.jpg"}, names)

	path, ok := store.ObjectPath(url)
	require.True(t, ok)
	assert.Equal(t, key, path)

	require.NoError(t, store.Remove(ctx, []string{key, "user-1/col-1/missing.png"}))
	_, err = os.Stat(filepath.Join(dir, "user-1", "col-1", "task-1.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreListMissingPrefix(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	names, err := store.List(context.Background(), "nobody/nothing")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFileStoreRejectsTraversal(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	_, err = store.Upload(context.Background(), "../escape.png", []byte("x"), "image/png")
	assert.Error(t, err)
}

func TestFileStoreObjectPathIgnoresForeignURLs(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/static")
	require.NoError(t, err)
	_, ok := store.ObjectPath("https://cdn.example.com/static/a.png")
	assert.False(t, ok)

	path, ok := store.ObjectPath("http://localhost:8080/static/u/c/my%20ref.png?v=2")
	require.True(t, ok)
	assert.Equal(t, "u/c/my ref.png", path)
}

func TestExtensionForMIME(t *testing.T) {
	cases := []struct{ in, want string }{
		{"image/png", ".png"},
		{"image/jpeg", ".jpg"},
		{"image/webp; charset=binary", ".webp"},
		{"application/octet-stream", ".png"},
		{"", ".png"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ExtensionForMIME(c.in), c.in)
	}
}
