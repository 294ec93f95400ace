package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storage_go "github.com/supabase-community/storage-go"

	"avatarstudio/internal/domain"
)

type fakeBucket struct {
	uploads   map[string][]byte
	uploadCT  string
	listed    []storage_go.FileObject
	listCalls []storage_go.FileSearchOptions
	removed   [][]string
	removeErr error
}

func (f *fakeBucket) UploadFile(bucketID string, relativePath string, data io.Reader, opts ...storage_go.FileOptions) (storage_go.FileUploadResponse, error) {
	raw, _ := io.ReadAll(data)
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[bucketID+"/"+relativePath] = raw
	if len(opts) > 0 && opts[0].ContentType != nil {
		f.uploadCT = *opts[0].ContentType
	}
	return storage_go.FileUploadResponse{}, nil
}

func (f *fakeBucket) ListFiles(bucketID string, queryPath string, options storage_go.FileSearchOptions) ([]storage_go.FileObject, error) {
	f.listCalls = append(f.listCalls, options)
	end := options.Offset + options.Limit
	if options.Offset >= len(f.listed) {
		return nil, nil
	}
	if end > len(f.listed) {
		end = len(f.listed)
	}
	return f.listed[options.Offset:end], nil
}

func (f *fakeBucket) RemoveFile(bucketID string, paths []string) ([]storage_go.FileUploadResponse, error) {
	f.removed = append(f.removed, paths)
	return nil, f.removeErr
}

func (f *fakeBucket) DownloadFile(bucketID string, filePath string, _ ...storage_go.UrlOptions) ([]byte, error) {
	if raw, ok := f.uploads[bucketID+"/"+filePath]; ok {
		return raw, nil
	}
	return nil, errors.New("object not found")
}

func TestSupabaseStoreUploadReturnsPublicURL(t *testing.T) {
	api := &fakeBucket{}
	store := newSupabaseStore(api, "https://proj.supabase.co/", "avatars")

	url, err := store.Upload(context.Background(), "u1/c1/t1.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://proj.supabase.co/storage/v1/object/public/avatars/u1/c1/t1.png", url)
	assert.Equal(t, "image/png", api.uploadCT)
	assert.Equal(t, []byte("png"), api.uploads["avatars/u1/c1/t1.png"])

	data, err := store.Download(context.Background(), "u1/c1/t1.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = store.Download(context.Background(), "u1/c1/missing.png")
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestSupabaseStoreListPagesAndSkipsPlaceholders(t *testing.T) {
	api := &fakeBucket{}
	for i := 0; i < listPageSize+5; i++ {
		api.listed = append(api.listed, storage_go.FileObject{Name: fmt.Sprintf("t%03d.png", i)})
	}
	api.listed = append(api.listed, storage_go.FileObject{Name: emptyFolderMarker})
	store := newSupabaseStore(api, "https://proj.supabase.co", "avatars")

	names, err := store.List(context.Background(), "u1/c1")
	require.NoError(t, err)
	assert.Len(t, names, listPageSize+5)
	assert.Len(t, api.listCalls, 2)
	assert.Equal(t, listPageSize, api.listCalls[1].Offset)
}

func TestSupabaseStoreRemove(t *testing.T) {
	api := &fakeBucket{}
	store := newSupabaseStore(api, "https://proj.supabase.co", "avatars")

	require.NoError(t, store.Remove(context.Background(), nil))
	assert.Empty(t, api.removed)

	require.NoError(t, store.Remove(context.Background(), []string{"a", "b"}))
	assert.Equal(t, [][]string{{"a", "b"}}, api.removed)

	api.removeErr = errors.New("boom")
	assert.ErrorIs(t, store.Remove(context.Background(), []string{"c"}), domain.ErrStorage)
}

func TestSupabaseStoreObjectPath(t *testing.T) {
	store := newSupabaseStore(&fakeBucket{}, "https://proj.supabase.co", "avatars")
	tests := []struct {
		url  string
		path string
		ok   bool
	}{
		{url: "https://proj.supabase.co/storage/v1/object/public/avatars/u1/c1/t1.png", path: "u1/c1/t1.png", ok: true},
		{url: "https://cdn.example.com/storage/v1/object/public/avatars/u1/refs/my%20face.png", path: "u1/refs/my face.png", ok: true},
		{url: "https://proj.supabase.co/storage/v1/object/public/other/u1/c1/t1.png"},
		{url: "https://images.example.com/u1/c1/t1.png"},
		{url: "https://proj.supabase.co/storage/v1/object/public/avatars/"},
	}
	for _, tt := range tests {
		path, ok := store.ObjectPath(tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.path, path, tt.url)
	}
}
