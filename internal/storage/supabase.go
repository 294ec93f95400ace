package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	storage_go "github.com/supabase-community/storage-go"
	"github.com/supabase-community/supabase-go"

	"avatarstudio/internal/domain"
)

const (
	listPageSize      = 100
	emptyFolderMarker = ".emptyFolderPlaceholder"
	publicObjectRoute = "/storage/v1/object/public/"
)

// bucketAPI is the slice of the Supabase storage client used here.
type bucketAPI interface {
	UploadFile(bucketID string, relativePath string, data io.Reader, fileOptions ...storage_go.FileOptions) (storage_go.FileUploadResponse, error)
	ListFiles(bucketID string, queryPath string, options storage_go.FileSearchOptions) ([]storage_go.FileObject, error)
	RemoveFile(bucketID string, paths []string) ([]storage_go.FileUploadResponse, error)
	DownloadFile(bucketID string, filePath string, urlOptions ...storage_go.UrlOptions) ([]byte, error)
}

// SupabaseStore keeps objects in a public Supabase Storage bucket.
type SupabaseStore struct {
	api     bucketAPI
	bucket  string
	baseURL string
}

// NewSupabaseStore connects to the Supabase project at projectURL using the
// service role key.
func NewSupabaseStore(projectURL, serviceKey, bucket string) (*SupabaseStore, error) {
	projectURL = strings.TrimRight(strings.TrimSpace(projectURL), "/")
	if projectURL == "" || serviceKey == "" {
		return nil, errors.New("storage: supabase url and service key are required")
	}
	if bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}
	client, err := supabase.NewClient(projectURL, serviceKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: supabase client: %w", err)
	}
	return newSupabaseStore(client.Storage, projectURL, bucket), nil
}

func newSupabaseStore(api bucketAPI, projectURL, bucket string) *SupabaseStore {
	return &SupabaseStore{api: api, bucket: bucket, baseURL: strings.TrimRight(projectURL, "/")}
}

func (s *SupabaseStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	upsert := true
	cacheControl := "3600"
	_, err := s.api.UploadFile(s.bucket, path, bytes.NewReader(data), storage_go.FileOptions{
		ContentType:  &contentType,
		Upsert:       &upsert,
		CacheControl: &cacheControl,
	})
	if err != nil {
		return "", fmt.Errorf("%w: upload %s: %v", domain.ErrStorage, path, err)
	}
	return s.PublicURL(path), nil
}

func (s *SupabaseStore) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for offset := 0; ; offset += listPageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.api.ListFiles(s.bucket, prefix, storage_go.FileSearchOptions{
			Limit:         listPageSize,
			Offset:        offset,
			SortByOptions: storage_go.SortBy{Column: "name", Order: "asc"},
		})
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", domain.ErrStorage, prefix, err)
		}
		for _, obj := range page {
			if obj.Name == "" || obj.Name == emptyFolderMarker {
				continue
			}
			names = append(names, obj.Name)
		}
		if len(page) < listPageSize {
			return names, nil
		}
	}
}

func (s *SupabaseStore) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.api.RemoveFile(s.bucket, paths); err != nil {
		return fmt.Errorf("%w: remove %d objects: %v", domain.ErrStorage, len(paths), err)
	}
	return nil
}

func (s *SupabaseStore) Download(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.api.DownloadFile(s.bucket, path)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", domain.ErrStorage, path, err)
	}
	return data, nil
}

func (s *SupabaseStore) PublicURL(path string) string {
	parts := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return s.baseURL + publicObjectRoute + url.PathEscape(s.bucket) + "/" + strings.Join(parts, "/")
}

// ObjectPath recognizes public URLs of this bucket by their
// /storage/v1/object/public/<bucket>/ segment, regardless of host, so URLs
// minted behind a CDN or custom domain still resolve.
func (s *SupabaseStore) ObjectPath(publicURL string) (string, bool) {
	u, err := url.Parse(publicURL)
	if err != nil {
		return "", false
	}
	marker := publicObjectRoute + s.bucket + "/"
	escaped := u.EscapedPath()
	idx := strings.Index(escaped, marker)
	if idx < 0 {
		return "", false
	}
	rest := escaped[idx+len(marker):]
	if rest == "" {
		return "", false
	}
	decoded, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return decoded, true
}

var _ ObjectStore = (*SupabaseStore)(nil)
