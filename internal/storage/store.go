// Package storage holds the object storage backends that persist generated
// images and user reference uploads.
package storage

import (
	"context"
	"mime"
	"path"
	"strings"
)

// ObjectStore is the bucket surface the pipeline and lifecycle manager use.
// Paths are bucket-relative with forward slashes.
type ObjectStore interface {
	// Upload writes data at path, replacing any existing object, and returns
	// the public URL.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// List returns the object names directly under prefix, relative to it,
	// exactly as the backend reports them.
	List(ctx context.Context, prefix string) ([]string, error)
	// Remove deletes paths. Missing objects are not an error.
	Remove(ctx context.Context, paths []string) error
	Download(ctx context.Context, path string) ([]byte, error)
	PublicURL(path string) string
	// ObjectPath maps a public URL produced by this store back to its path.
	// It reports false for URLs that point anywhere else.
	ObjectPath(publicURL string) (string, bool)
}

// ObjectKey builds the deterministic, collection-scoped path of a task's
// output: <user>/<collection>/<task><ext>.
func ObjectKey(userID, collectionID, taskID, contentType string) string {
	return path.Join(userID, collectionID, taskID+ExtensionForMIME(contentType))
}

// CollectionPrefix is the folder holding every output of a collection.
func CollectionPrefix(userID, collectionID string) string {
	return path.Join(userID, collectionID)
}

// ExtensionForMIME returns the file extension for an image content type,
// defaulting to .png.
func ExtensionForMIME(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mt {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
