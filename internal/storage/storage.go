package storage

import (
	"context"
	"errors"
	"path"
	"strings"
)

// ErrNotFound is returned by Get when the object does not exist
var ErrNotFound = errors.New("storage: object not found")

// Storage is the interface for object storage (memory, local files, OSS)
type Storage interface {
	// Put stores data with the given key
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves data by key, or ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes data by key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if key exists
	Exists(ctx context.Context, key string) (bool, error)

	// List lists all keys with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Name identifies the backend, e.g. "memory:blog" or "oss:my-bucket"
	Name() string
}

// CleanKey normalizes an object key: forward slashes, no leading slash,
// no "." or ".." segments.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, "\\", "/")
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", errors.New("storage: invalid key " + key)
	}
	return cleaned, nil
}
