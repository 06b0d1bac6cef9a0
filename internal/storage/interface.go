package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Download when the key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStorage holds uploaded asset files and exported archives.
type ObjectStorage interface {
	// Upload stores reader under key
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download opens the object stored under key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL clients use to fetch the object
	GetURL(key string) string

	// Delete removes the object; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is stored
	Exists(ctx context.Context, key string) (bool, error)
}
