package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// LocalStorage implements ObjectStorage on a filesystem.
type LocalStorage struct {
	fs      afero.Fs
	baseURL string
}

// NewLocalStorage stores objects below root on disk. URLs are built from
// baseURL, which is expected to be served by the API.
func NewLocalStorage(root, baseURL string) (*LocalStorage, error) {
	osFs := afero.NewOsFs()
	if err := osFs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return NewFsStorage(afero.NewBasePathFs(osFs, root), baseURL), nil
}

// NewMemoryStorage keeps objects in memory. Used by tests and dry runs.
func NewMemoryStorage(baseURL string) *LocalStorage {
	return NewFsStorage(afero.NewMemMapFs(), baseURL)
}

// NewFsStorage wraps an existing afero filesystem.
func NewFsStorage(fs afero.Fs, baseURL string) *LocalStorage {
	return &LocalStorage{fs: fs, baseURL: strings.TrimSuffix(baseURL, "/")}
}

func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+key), "/")
}

// Upload writes reader to key, creating parent directories.
func (s *LocalStorage) Upload(_ context.Context, key string, reader io.Reader, _ int64, _ string) error {
	key = cleanKey(key)
	if dir := path.Dir(key); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := afero.WriteReader(s.fs, key, reader); err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Download opens key for reading.
func (s *LocalStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := s.fs.Open(cleanKey(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download object: %w", err)
	}
	return f, nil
}

// GetURL returns baseURL/key.
func (s *LocalStorage) GetURL(key string) string {
	return s.baseURL + "/" + cleanKey(key)
}

// Delete removes key. Missing keys are ignored.
func (s *LocalStorage) Delete(_ context.Context, key string) error {
	if err := s.fs.Remove(cleanKey(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists reports whether key is stored.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	ok, err := afero.Exists(s.fs, cleanKey(key))
	if err != nil {
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return ok, nil
}
