package storage

import (
	"context"
	"strings"

	"github.com/timmy/stockmeta/internal/config"
)

// LocalBlobPath is the API route local storage URLs point at.
const LocalBlobPath = "/api/v1/blobs"

// NewStorage creates the ObjectStorage selected by cfg.Type. Remote buckets
// are created when missing.
// Parameters:
//   - ctx: context for bucket checks.
//   - cfg: storage configuration.
//
// Returns:
//   - ObjectStorage: initialized storage.
//   - error: non-nil if the backend cannot be prepared.
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (ObjectStorage, error) {
	storeType := StorageType(strings.ToLower(cfg.Type))
	switch storeType {
	case "", StorageTypeLocal:
		return NewLocalStorage(cfg.LocalRoot, LocalBlobPath)
	case StorageTypeMemory:
		return NewMemoryStorage(LocalBlobPath), nil
	}
	if storeType == StorageTypeS3Compatible && cfg.Endpoint != "" {
		storeType = detectStorageType(cfg.Endpoint)
	}

	s, err := NewS3Storage(ctx, &S3Config{
		Type:      storeType,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// detectStorageType guesses the provider from the endpoint host.
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)
	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
