package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/timmy/stockmeta/internal/config"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage("/api/v1/blobs/")

	if err := s.Upload(ctx, "uploads/a/photo.jpg", strings.NewReader("data"), 4, "image/jpeg"); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	ok, err := s.Exists(ctx, "uploads/a/photo.jpg")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}

	rc, err := s.Download(ctx, "uploads/a/photo.jpg")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "data" {
		t.Errorf("content = %q", data)
	}

	if got := s.GetURL("uploads/a/photo.jpg"); got != "/api/v1/blobs/uploads/a/photo.jpg" {
		t.Errorf("GetURL = %q", got)
	}

	if err := s.Delete(ctx, "uploads/a/photo.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "uploads/a/photo.jpg"); err != nil {
		t.Errorf("deleting a missing key should succeed: %v", err)
	}
	if _, err := s.Download(ctx, "uploads/a/photo.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCleanKeyStaysInside(t *testing.T) {
	if got := cleanKey("../../etc/passwd"); got != "etc/passwd" {
		t.Errorf("cleanKey = %q", got)
	}
}

func TestDetectStorageType(t *testing.T) {
	tests := map[string]StorageType{
		"https://abc.r2.cloudflarestorage.com": StorageTypeR2,
		"s3.eu-west-1.amazonaws.com":           StorageTypeS3,
		"localhost:9000":                       StorageTypeS3Compatible,
	}
	for endpoint, want := range tests {
		if got := detectStorageType(endpoint); got != want {
			t.Errorf("detectStorageType(%q) = %q, want %q", endpoint, got, want)
		}
	}
}

func TestEndpointURL(t *testing.T) {
	if got := endpointURL("https://minio.local:9000/path", false); got != "http://minio.local:9000" {
		t.Errorf("endpointURL = %q", got)
	}
}

func TestNewStorageMemory(t *testing.T) {
	s, err := NewStorage(context.Background(), &config.StorageConfig{Type: "MEMORY"})
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if _, ok := s.(*LocalStorage); !ok {
		t.Fatalf("got %T, want *LocalStorage", s)
	}
	if got := s.GetURL("a/b.jpg"); got != LocalBlobPath+"/a/b.jpg" {
		t.Errorf("GetURL = %q", got)
	}
}
