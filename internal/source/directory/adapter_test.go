package directory

import (
	"context"
	"testing"

	"github.com/spf13/afero"
)

func newFs(t *testing.T, names ...string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range names {
		if err := afero.WriteFile(fs, "/in/"+name, []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return fs
}

func TestFetchBatchListsSupportedFilesSorted(t *testing.T) {
	fs := newFs(t, "b.eps", "a.jpg", "notes.txt", "c.PNG", "b.jpg")
	if err := fs.MkdirAll("/in/sub.jpg", 0o755); err != nil {
		t.Fatal(err)
	}
	a := NewFsAdapter(fs, "/in")

	items, next, err := a.FetchBatch(context.Background(), "", 2)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if next != "2" {
		t.Fatalf("next cursor = %q, want 2", next)
	}
	if len(items) != 2 || items[0].Name != "a.jpg" || items[1].Name != "b.eps" {
		t.Fatalf("first batch = %+v", items)
	}

	items, next, err = a.FetchBatch(context.Background(), next, 2)
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if next != "" {
		t.Fatalf("next cursor = %q, want empty", next)
	}
	if len(items) != 2 || items[0].Name != "b.jpg" || items[1].Name != "c.PNG" {
		t.Fatalf("second batch = %+v", items)
	}
}

func TestReadAllAndReadFile(t *testing.T) {
	fs := newFs(t, "x.jpg", "x.ai", "y.webp")
	a := NewFsAdapter(fs, "/in")

	items, err := ReadAll(context.Background(), a, 1)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	data, err := a.ReadFile(context.Background(), items[0])
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != items[0].Name {
		t.Errorf("content = %q, want %q", data, items[0].Name)
	}
}

func TestFetchBatchRejectsBadCursor(t *testing.T) {
	a := NewFsAdapter(newFs(t, "a.jpg"), "/in")
	if _, _, err := a.FetchBatch(context.Background(), "x", 1); err == nil {
		t.Fatal("expected error for invalid cursor")
	}
}

func TestFetchBatchMissingDirectory(t *testing.T) {
	a := NewFsAdapter(afero.NewMemMapFs(), "/missing")
	if _, _, err := a.FetchBatch(context.Background(), "", 10); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
