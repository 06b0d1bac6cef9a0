package directory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/spf13/afero"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/source"
)

// Adapter implements source.Source for the top level of a directory. Only
// raster images and vector companions are listed.
type Adapter struct {
	fs       afero.Fs
	basePath string
	items    []source.Item
	loaded   bool
}

// NewAdapter creates an adapter reading basePath from the OS filesystem.
func NewAdapter(basePath string) *Adapter {
	return NewFsAdapter(afero.NewOsFs(), basePath)
}

// NewFsAdapter creates an adapter on an arbitrary afero filesystem.
// Parameters:
//   - fs: filesystem to scan.
//   - basePath: directory whose files are listed.
//
// Returns:
//   - *Adapter: initialized adapter.
func NewFsAdapter(fs afero.Fs, basePath string) *Adapter {
	return &Adapter{fs: fs, basePath: basePath}
}

// GetSourceID returns the unique identifier for this source.
func (a *Adapter) GetSourceID() string {
	return "dir:" + a.basePath
}

// FetchBatch fetches a batch of items. The cursor is an index into the
// name-sorted listing.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.Item, string, error) {
	if !a.loaded {
		if err := a.loadItems(); err != nil {
			return nil, "", fmt.Errorf("failed to scan directory: %w", err)
		}
		a.loaded = true
	}

	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor: %w", err)
		}
	}
	if start >= len(a.items) {
		return []source.Item{}, "", nil
	}

	end := len(a.items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	next := ""
	if end < len(a.items) {
		next = strconv.Itoa(end)
	}
	return a.items[start:end], next, nil
}

// ReadFile reads the item from the filesystem.
func (a *Adapter) ReadFile(_ context.Context, item source.Item) ([]byte, error) {
	return afero.ReadFile(a.fs, item.Path)
}

func (a *Adapter) loadItems() error {
	infos, err := afero.ReadDir(a.fs, a.basePath)
	if err != nil {
		return err
	}

	a.items = a.items[:0]
	for _, info := range infos {
		if !info.Mode().IsRegular() {
			continue
		}
		if domain.KindOf(info.Name()) == domain.FileKindOther {
			continue
		}
		a.items = append(a.items, source.Item{
			Name: info.Name(),
			Path: filepath.Join(a.basePath, info.Name()),
			Size: info.Size(),
		})
	}

	sort.Slice(a.items, func(i, j int) bool {
		return a.items[i].Name < a.items[j].Name
	})
	return nil
}

// ReadAll drains src into memory.
func ReadAll(ctx context.Context, src source.Source, batchSize int) ([]source.Item, error) {
	var (
		all    []source.Item
		cursor string
	)
	for {
		items, next, err := src.FetchBatch(ctx, cursor, batchSize)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if next == "" {
			return all, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cursor = next
	}
}
