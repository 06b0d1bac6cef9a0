package source

import "context"

// Item is one file discovered by a source.
type Item struct {
	Name string // file name used for pairing, e.g. "sunset.jpg"
	Path string // location understood by the source
	Size int64
}

// Source lists files that can be added to a workspace.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// FetchBatch fetches a batch of items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if listing fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []Item, nextCursor string, err error)

	// ReadFile returns the contents of an item.
	ReadFile(ctx context.Context, item Item) ([]byte, error)
}
