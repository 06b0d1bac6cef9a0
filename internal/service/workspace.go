package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/stockmeta/internal/autosave"
	"github.com/timmy/stockmeta/internal/bulkedit"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/export"
	"github.com/timmy/stockmeta/internal/imageprep"
	"github.com/timmy/stockmeta/internal/logger"
	"github.com/timmy/stockmeta/internal/pairing"
	"github.com/timmy/stockmeta/internal/repository"
	"github.com/timmy/stockmeta/internal/storage"
	"golang.org/x/sync/semaphore"
)

// Workspace errors.
var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrNoMetadata    = errors.New("asset has no metadata yet")
	ErrInvalidMode   = errors.New("invalid generation mode")
	ErrInvalidField  = errors.New("invalid metadata field")
)

const uploadPrefix = "uploads"

// Upload is one file received from the client.
type Upload struct {
	Name string
	Data []byte
}

// WorkspaceConfig holds the tunables of a workspace.
type WorkspaceConfig struct {
	// MaxConcurrency caps parallel model calls in GenerateAll; 0 is unbounded.
	MaxConcurrency  int
	DefaultMode     domain.GenerationMode
	Image           imageprep.Options
	Rename          bool
	IncludeWorkbook bool
	ExportPrefix    string
}

// GenerateStats summarises a GenerateAll run.
type GenerateStats struct {
	Total     int64     `json:"total"`
	Processed int64     `json:"processed"`
	Succeeded int64     `json:"succeeded"`
	Failed    int64     `json:"failed"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Workspace owns the asset collection. Every mutation replaces an asset by id
// under the lock and writes it through to the repository.
type Workspace struct {
	repo     *repository.AssetRepository
	storage  storage.ObjectStorage
	gen      *GenerationService
	trends   *TrendService
	settings *SettingsService
	packager *export.Packager
	hub      *autosave.Hub
	cfg      WorkspaceConfig

	newID func() string
	now   func() time.Time

	mu      sync.Mutex
	assets  []*domain.Asset
	nextPos int64
	mode    domain.GenerationMode
}

// WorkspaceDeps groups the collaborators of a Workspace.
type WorkspaceDeps struct {
	Repo     *repository.AssetRepository
	Storage  storage.ObjectStorage
	Gen      *GenerationService
	Trends   *TrendService
	Settings *SettingsService
	// Clock drives autosave timers; nil uses real time.
	Clock autosave.Clock
}

// NewWorkspace creates an empty workspace. Call Load to restore persisted assets.
// Parameters:
//   - deps: repository, storage and model clients.
//   - cfg: concurrency, image and export settings.
//
// Returns:
//   - *Workspace: workspace ready for Load.
func NewWorkspace(deps WorkspaceDeps, cfg WorkspaceConfig) *Workspace {
	if !cfg.DefaultMode.Valid() {
		cfg.DefaultMode = domain.ModeFast
	}
	if cfg.ExportPrefix == "" {
		cfg.ExportPrefix = "exports"
	}
	w := &Workspace{
		repo:     deps.Repo,
		storage:  deps.Storage,
		gen:      deps.Gen,
		trends:   deps.Trends,
		settings: deps.Settings,
		packager: export.NewPackager(deps.Storage),
		cfg:      cfg,
		newID:    func() string { return uuid.New().String() },
		now:      time.Now,
		mode:     cfg.DefaultMode,
	}
	w.hub = autosave.NewHub(w.commitMetadata, deps.Clock)
	return w
}

// Load replaces the in-memory collection with the persisted one.
func (w *Workspace) Load(ctx context.Context) error {
	assets, err := w.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load assets: %w", err)
	}
	maxPos, err := w.repo.MaxPosition(ctx)
	if err != nil {
		return fmt.Errorf("failed to load assets: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.assets = assets
	w.nextPos = maxPos + 1
	logger.With(logger.Fields{logger.FieldComponent: "workspace"}).WithCount(len(assets)).Info(ctx, "Workspace loaded")
	return nil
}

// List returns copies of every asset in display order.
func (w *Workspace) List() []*domain.Asset {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*domain.Asset, len(w.assets))
	for i, a := range w.assets {
		out[i] = a.Clone()
	}
	return out
}

// Get returns a copy of the asset with id.
func (w *Workspace) Get(id string) (*domain.Asset, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	idx := w.indexOf(id)
	if idx < 0 {
		return nil, ErrAssetNotFound
	}
	return w.assets[idx].Clone(), nil
}

// Mode returns the current generation mode.
func (w *Workspace) Mode() domain.GenerationMode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// SetMode switches the generation mode used by later requests.
func (w *Workspace) SetMode(mode domain.GenerationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	w.mu.Lock()
	w.mode = mode
	w.mu.Unlock()
	return nil
}

// Hub exposes the autosave sessions.
func (w *Workspace) Hub() *autosave.Hub {
	return w.hub
}

func (w *Workspace) indexOf(id string) int {
	for i, a := range w.assets {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// update applies fn to a copy of the asset, stores it and writes it through.
// Must not be called with w.mu held.
func (w *Workspace) update(ctx context.Context, id string, fn func(a *domain.Asset)) (*domain.Asset, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	idx := w.indexOf(id)
	if idx < 0 {
		return nil, ErrAssetNotFound
	}
	a := w.assets[idx].Clone()
	fn(a)
	a.UpdatedAt = w.now()
	w.assets[idx] = a
	if err := w.repo.Upsert(ctx, a); err != nil {
		logger.CtxError(ctx, "Failed to persist asset %s: %v", id, err)
	}
	return a.Clone(), nil
}

// AddFiles stores the uploads and pairs them into the collection.
// Parameters:
//   - ctx: context for storage and database calls.
//   - uploads: files from one upload batch, in arrival order.
//
// Returns:
//   - []*domain.Asset: assets created or modified by the batch.
//   - error: non-nil if a blob could not be stored or the batch not persisted.
func (w *Workspace) AddFiles(ctx context.Context, uploads []Upload) ([]*domain.Asset, error) {
	refs := make([]domain.FileRef, 0, len(uploads))
	for _, u := range uploads {
		if domain.KindOf(u.Name) == domain.FileKindOther {
			continue
		}
		key := fmt.Sprintf("%s/%s%s", uploadPrefix, w.newID(), strings.ToLower(path.Ext(u.Name)))
		mime := imageprep.DetectMIME(u.Data)
		if err := w.storage.Upload(ctx, key, bytes.NewReader(u.Data), int64(len(u.Data)), mime); err != nil {
			w.releaseFiles(ctx, refs)
			return nil, fmt.Errorf("failed to store %s: %w", u.Name, err)
		}
		refs = append(refs, domain.FileRef{Name: u.Name, StorageKey: key, Size: int64(len(u.Data)), MIMEType: mime})
	}

	w.mu.Lock()
	existing := make(map[string]struct{}, len(w.assets))
	for _, a := range w.assets {
		existing[a.ID] = struct{}{}
	}
	res := pairing.Merge(w.assets, refs, pairing.Options{
		NewID:      w.newID,
		PreviewURL: func(f domain.FileRef) string { return w.storage.GetURL(f.StorageKey) },
	})

	now := w.now()
	pos := w.nextPos
	for _, a := range res.Changed {
		a.UpdatedAt = now
		if _, ok := existing[a.ID]; !ok {
			a.CreatedAt = now
			a.Position = pos
			pos++
		}
	}
	if err := w.repo.UpsertBatch(ctx, res.Changed); err != nil {
		w.mu.Unlock()
		w.releaseFiles(ctx, refs)
		return nil, fmt.Errorf("failed to save assets: %w", err)
	}
	w.assets = res.Assets
	w.nextPos = pos
	changed := make([]*domain.Asset, len(res.Changed))
	for i, a := range res.Changed {
		changed[i] = a.Clone()
	}
	w.mu.Unlock()

	w.releaseFiles(ctx, res.Unused)
	logger.With(logger.Fields{
		logger.FieldComponent: "workspace",
		"files":               len(refs),
		"unused":              len(res.Unused),
	}).WithCount(len(changed)).Info(ctx, "Files added")
	return changed, nil
}

func (w *Workspace) releaseFiles(ctx context.Context, refs []domain.FileRef) {
	for _, f := range refs {
		w.releaseBlob(ctx, f.StorageKey)
	}
}

func (w *Workspace) releaseBlob(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := w.storage.Delete(ctx, key); err != nil {
		logger.CtxWarn(ctx, "Failed to release blob %s: %v", key, err)
	}
}

// Remove deletes an asset and releases its files.
func (w *Workspace) Remove(ctx context.Context, id string) error {
	w.hub.Remove(id)

	w.mu.Lock()
	idx := w.indexOf(id)
	if idx < 0 {
		w.mu.Unlock()
		return ErrAssetNotFound
	}
	removed := w.assets[idx]
	if err := w.repo.Delete(ctx, id); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to delete asset: %w", err)
	}
	w.assets = append(w.assets[:idx:idx], w.assets[idx+1:]...)
	w.mu.Unlock()

	for _, key := range removed.StorageKeys() {
		w.releaseBlob(ctx, key)
	}
	return nil
}

// ClearAll removes every asset.
func (w *Workspace) ClearAll(ctx context.Context) error {
	w.hub.RemoveAll()

	w.mu.Lock()
	if err := w.repo.DeleteAll(ctx); err != nil {
		w.mu.Unlock()
		return fmt.Errorf("failed to clear assets: %w", err)
	}
	removed := w.assets
	w.assets = nil
	w.mu.Unlock()

	for _, a := range removed {
		for _, key := range a.StorageKeys() {
			w.releaseBlob(ctx, key)
		}
	}
	return nil
}

// apiKey returns the effective key or ErrMissingKey.
func (w *Workspace) apiKey(ctx context.Context) (string, error) {
	key, _, err := w.settings.APIKey(ctx)
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", ErrMissingKey
	}
	return key, nil
}

// Generate runs metadata generation for one asset. Model failures are stored
// on the asset; only key problems and unknown ids are returned as errors.
// Parameters:
//   - ctx: context for the model call.
//   - id: asset id.
//
// Returns:
//   - *domain.Asset: the asset after processing; nil if it was removed meanwhile.
//   - error: ErrAssetNotFound, ErrMissingKey or ErrInvalidKey.
func (w *Workspace) Generate(ctx context.Context, id string) (*domain.Asset, error) {
	key, err := w.apiKey(ctx)
	if err != nil {
		return nil, err
	}
	return w.process(ctx, key, id, w.Mode())
}

func (w *Workspace) process(ctx context.Context, key, id string, mode domain.GenerationMode) (*domain.Asset, error) {
	ctx = logger.SetAssetID(ctx, id)

	current, err := w.Get(id)
	if err != nil {
		return nil, err
	}
	if !current.Primary.IsImage() {
		return w.fail(ctx, id, domain.ErrMsgMissingPreviewImage)
	}

	if _, err := w.update(ctx, id, func(a *domain.Asset) {
		a.Status = domain.AssetStatusAnalyzing
		a.Error = ""
	}); err != nil {
		return nil, err
	}

	img, err := w.loadImage(ctx, current.Primary)
	if err != nil {
		return w.fail(ctx, id, err.Error())
	}

	started := time.Now()
	meta, err := w.gen.GenerateMetadata(ctx, key, img, mode)
	if err != nil {
		a, uerr := w.fail(ctx, id, err.Error())
		if errors.Is(err, ErrInvalidKey) || errors.Is(err, ErrMissingKey) {
			return a, err
		}
		return a, uerr
	}

	a, err := w.update(ctx, id, func(a *domain.Asset) {
		a.Status = domain.AssetStatusCompleted
		a.Metadata = meta
		a.Error = ""
	})
	if err != nil {
		logger.CtxInfo(ctx, "Discarding metadata for removed asset")
		return nil, nil
	}
	w.hub.Sync(id, meta)
	logger.With(logger.Fields{logger.FieldMode: string(mode)}).
		WithDuration(time.Since(started).Milliseconds()).
		WithCount(len(meta.Keywords)).
		Info(ctx, "Metadata generated")
	return a, nil
}

// fail marks an asset as errored. A removed asset is not an error.
func (w *Workspace) fail(ctx context.Context, id, msg string) (*domain.Asset, error) {
	a, err := w.update(ctx, id, func(a *domain.Asset) {
		a.Status = domain.AssetStatusError
		a.Error = msg
	})
	if errors.Is(err, ErrAssetNotFound) {
		return nil, nil
	}
	logger.CtxWarn(ctx, "Asset processing failed: %s", msg)
	return a, err
}

func (w *Workspace) loadImage(ctx context.Context, f domain.FileRef) (Image, error) {
	data, err := w.readBlob(ctx, f.StorageKey)
	if err != nil {
		return Image{}, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return PrepareImage(data, w.cfg.Image)
}

// PrepareImage bounds and re-encodes raw image bytes for a model request.
func PrepareImage(data []byte, opts imageprep.Options) (Image, error) {
	res, err := imageprep.Prepare(data, opts)
	if err != nil {
		return Image{}, err
	}
	return Image{Data: res.Data, MIME: res.MIME}, nil
}

func (w *Workspace) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := w.storage.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// GenerateAll processes every idle or errored asset concurrently.
// Parameters:
//   - ctx: context for the model calls.
//
// Returns:
//   - *GenerateStats: counts for the run.
//   - error: ErrMissingKey before anything starts, or ErrInvalidKey if the
//     model rejected the key for any asset.
func (w *Workspace) GenerateAll(ctx context.Context) (*GenerateStats, error) {
	key, err := w.apiKey(ctx)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	mode := w.mode
	var ids []string
	for _, a := range w.assets {
		if a.Status.Pending() {
			ids = append(ids, a.ID)
		}
	}
	w.mu.Unlock()

	ctx = logger.SetBatchID(ctx, w.newID())
	stats := &GenerateStats{Total: int64(len(ids)), StartTime: w.now()}
	logger.With(logger.Fields{logger.FieldMode: string(mode)}).WithCount(len(ids)).Info(ctx, "Starting generate all")

	var sem *semaphore.Weighted
	if w.cfg.MaxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(w.cfg.MaxConcurrency))
	}

	var (
		wg         sync.WaitGroup
		invalidKey atomic.Bool
	)
	for _, id := range ids {
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
		}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			a, err := w.process(ctx, key, id, mode)
			atomic.AddInt64(&stats.Processed, 1)
			switch {
			case errors.Is(err, ErrInvalidKey):
				invalidKey.Store(true)
				atomic.AddInt64(&stats.Failed, 1)
			case err != nil || a == nil || a.Status != domain.AssetStatusCompleted:
				atomic.AddInt64(&stats.Failed, 1)
			default:
				atomic.AddInt64(&stats.Succeeded, 1)
			}
		}(id)
	}
	wg.Wait()
	stats.EndTime = w.now()

	logger.With(logger.Fields{
		"total":     stats.Total,
		"processed": stats.Processed,
		"succeeded": stats.Succeeded,
		"failed":    stats.Failed,
	}).WithDuration(stats.EndTime.Sub(stats.StartTime).Milliseconds()).Info(ctx, "Generate all completed")

	if invalidKey.Load() {
		return stats, ErrInvalidKey
	}
	return stats, nil
}

// commitMetadata is the autosave commit target.
func (w *Workspace) commitMetadata(ctx context.Context, id string, m *domain.Metadata) error {
	_, err := w.update(ctx, id, func(a *domain.Asset) {
		a.Metadata = m.Clone()
	})
	return err
}

func (w *Workspace) session(id string) (*autosave.Session, error) {
	a, err := w.Get(id)
	if err != nil {
		return nil, err
	}
	if a.Metadata == nil {
		return nil, ErrNoMetadata
	}
	return w.hub.Open(id, a.Metadata), nil
}

// EditDraft applies a field edit to the asset's editor. The edit is committed
// after the debounce delay or on blur.
func (w *Workspace) EditDraft(id string, edit autosave.Edit) (autosave.State, error) {
	if !edit.Field.Valid() {
		return autosave.State{}, fmt.Errorf("%w: %q", ErrInvalidField, edit.Field)
	}
	s, err := w.session(id)
	if err != nil {
		return autosave.State{}, err
	}
	return s.Dispatch(edit), nil
}

// BlurDraft commits a pending edit at once.
func (w *Workspace) BlurDraft(id string) (autosave.State, error) {
	s, err := w.session(id)
	if err != nil {
		return autosave.State{}, err
	}
	return s.Dispatch(autosave.Blur{}), nil
}

// Draft returns the editor state for an asset.
func (w *Workspace) Draft(id string) (autosave.State, error) {
	s, err := w.session(id)
	if err != nil {
		return autosave.State{}, err
	}
	return s.State(), nil
}

// UpdateMetadata replaces the metadata and commits immediately.
func (w *Workspace) UpdateMetadata(ctx context.Context, id string, m *domain.Metadata) (*domain.Asset, error) {
	if m == nil {
		return nil, ErrNoMetadata
	}
	s, err := w.session(id)
	if err != nil {
		return nil, err
	}
	s.Dispatch(autosave.Apply{Metadata: m.Clone()})
	return w.Get(id)
}

// RemoveDuplicateKeywords drops repeated keywords and commits.
func (w *Workspace) RemoveDuplicateKeywords(ctx context.Context, id string) (*domain.Asset, error) {
	s, err := w.session(id)
	if err != nil {
		return nil, err
	}
	m := s.State().Buffer
	m.Keywords = domain.DedupeKeywords(m.Keywords)
	s.Dispatch(autosave.Apply{Metadata: m})
	return w.Get(id)
}

// AddKeyword appends keyword unless it is already present, ignoring case,
// and commits. Used when a trending suggestion is accepted.
func (w *Workspace) AddKeyword(ctx context.Context, id, keyword string) (*domain.Asset, error) {
	keyword = strings.TrimSpace(keyword)
	s, err := w.session(id)
	if err != nil {
		return nil, err
	}
	m := s.State().Buffer
	if keyword != "" {
		m.Keywords = bulkedit.AddKeywords(m.Keywords, []string{keyword})
	}
	s.Dispatch(autosave.Apply{Metadata: m})
	return w.Get(id)
}

// FindTrends looks up trending terms for an asset and stores them on it.
func (w *Workspace) FindTrends(ctx context.Context, id string) ([]string, error) {
	a, err := w.Get(id)
	if err != nil {
		return nil, err
	}
	if a.Metadata == nil {
		return nil, ErrNoMetadata
	}
	key, _, err := w.settings.APIKey(ctx)
	if err != nil {
		return nil, err
	}

	trends := w.trends.FindTrends(logger.SetAssetID(ctx, id), key, a.Metadata.Keywords)
	if _, err := w.update(ctx, id, func(a *domain.Asset) {
		a.TrendingSuggestions = trends
	}); err != nil && !errors.Is(err, ErrAssetNotFound) {
		return nil, err
	}
	return trends, nil
}

// BulkEdit applies req to the targeted assets and syncs open editors.
// Parameters:
//   - ctx: context for database calls.
//   - req: the bulk edit operation.
//   - ids: target asset ids; assets without metadata are skipped.
//
// Returns:
//   - []*domain.Asset: the edited assets.
//   - error: bulkedit.ErrInvalidRequest or a persistence error.
func (w *Workspace) BulkEdit(ctx context.Context, req bulkedit.Request, ids []string) ([]*domain.Asset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	out := bulkedit.Apply(w.assets, req, ids)
	var changed []*domain.Asset
	now := w.now()
	for i := range out {
		if out[i] != w.assets[i] {
			out[i].UpdatedAt = now
			changed = append(changed, out[i])
		}
	}
	if err := w.repo.UpsertBatch(ctx, changed); err != nil {
		w.mu.Unlock()
		return nil, fmt.Errorf("failed to save bulk edit: %w", err)
	}
	w.assets = out
	result := make([]*domain.Asset, len(changed))
	for i, a := range changed {
		result[i] = a.Clone()
	}
	w.mu.Unlock()

	for _, a := range result {
		w.hub.Sync(a.ID, a.Metadata)
	}
	logger.With(logger.Fields{
		logger.FieldComponent: "bulkedit",
		"action":              string(req.Action),
		"field":               string(req.Field),
	}).WithCount(len(result)).Info(ctx, "Bulk edit applied")
	return result, nil
}

// Export flushes pending edits and packages completed assets. A nil rename
// uses the configured default.
func (w *Workspace) Export(ctx context.Context, rename *bool) (*export.Archive, error) {
	w.hub.Flush()

	opts := export.Options{
		Rename:          w.cfg.Rename,
		IncludeWorkbook: w.cfg.IncludeWorkbook,
		Now:             w.now(),
	}
	if rename != nil {
		opts.Rename = *rename
	}

	started := time.Now()
	archive, err := w.packager.Build(ctx, w.List(), opts)
	if err != nil {
		return nil, err
	}
	logger.With(logger.Fields{
		logger.FieldComponent: "export",
		logger.FieldSize:      len(archive.Data),
	}).WithDuration(time.Since(started).Milliseconds()).WithCount(len(archive.Entries)).Info(ctx, "Archive built")
	return archive, nil
}

// ExportResult describes an archive stored in object storage.
type ExportResult struct {
	Name       string         `json:"name"`
	StorageKey string         `json:"storage_key"`
	URL        string         `json:"url"`
	Size       int            `json:"size"`
	Entries    []export.Entry `json:"entries"`
}

// ExportToStorage builds an archive and uploads it under the export prefix.
func (w *Workspace) ExportToStorage(ctx context.Context, rename *bool) (*ExportResult, error) {
	archive, err := w.Export(ctx, rename)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%s/%s/%s", w.cfg.ExportPrefix, w.newID(), archive.Name)
	if err := w.storage.Upload(ctx, key, bytes.NewReader(archive.Data), int64(len(archive.Data)), "application/zip"); err != nil {
		return nil, fmt.Errorf("failed to upload archive: %w", err)
	}
	return &ExportResult{
		Name:       archive.Name,
		StorageKey: key,
		URL:        w.storage.GetURL(key),
		Size:       len(archive.Data),
		Entries:    archive.Entries,
	}, nil
}

// GeneratePrompt returns a text-to-image prompt for raw image bytes.
func (w *Workspace) GeneratePrompt(ctx context.Context, data []byte) (string, error) {
	key, err := w.apiKey(ctx)
	if err != nil {
		return "", err
	}
	img, err := PrepareImage(data, w.cfg.Image)
	if err != nil {
		return "", err
	}
	return w.gen.GeneratePrompt(ctx, key, img)
}

// Preview opens the primary file of an asset.
func (w *Workspace) Preview(ctx context.Context, id string) (io.ReadCloser, string, error) {
	a, err := w.Get(id)
	if err != nil {
		return nil, "", err
	}
	rc, err := w.storage.Download(ctx, a.Primary.StorageKey)
	if err != nil {
		return nil, "", err
	}
	return rc, a.Primary.MIMEType, nil
}
