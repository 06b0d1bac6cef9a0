// Package export assembles completed assets into a renamed archive with a
// metadata manifest.
package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/timmy/stockmeta/internal/domain"
)

const (
	// ManifestName is the CSV manifest written into every archive.
	ManifestName = "metadata.csv"
	// WorkbookName is the optional spreadsheet copy of the manifest.
	WorkbookName = "metadata.xlsx"

	maxBaseLength    = 100
	fallbackBase     = "image"
	defaultImageExt  = "jpg"
	defaultVectorExt = "eps"
	keywordSeparator = ", "
)

// ManifestHeader is the first line of metadata.csv.
var ManifestHeader = []string{"Filename", "Title", "Description", "Keywords", "Category"}

// ErrNothingToExport is returned when no asset is completed with metadata.
var ErrNothingToExport = errors.New("no completed assets to export")

// BlobSource reads stored file contents.
type BlobSource interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// Options controls a single export run.
type Options struct {
	// Rename names files after their sanitised titles instead of the
	// original upload names.
	Rename bool
	// IncludeWorkbook adds metadata.xlsx next to metadata.csv.
	IncludeWorkbook bool
	// Now stamps the archive name and entries. Zero means time.Now.
	Now time.Time
}

// Entry is one renamed file placed in the archive.
type Entry struct {
	AssetID  string `json:"asset_id"`
	Filename string `json:"filename"`
	Vector   string `json:"vector,omitempty"`
}

// Archive is a fully assembled export bundle.
type Archive struct {
	Name    string  `json:"name"`
	Entries []Entry `json:"entries"`
	Data    []byte  `json:"-"`
}

// Packager builds export archives from stored blobs.
type Packager struct {
	blobs BlobSource
}

// NewPackager creates a packager reading file contents from blobs.
func NewPackager(blobs BlobSource) *Packager {
	return &Packager{blobs: blobs}
}

// ArchiveName returns the download name for an archive built at t.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("stock_assets_%s.zip", t.Format("2006-01-02"))
}

// Build writes every completed asset, in list order, into an in-memory zip.
// Nothing is returned unless the whole archive was assembled.
func (p *Packager) Build(ctx context.Context, assets []*domain.Asset, opts Options) (*Archive, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	plan := Plan(assets, opts.Rename)
	if len(plan) == 0 {
		return nil, ErrNothingToExport
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	rows := make([][]string, 0, len(plan))
	entries := make([]Entry, 0, len(plan))
	for _, item := range plan {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.copyBlob(ctx, zw, item.Filename, item.Asset.Primary.StorageKey, now); err != nil {
			return nil, err
		}
		if item.Vector != "" {
			if err := p.copyBlob(ctx, zw, item.Vector, item.Asset.Vector.StorageKey, now); err != nil {
				return nil, err
			}
		}
		rows = append(rows, item.Row())
		entries = append(entries, Entry{AssetID: item.Asset.ID, Filename: item.Filename, Vector: item.Vector})
	}

	if err := writeEntry(zw, ManifestName, now, []byte(ManifestCSV(rows))); err != nil {
		return nil, err
	}
	if opts.IncludeWorkbook {
		data, err := ManifestWorkbook(rows)
		if err != nil {
			return nil, err
		}
		if err := writeEntry(zw, WorkbookName, now, data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return &Archive{
		Name:    ArchiveName(now),
		Entries: entries,
		Data:    buf.Bytes(),
	}, nil
}

func (p *Packager) copyBlob(ctx context.Context, zw *zip.Writer, name, key string, now time.Time) error {
	rc, err := p.blobs.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	defer rc.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, now time.Time, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: now})
	if err != nil {
		return fmt.Errorf("failed to add %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// PlannedFile is the resolved archive naming for one asset.
type PlannedFile struct {
	Asset    *domain.Asset
	Filename string
	Vector   string
}

// Row returns the manifest row for the planned file.
func (f PlannedFile) Row() []string {
	m := f.Asset.Metadata
	return []string{
		f.Filename,
		m.Title,
		m.Description,
		strings.Join(m.Keywords, keywordSeparator),
		m.Category,
	}
}

// Plan resolves archive file names for every exportable asset, in order.
// A base is taken when either the image or the vector companion name is
// already planned; taken bases get _1, _2, ... suffixes and both files share
// the resolved base.
func Plan(assets []*domain.Asset, rename bool) []PlannedFile {
	used := make(map[string]struct{})
	var plan []PlannedFile
	for _, a := range assets {
		if !a.Exportable() {
			continue
		}
		ext := extOrDefault(a.Primary.Name, defaultImageExt)
		vectorExt := ""
		if a.Vector != nil {
			vectorExt = extOrDefault(a.Vector.Name, defaultVectorExt)
		}
		candidate := domain.Basename(a.Primary.Name)
		if rename {
			candidate = SanitizeTitle(a.Metadata.Title)
		}
		base := candidate
		for n := 1; baseTaken(used, base, ext, vectorExt); n++ {
			base = fmt.Sprintf("%s_%d", candidate, n)
		}
		item := PlannedFile{Asset: a, Filename: base + "." + ext}
		used[item.Filename] = struct{}{}
		if vectorExt != "" {
			item.Vector = base + "." + vectorExt
			used[item.Vector] = struct{}{}
		}
		plan = append(plan, item)
	}
	return plan
}

func baseTaken(used map[string]struct{}, base, ext, vectorExt string) bool {
	if _, ok := used[base+"."+ext]; ok {
		return true
	}
	if vectorExt == "" {
		return false
	}
	_, ok := used[base+"."+vectorExt]
	return ok
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\p{Z}\s-]`)
	spaceRuns   = regexp.MustCompile(`[\p{Z}\s]+`)
)

// SanitizeTitle turns a title into a file-name-safe base.
func SanitizeTitle(title string) string {
	s := strings.TrimSpace(unsafeChars.ReplaceAllString(title, ""))
	s = spaceRuns.ReplaceAllString(s, "_")
	if len(s) > maxBaseLength {
		s = s[:maxBaseLength]
	}
	if s == "" {
		return fallbackBase
	}
	return s
}

// extOrDefault returns the text after the last dot, keeping its case.
func extOrDefault(name, fallback string) string {
	ext := name
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		ext = name[idx+1:]
	}
	if ext == "" {
		return fallback
	}
	return ext
}
