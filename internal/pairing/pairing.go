// Package pairing associates uploaded raster previews with their vector
// companions by basename.
package pairing

import (
	"github.com/timmy/stockmeta/internal/domain"
)

// Options supplies the side-effecting pieces Merge needs.
type Options struct {
	// NewID returns a fresh asset id.
	NewID func() string
	// PreviewURL returns the display handle for an image file.
	PreviewURL func(domain.FileRef) string
}

// Result is the outcome of a merge.
type Result struct {
	// Assets is the full collection after the merge. Assets that were not
	// touched are returned as the same pointer that was passed in.
	Assets []*domain.Asset
	// Changed holds the assets that were created or modified, in the order
	// their groups first appeared in the batch.
	Changed []*domain.Asset
	// Unused holds incoming files that did not end up on any asset, either
	// because their extension is unsupported or because a later file of the
	// same kind replaced them or the matching asset already had a companion.
	Unused []domain.FileRef
}

type group struct {
	basename string
	image    *domain.FileRef
	vector   *domain.FileRef
}

// Merge folds a batch of incoming files into the existing collection.
// Neither existing nor incoming is modified.
func Merge(existing []*domain.Asset, incoming []domain.FileRef, opts Options) Result {
	res := Result{
		Assets: make([]*domain.Asset, len(existing)),
	}
	copy(res.Assets, existing)

	groups, unused := groupByBasename(incoming)
	res.Unused = unused

	for _, g := range groups {
		idx := findByBasename(res.Assets, g.basename)
		if idx >= 0 {
			updated, leftovers := mergeInto(res.Assets[idx], g, opts)
			res.Unused = append(res.Unused, leftovers...)
			if updated != nil {
				res.Assets[idx] = updated
				res.Changed = appendChanged(res.Changed, updated)
			}
			continue
		}

		asset := newAsset(g, opts)
		res.Assets = append(res.Assets, asset)
		res.Changed = append(res.Changed, asset)
	}
	return res
}

// groupByBasename buckets files into at most one image and one vector per
// basename. Later files of the same kind replace earlier ones.
func groupByBasename(files []domain.FileRef) ([]*group, []domain.FileRef) {
	var (
		order   []*group
		byName  = make(map[string]*group)
		dropped []domain.FileRef
	)
	for _, f := range files {
		kind := domain.KindOf(f.Name)
		if kind == domain.FileKindOther {
			dropped = append(dropped, f)
			continue
		}
		base := f.Basename()
		g, ok := byName[base]
		if !ok {
			g = &group{basename: base}
			byName[base] = g
			order = append(order, g)
		}
		file := f
		switch kind {
		case domain.FileKindImage:
			if g.image != nil {
				dropped = append(dropped, *g.image)
			}
			g.image = &file
		case domain.FileKindVector:
			if g.vector != nil {
				dropped = append(dropped, *g.vector)
			}
			g.vector = &file
		}
	}
	return order, dropped
}

func findByBasename(assets []*domain.Asset, basename string) int {
	for i, a := range assets {
		if a.Matches(basename) {
			return i
		}
	}
	return -1
}

// mergeInto applies a group to an existing asset. It returns nil when the
// asset is unchanged.
func mergeInto(existing *domain.Asset, g *group, opts Options) (*domain.Asset, []domain.FileRef) {
	var (
		updated   *domain.Asset
		leftovers []domain.FileRef
	)
	clone := func() *domain.Asset {
		if updated == nil {
			updated = existing.Clone()
		}
		return updated
	}

	if g.vector != nil {
		if existing.Vector == nil {
			v := *g.vector
			clone().Vector = &v
		} else {
			leftovers = append(leftovers, *g.vector)
		}
	}

	if g.image != nil {
		if !existing.Primary.IsImage() {
			a := clone()
			old := existing.Primary
			a.Primary = *g.image
			a.Vector = &old
			a.PreviewURL = preview(opts, *g.image)
			a.Status = domain.AssetStatusIdle
			a.Error = ""
		} else {
			leftovers = append(leftovers, *g.image)
		}
	}
	return updated, leftovers
}

func newAsset(g *group, opts Options) *domain.Asset {
	if g.image != nil {
		a := &domain.Asset{
			ID:         opts.NewID(),
			Primary:    *g.image,
			PreviewURL: preview(opts, *g.image),
			Status:     domain.AssetStatusIdle,
		}
		if g.vector != nil {
			v := *g.vector
			a.Vector = &v
		}
		return a
	}

	// Orphan vector: kept as a placeholder primary until its preview arrives.
	v := *g.vector
	return &domain.Asset{
		ID:      opts.NewID(),
		Primary: *g.vector,
		Vector:  &v,
		Status:  domain.AssetStatusError,
		Error:   domain.ErrMsgMissingPreview,
	}
}

func preview(opts Options, f domain.FileRef) string {
	if opts.PreviewURL == nil {
		return ""
	}
	return opts.PreviewURL(f)
}

func appendChanged(changed []*domain.Asset, a *domain.Asset) []*domain.Asset {
	for i, c := range changed {
		if c.ID == a.ID {
			changed[i] = a
			return changed
		}
	}
	return append(changed, a)
}
