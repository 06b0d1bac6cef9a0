package repository

import (
	"context"

	"github.com/timmy/stockmeta/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetRepository persists the asset collection.
type AssetRepository struct {
	db *gorm.DB
}

// NewAssetRepository creates a new AssetRepository.
func NewAssetRepository(db *gorm.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

// List returns every asset in list order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - []*domain.Asset: assets ordered by position.
//   - error: non-nil if the query fails.
func (r *AssetRepository) List(ctx context.Context) ([]*domain.Asset, error) {
	var assets []*domain.Asset
	if err := r.db.WithContext(ctx).Order("position ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// GetByID retrieves an asset. Missing ids return gorm.ErrRecordNotFound.
func (r *AssetRepository) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	var asset domain.Asset
	if err := r.db.WithContext(ctx).First(&asset, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &asset, nil
}

// Upsert creates or fully replaces an asset keyed by id.
func (r *AssetRepository) Upsert(ctx context.Context, asset *domain.Asset) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(asset).Error
}

// UpsertBatch writes several assets in one transaction.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - assets: assets to create or replace.
//
// Returns:
//   - error: non-nil if any write fails; nothing is written in that case.
func (r *AssetRepository) UpsertBatch(ctx context.Context, assets []*domain.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, a := range assets {
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(a).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Delete removes an asset by id.
func (r *AssetRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.Asset{}, "id = ?", id).Error
}

// DeleteAll removes every asset.
func (r *AssetRepository) DeleteAll(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Asset{}).Error
}

// MaxPosition returns the highest position in use, or 0 when empty.
func (r *AssetRepository) MaxPosition(ctx context.Context) (int64, error) {
	var max *int64
	if err := r.db.WithContext(ctx).Model(&domain.Asset{}).Select("MAX(position)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}
