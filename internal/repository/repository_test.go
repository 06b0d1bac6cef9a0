package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/timmy/stockmeta/internal/config"
	"github.com/timmy/stockmeta/internal/domain"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        ":memory:",
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	if err != nil {
		t.Fatalf("InitDB: %v", err)
	}
	return db
}

func TestAssetRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewAssetRepository(openTestDB(t))

	first := &domain.Asset{
		ID:       "a1",
		Primary:  domain.FileRef{Name: "sky.jpg", StorageKey: "uploads/a1.jpg"},
		Vector:   &domain.FileRef{Name: "sky.eps", StorageKey: "uploads/a1.eps"},
		Status:   domain.AssetStatusCompleted,
		Position: 2,
		Metadata: &domain.Metadata{
			Title:    "Blue sky",
			Keywords: []string{"sky", "blue"},
			Category: "Nature",
		},
		TrendingSuggestions: domain.StringArray{"clouds"},
	}
	second := &domain.Asset{
		ID:       "a2",
		Primary:  domain.FileRef{Name: "sea.png", StorageKey: "uploads/a2.png"},
		Status:   domain.AssetStatusIdle,
		Position: 1,
	}
	if err := repo.UpsertBatch(ctx, []*domain.Asset{first, second}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "a2" || list[1].ID != "a1" {
		t.Fatalf("unexpected order: %+v", list)
	}

	got := list[1]
	if got.Vector == nil || got.Vector.Name != "sky.eps" {
		t.Errorf("vector not persisted: %+v", got.Vector)
	}
	if got.Metadata == nil || got.Metadata.Title != "Blue sky" || len(got.Metadata.Keywords) != 2 {
		t.Errorf("metadata not persisted: %+v", got.Metadata)
	}
	if list[0].Metadata != nil || list[0].Vector != nil {
		t.Errorf("nil fields should stay nil: %+v", list[0])
	}

	first.Status = domain.AssetStatusError
	first.Error = "boom"
	if err := repo.Upsert(ctx, first); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	reloaded, err := repo.GetByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != domain.AssetStatusError || reloaded.Error != "boom" {
		t.Errorf("update not applied: %+v", reloaded)
	}

	if max, err := repo.MaxPosition(ctx); err != nil || max != 2 {
		t.Errorf("MaxPosition = %d, %v", max, err)
	}

	if err := repo.Delete(ctx, "a1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, "a1"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if list, _ := repo.List(ctx); len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(openTestDB(t))

	if _, ok, err := repo.Get(ctx, domain.SettingTheme); err != nil || ok {
		t.Fatalf("Get on empty store = %v, %v", ok, err)
	}
	if err := repo.Set(ctx, domain.SettingTheme, domain.ThemeLight); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := repo.Set(ctx, domain.SettingTheme, domain.ThemeDark); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	v, ok, err := repo.Get(ctx, domain.SettingTheme)
	if err != nil || !ok || v != domain.ThemeDark {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}
	if err := repo.Delete(ctx, domain.SettingTheme); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, domain.SettingTheme); ok {
		t.Error("setting should be gone")
	}
}
