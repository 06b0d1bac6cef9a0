// Package app wires configuration into the services shared by the API
// server and the command line tool.
package app

import (
	"context"
	"fmt"

	"github.com/timmy/stockmeta/internal/config"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/imageprep"
	"github.com/timmy/stockmeta/internal/logger"
	"github.com/timmy/stockmeta/internal/repository"
	"github.com/timmy/stockmeta/internal/service"
	"github.com/timmy/stockmeta/internal/storage"
)

// App holds the initialized services.
type App struct {
	Config    *config.Config
	Backend   service.Backend
	Storage   storage.ObjectStorage
	Settings  *service.SettingsService
	Trends    *service.TrendService
	Gen       *service.GenerationService
	Workspace *service.Workspace
}

// NewBackend returns the model backend selected by cfg.Provider.
func NewBackend(cfg *config.ModelConfig) (service.Backend, error) {
	switch cfg.Provider {
	case config.ProviderGenAI, "":
		return service.NewGenAIBackend(), nil
	case config.ProviderOpenAICompatible:
		return service.NewOpenAIBackend(&service.OpenAIConfig{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// Build opens the database and storage and restores the workspace.
// Parameters:
//   - ctx: context for storage checks and the initial load.
//   - cfg: loaded configuration.
//
// Returns:
//   - *App: ready services.
//   - error: non-nil if any dependency cannot be initialized.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	objectStorage, err := storage.NewStorage(ctx, &cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	backend, err := NewBackend(&cfg.Model)
	if err != nil {
		return nil, err
	}

	settings := service.NewSettingsService(
		repository.NewSettingsRepository(db),
		cfg.Model.APIKey,
		cfg.Settings.Theme,
	)
	gen := service.NewGenerationService(backend, &cfg.Model)
	trends := service.NewTrendService(backend, cfg.Model.TrendModel)

	ws := service.NewWorkspace(service.WorkspaceDeps{
		Repo:     repository.NewAssetRepository(db),
		Storage:  objectStorage,
		Gen:      gen,
		Trends:   trends,
		Settings: settings,
	}, service.WorkspaceConfig{
		MaxConcurrency: cfg.Generation.MaxConcurrency,
		DefaultMode:    domain.GenerationMode(cfg.Generation.DefaultMode),
		Image: imageprep.Options{
			MaxDimension: cfg.Image.MaxDimension,
			Quality:      cfg.Image.JPEGQuality,
		},
		Rename:          cfg.Export.Rename,
		IncludeWorkbook: cfg.Export.IncludeWorkbook,
		ExportPrefix:    cfg.Export.UploadPrefix,
	})
	if err := ws.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load workspace: %w", err)
	}

	logger.With(logger.Fields{
		logger.FieldComponent: "app",
		"backend":             backend.Name(),
		"storage":             cfg.Storage.Type,
		"database":            cfg.Database.Driver,
	}).WithCount(len(ws.List())).Info(ctx, "Services initialized")

	return &App{
		Config:    cfg,
		Backend:   backend,
		Storage:   objectStorage,
		Settings:  settings,
		Trends:    trends,
		Gen:       gen,
		Workspace: ws,
	}, nil
}
