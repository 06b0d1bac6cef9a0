package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/timmy/stockmeta/internal/app"
	"github.com/timmy/stockmeta/internal/config"
	"github.com/timmy/stockmeta/internal/logger"
	"github.com/timmy/stockmeta/internal/service"
)

var (
	configPath string
	apiKey     string
	persist    bool
	outDir     string

	services *app.App
)

var rootCmd = &cobra.Command{
	Use:   "stockmeta",
	Short: "Generate stock photography metadata with a vision model",
	Long: `stockmeta pairs raster previews with their vector companions, asks a
vision model for titles, descriptions, keywords and categories, and packages
the results as a submission-ready ZIP archive.`,
	SilenceUsage:      true,
	PersistentPreRunE: initializeApp,
	PersistentPostRun: func(*cobra.Command, []string) {
		if services != nil {
			services.Workspace.Hub().Flush()
		}
		logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "path to config file")
	flags.StringVar(&apiKey, "api-key", "", "model API key (defaults to GEMINI_API_KEY)")
	flags.BoolVar(&persist, "persist", false, "use the configured database and storage instead of an in-memory workspace")
	flags.StringVarP(&outDir, "out", "o", ".", "directory for generated files")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(trendsCmd)
	rootCmd.AddCommand(promptCmd)
}

func initializeApp(cmd *cobra.Command, _ []string) error {
	logCfg := logger.ConfigFromEnv("stockmeta-cli")
	logCfg.Output = os.Stderr
	if os.Getenv("LOG_FORMAT") == "" {
		logCfg.Format = "text"
	}
	if os.Getenv("LOG_LEVEL") == "" {
		logCfg.Level = "warn"
	}
	logger.SetDefaultLogger(logger.New(logCfg))

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if apiKey != "" {
		cfg.Model.APIKey = apiKey
	}
	if !persist {
		cfg.Database = config.DatabaseConfig{
			Driver:      "sqlite",
			Path:        ":memory:",
			AutoMigrate: true,
			LogLevel:    "silent",
		}
		cfg.Storage = config.StorageConfig{Type: "memory"}
	}

	services, err = app.Build(cmd.Context(), cfg)
	return err
}

// explain rewrites key errors into instructions for the user.
func explain(err error) error {
	switch {
	case errors.Is(err, service.ErrMissingKey):
		return fmt.Errorf("no API key configured: pass --api-key or set GEMINI_API_KEY")
	case errors.Is(err, service.ErrInvalidKey):
		return fmt.Errorf("the API key was rejected, please re-enter a valid key: %w", err)
	}
	return err
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
