package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/service"
	"github.com/timmy/stockmeta/internal/source/directory"
)

var (
	generateMode   string
	generateRename bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <dir>",
	Short: "Generate metadata for every image in a directory and export a ZIP",
	Long: `Scan a directory for JPG, PNG and WEBP previews and EPS or AI vector
companions. Files sharing a basename are paired, metadata is generated for each
asset, and completed assets are written to stock_assets_<date>.zip.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVar(&generateMode, "mode", "", "model mode: fast or quality")
	generateCmd.Flags().BoolVar(&generateRename, "rename", true, "name exported files after their titles")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ws := services.Workspace

	if generateMode != "" {
		if err := ws.SetMode(domain.GenerationMode(generateMode)); err != nil {
			return err
		}
	}

	src := directory.NewAdapter(args[0])
	items, err := directory.ReadAll(ctx, src, 100)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no supported files found in %s", args[0])
	}

	uploads := make([]service.Upload, 0, len(items))
	for _, item := range items {
		data, err := src.ReadFile(ctx, item)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", item.Path, err)
		}
		uploads = append(uploads, service.Upload{Name: item.Name, Data: data})
	}
	if _, err := ws.AddFiles(ctx, uploads); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Generating metadata for %d files (%s mode)...\n", len(uploads), ws.Mode())
	stats, err := ws.GenerateAll(ctx)
	if err != nil {
		return explain(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d, succeeded %d, failed %d in %s\n",
		stats.Processed, stats.Succeeded, stats.Failed, stats.EndTime.Sub(stats.StartTime).Round(time.Millisecond))

	for _, a := range ws.List() {
		if a.Status == domain.AssetStatusError {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", a.Primary.Name, a.Error)
		}
	}

	var rename *bool
	if cmd.Flags().Changed("rename") {
		rename = &generateRename
	}
	archive, err := ws.Export(ctx, rename)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(outDir, archive.Name)
	if err := os.WriteFile(path, archive.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d files)\n", path, len(archive.Entries))
	return nil
}
