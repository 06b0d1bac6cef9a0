package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/timmy/stockmeta/internal/export"
)

var promptCmd = &cobra.Command{
	Use:   "prompt <image>...",
	Short: "Generate text-to-image prompts for images",
	Long: `Describe each image as a prompt for an image generator. A single image
prints its prompt; several images are collected into prompts_<date>.csv.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrompt,
}

func runPrompt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rows := make([][]string, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		prompt, err := services.Workspace.GeneratePrompt(ctx, data)
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), explain(err))
		}
		rows = append(rows, []string{filepath.Base(path), prompt})
	}

	if len(rows) == 1 {
		fmt.Fprintln(cmd.OutOrStdout(), rows[0][1])
		return nil
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	out := filepath.Join(outDir, export.PromptsFileName(time.Now()))
	if err := os.WriteFile(out, []byte(export.PromptsCSV(rows)), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d prompts)\n", out, len(rows))
	return nil
}
