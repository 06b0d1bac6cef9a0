package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/stockmeta/internal/prompts"
	"github.com/timmy/stockmeta/internal/service"
)

var trendsCmd = &cobra.Command{
	Use:   "trends <keyword>...",
	Short: "Look up trending search terms related to keywords",
	Long: fmt.Sprintf(`Ask the search-grounded model for trending terms related to the
first %d keywords. Prints nothing when no trends are found.`, prompts.TrendKeywordLimit),
	Args: cobra.MinimumNArgs(1),
	RunE: runTrends,
}

func runTrends(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	key, _, err := services.Settings.APIKey(ctx)
	if err != nil {
		return err
	}
	if key == "" {
		return explain(service.ErrMissingKey)
	}

	for _, trend := range services.Trends.FindTrends(ctx, key, args) {
		fmt.Fprintln(cmd.OutOrStdout(), trend)
	}
	return nil
}
