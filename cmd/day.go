package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/orchestrator"
)

var (
	dayKeyword string
	dayDryRun  bool
)

var dayCmd = &cobra.Command{
	Use:   "day",
	Short: "Fill the next day's schedule, rotating keywords until capacity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, dayDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		results, err := env.Orchestrator.RunDay(ctx, orchestrator.PassOptions{Keyword: dayKeyword})
		if err != nil {
			return err
		}

		scheduled, drafted, failed := 0, 0, 0
		for _, res := range results {
			scheduled += res.Scheduled
			drafted += res.Drafted
			failed += res.Failed
		}
		zap.L().Info("day complete",
			zap.Int("passes", len(results)),
			zap.Int("scheduled", scheduled),
			zap.Int("drafted", drafted),
			zap.Int("failed", failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	dayCmd.Flags().StringVar(&dayKeyword, "keyword", "", "force a search keyword instead of the rotation")
	dayCmd.Flags().BoolVar(&dayDryRun, "dry-run", false, "decide without persisting or publishing")
	rootCmd.AddCommand(dayCmd)
}
