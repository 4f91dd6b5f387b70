package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aozora-lab/poster-cli/internal/orchestrator"
)

var (
	runKeyword  string
	runMaxItems int
	runDryRun   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single discovery and scheduling pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, runDryRun)
		if err != nil {
			return err
		}
		defer env.Close()

		sched := env.Orchestrator.NewScheduler()
		result, err := env.Orchestrator.RunPass(ctx, sched, orchestrator.PassOptions{
			Keyword:  runKeyword,
			MaxItems: runMaxItems,
		})
		if err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.String("keyword", result.Keyword),
			zap.Int("scheduled", result.Scheduled),
			zap.Int("drafted", result.Drafted),
			zap.Int("failed", result.Failed),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runKeyword, "keyword", "", "force a search keyword instead of the rotation")
	runCmd.Flags().IntVar(&runMaxItems, "max-items", 0, "cap the candidate batch (0 = configured batch size)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "decide without persisting or publishing")
	rootCmd.AddCommand(runCmd)
}
