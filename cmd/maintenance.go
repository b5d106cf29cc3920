package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Derive skills, industry and company size for stored postings",
	Run: func(cmd *cobra.Command, _ []string) {
		enrichPostings(cmd)
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete postings not seen within the staleness window",
	Run: func(cmd *cobra.Command, _ []string) {
		purge(cmd)
	},
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Reset stuck enrichment, purge stale postings and report the store health",
	Run: func(cmd *cobra.Command, _ []string) {
		maintain(cmd)
	},
}

func init() {
	rootCmd.AddCommand(enrichCmd, purgeCmd, maintainCmd)

	enrichCmd.Flags().IntP("batch-size", "b", 0, "postings per batch. Default is enrich.batch-size.")
	enrichCmd.Flags().Int("batches", 1, "number of batches to run")
}

func enrichPostings(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger()

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the application", zap.Error(err))
	}
	defer a.Close()

	size, _ := cmd.Flags().GetInt("batch-size")
	batches, _ := cmd.Flags().GetInt("batches")

	for i := 0; i < batches; i++ {
		status, err := a.Pipeline.TriggerEnrichment(ctx, size)
		if err != nil {
			logger.Fatal("enriching postings", zap.Error(err))
		}

		logger.Info("enrichment batch finished",
			zap.Int("batch", i+1),
			zap.Int("claimed", status.Claimed),
			zap.Int("enriched", status.Enriched),
			zap.Int("failed", status.Failed),
			zap.Bool("rate_limited", status.RateLimited),
		)

		if status.Claimed == 0 || status.RateLimited || ctx.Err() != nil {
			return
		}
	}
}

func purge(_ *cobra.Command) {
	ctx := context.Background()
	logger := newLogger()

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the application", zap.Error(err))
	}
	defer a.Close()

	removed, err := a.Pipeline.PurgeStale(ctx)
	if err != nil {
		logger.Fatal("purging stale postings", zap.Error(err))
	}
	logger.Info("done", zap.Int("removed", removed))
}

func maintain(cmd *cobra.Command) {
	ctx := context.Background()
	logger := newLogger()

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the application", zap.Error(err))
	}
	defer a.Close()

	// Maintenance does not need the model, so it runs on the engine directly.
	report, err := a.Enricher.Maintain(ctx)
	if err != nil {
		logger.Fatal("maintaining the store", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(report, "", "  ")
	cmd.Println(string(pretty))
}
