package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Assess how well the profile fits stored postings (or a fresh search) and build an improvement plan",
	Run: func(cmd *cobra.Command, _ []string) {
		runEvaluate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringSlice("job-id", nil, "stored posting ids to evaluate; without ids the best matches of a new search are used")
}

func runEvaluate(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger()

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the application", zap.Error(err))
	}
	defer a.Close()

	p, err := a.LoadProfile()
	if err != nil {
		logger.Fatal("loading the profile", zap.Error(err))
	}

	ids, _ := cmd.Flags().GetStringSlice("job-id")
	logger.Info("starting the evaluation", zap.String("profile_id", p.ID), zap.Strings("posting_ids", ids))

	eval, err := a.Pipeline.Evaluate(ctx, p, ids)
	if eval != nil {
		printEvaluation(cmd.OutOrStdout(), eval)
	}
	if err != nil {
		logger.Fatal("evaluating postings", zap.Error(err))
	}
}
