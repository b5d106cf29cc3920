package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the latest stored evaluation of a profile",
	Run: func(cmd *cobra.Command, _ []string) {
		report(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().String("profile-id", "", "profile id to report on. Default is the id from the profile file.")
}

func report(cmd *cobra.Command) {
	ctx := context.Background()
	logger := newLogger()

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the application", zap.Error(err))
	}
	defer a.Close()

	profileID, _ := cmd.Flags().GetString("profile-id")
	if profileID == "" {
		p, err := a.LoadProfile()
		if err != nil {
			logger.Fatal("loading the profile", zap.Error(err), zap.String("hint", "pass --profile-id"))
		}
		profileID = p.ID
	}

	eval, err := a.Pipeline.LatestEvaluation(ctx, profileID)
	if err != nil {
		logger.Fatal("loading the latest evaluation", zap.Error(err))
	}
	if eval == nil {
		logger.Info("exiting", zap.String("reason", "no evaluation stored for the profile"), zap.String("profile_id", profileID))
		return
	}

	printEvaluation(cmd.OutOrStdout(), eval)
}
