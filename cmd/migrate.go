package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		logger := newLogger()

		config, err := getConfig()
		if err != nil {
			logger.Fatal("getting a config", zap.Error(err))
		}

		// Opening a store applies the pending migrations.
		st, err := openStore(ctx, config.Database, logger)
		if err != nil {
			logger.Fatal("migrating", zap.Error(err))
		}
		defer st.Close()

		logger.Info("schema is up to date", zap.String("driver", config.Database.Driver))
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
