package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skillscope/skillscope/internal/scheduler"
	"github.com/skillscope/skillscope/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with the enrichment worker and the maintenance schedule",
	Run: func(cmd *cobra.Command, _ []string) {
		serve(cmd)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address. Default is server.addr.")
	serveCmd.Flags().Bool("no-schedule", false, "do not run the scheduled maintenance and enrichment jobs")

	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger()

	a, err := newApp(ctx, logger)
	if err != nil {
		logger.Fatal("preparing the application", zap.Error(err))
	}
	defer a.Close()

	logger.Info("starting the skillscope api", zap.String("version", version))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.New(a.Pipeline, a.Config.Server, a.component("http")).Run(gctx)
	})

	g.Go(func() error {
		return a.Queue.Run(gctx, a.Enricher.Worker())
	})

	if skip, _ := cmd.Flags().GetBool("no-schedule"); !skip {
		sched := scheduler.New(a.Enricher, a.Config.Schedule, a.component("scheduler"))
		if err := sched.Start(gctx); err != nil {
			logger.Fatal("starting the scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("serving stopped", zap.Error(err))
	}
	logger.Info("stopped")
}
