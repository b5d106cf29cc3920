// Package scheduler runs the recurring maintenance, enrichment and health jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/enrich"
	"github.com/skillscope/skillscope/internal/model"
)

type Config struct {
	Maintenance string `mapstructure:"maintenance"`
	Enrichment  string `mapstructure:"enrichment"`
	Health      string `mapstructure:"health"`
	// BatchSize of the scheduled enrichment run; 0 uses the engine default.
	BatchSize int `mapstructure:"batch-size"`
	// JobTimeout bounds a single job run.
	JobTimeout time.Duration `mapstructure:"job-timeout"`
}

func DefaultConfig() Config {
	return Config{
		Maintenance: "0 2 * * *",
		Enrichment:  "@every 15m",
		Health:      "@every 6h",
		JobTimeout:  20 * time.Minute,
	}
}

// Engine is the part of the enrichment engine the scheduler drives.
type Engine interface {
	RunBatch(ctx context.Context, size int) (*enrich.Status, error)
	Maintain(ctx context.Context) (*enrich.MaintenanceReport, error)
	Health(ctx context.Context) (*model.Stats, []string, error)
}

type Scheduler struct {
	cron   *cron.Cron
	engine Engine
	cfg    Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// initial tracks the batch Start runs outside cron.
	initial sync.WaitGroup
}

func New(engine Engine, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := DefaultConfig()
	if cfg.Maintenance == "" {
		cfg.Maintenance = d.Maintenance
	}
	if cfg.Enrichment == "" {
		cfg.Enrichment = d.Enrichment
	}
	if cfg.Health == "" {
		cfg.Health = d.Health
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = d.JobTimeout
	}

	cronLogger := cronLogger{logger: logger.Named("cron")}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		engine: engine,
		cfg:    cfg,
		logger: logger,
	}
}

// Start registers the jobs, starts the scheduler and runs one enrichment
// batch right away so fresh postings do not wait for the first tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"maintenance", s.cfg.Maintenance, s.maintain},
		{"enrichment", s.cfg.Enrichment, s.enrich},
		{"health", s.cfg.Health, s.health},
	}
	for _, job := range jobs {
		run := job.run
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(run) }); err != nil {
			s.cancel()
			return fmt.Errorf("schedule %s job %q: %w", job.name, job.spec, err)
		}
		s.logger.Info("job scheduled", zap.String("job", job.name), zap.String("spec", job.spec))
	}

	s.cron.Start()
	s.initial.Add(1)
	go func() {
		defer s.initial.Done()
		s.runJob(s.enrich)
	}()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.initial.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runJob(run func(context.Context)) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.JobTimeout)
	defer cancel()
	run(ctx)
}

func (s *Scheduler) maintain(ctx context.Context) {
	report, err := s.engine.Maintain(ctx)
	if err != nil {
		s.logger.Error("maintenance failed", zap.Error(err))
		return
	}
	s.logger.Info("maintenance done",
		zap.Int("reset_stuck", report.ResetStuck),
		zap.Int("purged", report.Purged),
		zap.Strings("warnings", report.Warnings),
	)
}

func (s *Scheduler) enrich(ctx context.Context) {
	status, err := s.engine.RunBatch(ctx, s.cfg.BatchSize)
	if err != nil {
		s.logger.Error("scheduled enrichment failed", zap.Error(err))
		return
	}
	if status.Claimed == 0 {
		s.logger.Debug("nothing to enrich")
		return
	}
	s.logger.Info("scheduled enrichment done",
		zap.Int("enriched", status.Enriched),
		zap.Int("failed", status.Failed),
		zap.Bool("rate_limited", status.RateLimited),
	)
}

func (s *Scheduler) health(ctx context.Context) {
	if _, _, err := s.engine.Health(ctx); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
	}
}

// cronLogger routes cron's own logging to zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
