// Package server exposes the pipeline over a small JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/enrich"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/pipeline"
	"github.com/skillscope/skillscope/internal/profile"
)

const shutdownTimeout = 10 * time.Second

// Service is the part of the pipeline served over HTTP.
type Service interface {
	Search(ctx context.Context, p *profile.Profile) (*pipeline.SearchResult, error)
	Evaluate(ctx context.Context, p *profile.Profile, jobIDs []string) (*model.Evaluation, error)
	LatestEvaluation(ctx context.Context, profileID string) (*model.Evaluation, error)
	TriggerEnrichment(ctx context.Context, batchSize int) (*enrich.Status, error)
	PurgeStale(ctx context.Context) (int, error)
	Health(ctx context.Context) (*model.Stats, error)
}

type Config struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

func DefaultConfig() Config {
	return Config{Addr: ":8080"}
}

type Server struct {
	svc    Service
	cfg    Config
	logger *zap.Logger
	router *gin.Engine
}

func New(svc Service, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}
	s := &Server{svc: svc, cfg: cfg, logger: logger}
	s.router = s.routes()
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", zap.String("addr", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down the http api")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestID(), logging(s.logger), recovery(s.logger))

	api := r.Group("/api/v1")
	api.GET("/health", s.health)
	api.GET("/stats", s.stats)
	api.POST("/search", s.search)
	api.POST("/evaluations", s.evaluate)
	api.GET("/evaluations/latest", s.latestEvaluation)
	api.POST("/enrichment", s.enrichment)
	api.POST("/maintenance/purge", s.purge)

	r.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}
