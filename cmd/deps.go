package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/acquire"
	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/ai/gemini"
	"github.com/skillscope/skillscope/internal/enrich"
	"github.com/skillscope/skillscope/internal/evaluate"
	"github.com/skillscope/skillscope/internal/logger"
	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/pipeline"
	"github.com/skillscope/skillscope/internal/profile"
	"github.com/skillscope/skillscope/internal/secrets"
	"github.com/skillscope/skillscope/internal/source"
	"github.com/skillscope/skillscope/internal/source/adzuna"
	"github.com/skillscope/skillscope/internal/source/headhunter"
	"github.com/skillscope/skillscope/internal/store"
	"github.com/skillscope/skillscope/internal/store/postgres"
	"github.com/skillscope/skillscope/internal/store/sqlite"
)

// App holds the components shared by the commands.
type App struct {
	Config   *Config
	Logger   *zap.Logger
	Store    store.Store
	Queue    enrich.Queue
	Enricher *enrich.Engine
	Pipeline *pipeline.Pipeline

	closers []func() error
}

// newLogger builds the logger the way every command does and exits when it cannot.
func newLogger() *zap.Logger {
	l, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return l
}

func newApp(ctx context.Context, base *zap.Logger) (*App, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}

	a := &App{Config: config, Logger: base}

	st, err := openStore(ctx, config.Database, a.component("store"))
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	queue, err := a.newQueue(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Queue = queue

	reasoner, err := newReasoner(ctx, config.AI, base)
	if err != nil {
		base.Warn("reasoning is disabled, evaluations and enrichment will not call the model", zap.Error(err))
	}

	matcher, err := match.New(config.Match)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("matcher: %w", err)
	}

	a.Enricher = enrich.New(st, reasoner, config.Enrich, a.component("enrich"))

	fetcher, err := newFetcher(config.Sources, a.component("source"))
	if err != nil {
		a.Close()
		return nil, err
	}

	var enricher pipeline.Enricher
	if reasoner != nil {
		enricher = a.Enricher
	}

	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Store:     st,
		Acquirer:  acquire.New(fetcher, st, queue, a.component("acquire")),
		Matcher:   matcher,
		Evaluator: evaluate.New(reasoner, st, config.Evaluate, a.component("evaluate")),
		Enricher:  enricher,
	}, config.Pipeline, a.component("pipeline"))
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) component(name string) *zap.Logger {
	return logger.WithComponent(a.Logger, name)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("closing a resource", zap.Error(err))
		}
	}
	a.closers = nil
}

// LoadProfile reads the profile named by --profile or the profile config key.
func (a *App) LoadProfile() (*profile.Profile, error) {
	path := strings.TrimSpace(a.Config.Profile)
	if path == "" {
		return nil, errors.New("profile file is not set (use --profile or the 'profile' config key)")
	}
	return profile.Load(path)
}

func openStore(ctx context.Context, cfg *DatabaseConfig, log *zap.Logger) (store.Store, error) {
	log = log.With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "postgres":
		st, err := postgres.Open(ctx, cfg.URL, cfg.MaxConns, log)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return st, nil
	case "", "sqlite":
		st, err := sqlite.Open(ctx, cfg.Path, log)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %q: %w", cfg.Path, err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func (a *App) newQueue(ctx context.Context) (enrich.Queue, error) {
	cfg := a.Config.Queue
	batch := a.Config.Enrich.BatchSize
	log := a.component("queue").With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case "redis":
		rdb, err := enrich.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		return enrich.NewRedisQueue(rdb, cfg.RedisKey, batch, log), nil
	case "", "memory":
		return enrich.NewMemoryQueue(cfg.Capacity, batch, cfg.FlushInterval, log), nil
	default:
		return nil, fmt.Errorf("unsupported queue driver: %s", cfg.Driver)
	}
}

func newReasoner(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Reasoner, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("ai is disabled in the configuration")
	}

	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
	if cfg.Gemini == nil {
		return nil, errors.New("gemini configuration is required when ai is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, logger)
	if err != nil {
		return nil, err
	}
	return generator, nil
}

func newFetcher(cfg *SourcesConfig, logger *zap.Logger) (source.Fetcher, error) {
	var fetchers []source.Fetcher

	if hh := cfg.Headhunter; hh != nil && hh.Enabled {
		token := ""
		if strings.TrimSpace(hh.TokenFile) != "" {
			var err error
			token, err = secrets.Load(secrets.Source{Name: "headhunter token", File: hh.TokenFile})
			if err != nil {
				return nil, err
			}
		}

		client := headhunter.New(logger, token)
		if hh.UserAgent != "" {
			client.UserAgent = hh.UserAgent
		}
		if hh.MaxPages > 0 {
			client.MaxPages = hh.MaxPages
		}
		client.Areas = hh.Areas
		client.FetchDetails = hh.FetchDetails
		fetchers = append(fetchers, limited(client, hh.RequestsPerMinute))
	}

	if az := cfg.Adzuna; az != nil && az.Enabled {
		key, err := secrets.Load(secrets.Source{Name: "adzuna app key", File: az.AppKeyFile, Env: "ADZUNA_APP_KEY"})
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, limited(adzuna.New(az.AppID, key, az.Country, logger), az.RequestsPerMinute))
	}

	if len(fetchers) == 0 {
		return nil, errors.New("no job source is enabled (sources.headhunter or sources.adzuna)")
	}
	return source.NewMulti(logger, fetchers...), nil
}

func limited(f source.Fetcher, perMinute float64) source.Fetcher {
	if perMinute <= 0 {
		return f
	}
	return source.NewLimited(f, perMinute, 1)
}
