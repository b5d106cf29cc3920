// Package pipeline is the entry point used by the CLI and the HTTP API:
// search, evaluate, enrich and purge.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skillscope/skillscope/internal/acquire"
	"github.com/skillscope/skillscope/internal/enrich"
	"github.com/skillscope/skillscope/internal/evaluate"
	"github.com/skillscope/skillscope/internal/filtering"
	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
	"github.com/skillscope/skillscope/internal/source"
	"github.com/skillscope/skillscope/internal/store"
)

var (
	// ErrInvalidInput marks requests that can never succeed as sent.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotConfigured is returned by operations whose backend was not wired.
	ErrNotConfigured = errors.New("not configured")
)

type Config struct {
	// MaxQueries caps the role x location queries derived from a profile.
	MaxQueries int `mapstructure:"max-queries"`
	// QueryLimit is the number of postings requested per query.
	QueryLimit int `mapstructure:"query-limit"`
	// Parallel is the number of queries acquired at once.
	Parallel       int              `mapstructure:"parallel"`
	StaleAfterDays int              `mapstructure:"stale-after-days"`
	Filters        filtering.Config `mapstructure:"filters"`
}

func DefaultConfig() Config {
	return Config{
		MaxQueries:     6,
		QueryLimit:     50,
		Parallel:       2,
		StaleAfterDays: store.DefaultStaleAfterDays,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxQueries <= 0 {
		c.MaxQueries = d.MaxQueries
	}
	if c.QueryLimit <= 0 {
		c.QueryLimit = d.QueryLimit
	}
	if c.Parallel <= 0 {
		c.Parallel = d.Parallel
	}
	if c.StaleAfterDays <= 0 {
		c.StaleAfterDays = d.StaleAfterDays
	}
	return c
}

type Acquirer interface {
	Acquire(ctx context.Context, q source.Query) (*acquire.Result, error)
}

type Enricher interface {
	RunBatch(ctx context.Context, size int) (*enrich.Status, error)
	Maintain(ctx context.Context) (*enrich.MaintenanceReport, error)
}

// Deps are the collaborators of a Pipeline. Enricher may be nil.
type Deps struct {
	Store     store.Store
	Acquirer  Acquirer
	Matcher   *match.Matcher
	Evaluator *evaluate.Evaluator
	Enricher  Enricher
}

type Pipeline struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Acquirer == nil:
		return nil, errors.New("pipeline: acquirer is required")
	case deps.Matcher == nil:
		return nil, errors.New("pipeline: matcher is required")
	case deps.Evaluator == nil:
		return nil, errors.New("pipeline: evaluator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// QueryReport summarises the acquisition of one query.
type QueryReport struct {
	Query          string `json:"query"`
	Live           bool   `json:"live"`
	Postings       int    `json:"postings"`
	Inserted       int    `json:"inserted"`
	Updated        int    `json:"updated"`
	Skipped        int    `json:"skipped"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

type SearchResult struct {
	ProfileID string             `json:"profile_id"`
	At        time.Time          `json:"at"`
	Results   []match.Result     `json:"results"`
	Queries   []QueryReport      `json:"queries"`
	Filters   []filtering.Report `json:"filters"`
}

// Search acquires postings for the profile, filters and ranks them.
func (p *Pipeline) Search(ctx context.Context, prof *profile.Profile) (*SearchResult, error) {
	c, err := snapshot(prof)
	if err != nil {
		return nil, err
	}
	log := p.logger.With(zap.String("profile_id", c.ID))

	queries := Queries(c, p.cfg.MaxQueries, p.cfg.QueryLimit)
	log.Info("starting the search", zap.Int("queries", len(queries)))

	acquired := make([]*acquire.Result, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Parallel)
	for i, q := range queries {
		g.Go(func() error {
			res, err := p.deps.Acquirer.Acquire(gctx, q)
			if err != nil {
				return fmt.Errorf("acquire %q: %w", q.String(), err)
			}
			acquired[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &SearchResult{ProfileID: c.ID, At: p.now()}
	var merged []model.Posting
	seen := make(map[string]struct{})
	for i, res := range acquired {
		result.Queries = append(result.Queries, QueryReport{
			Query:          queries[i].String(),
			Live:           res.Live,
			Postings:       len(res.Postings),
			Inserted:       res.Inserted,
			Updated:        res.Updated,
			Skipped:        res.Skipped,
			FallbackReason: res.FallbackReason,
		})
		for _, posting := range res.Postings {
			fp := posting.EnsureFingerprint()
			if _, dup := seen[fp]; dup {
				continue
			}
			seen[fp] = struct{}{}
			merged = append(merged, posting)
		}
	}

	deps := filtering.Deps{Logger: log}
	if len(c.Locations) > 0 {
		deps.Location = c.Locations[0]
	}
	filtered, reports, err := filtering.Run(ctx, &p.cfg.Filters, deps, filtering.Default(), merged)
	if err != nil {
		return nil, fmt.Errorf("filter postings: %w", err)
	}
	result.Filters = reports

	result.Results = p.deps.Matcher.Match(c, filtered, result.At)
	log.Info("search finished",
		zap.Int("acquired", len(merged)),
		zap.Int("ranked", len(result.Results)),
	)
	return result, nil
}

// Evaluate assesses the given postings, or the best search results when jobIDs is empty.
func (p *Pipeline) Evaluate(ctx context.Context, prof *profile.Profile, jobIDs []string) (*model.Evaluation, error) {
	c, err := snapshot(prof)
	if err != nil {
		return nil, err
	}

	if len(jobIDs) == 0 {
		sr, err := p.Search(ctx, c)
		if err != nil {
			return nil, err
		}
		return p.deps.Evaluator.Evaluate(ctx, c, sr.Results)
	}

	ids := unique(jobIDs)
	if limit := p.deps.Evaluator.Config().TopN; len(ids) > limit {
		return nil, fmt.Errorf("%w: %d postings requested, at most %d can be evaluated at once", ErrInvalidInput, len(ids), limit)
	}
	found, err := p.deps.Store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load postings: %w", err)
	}

	ranked := p.deps.Matcher.Match(c, found, p.now())
	byID := make(map[string]match.Result, len(ranked))
	for _, r := range ranked {
		byID[r.Posting.ID] = r
	}

	shortlist := make([]match.Result, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			shortlist = append(shortlist, r)
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) > 0 {
		p.logger.Info("requested postings are no longer stored", zap.Strings("posting_ids", missing))
	}

	return p.deps.Evaluator.Evaluate(ctx, c, shortlist, missing...)
}

// TriggerEnrichment runs one enrichment batch; size <= 0 uses the configured default.
func (p *Pipeline) TriggerEnrichment(ctx context.Context, batchSize int) (*enrich.Status, error) {
	if p.deps.Enricher == nil {
		return nil, fmt.Errorf("enrichment: %w", ErrNotConfigured)
	}
	return p.deps.Enricher.RunBatch(ctx, batchSize)
}

// Maintain resets stuck enrichment, purges stale postings and reports store health.
func (p *Pipeline) Maintain(ctx context.Context) (*enrich.MaintenanceReport, error) {
	if p.deps.Enricher == nil {
		return nil, fmt.Errorf("enrichment: %w", ErrNotConfigured)
	}
	return p.deps.Enricher.Maintain(ctx)
}

// PurgeStale deletes postings not seen within the staleness window.
func (p *Pipeline) PurgeStale(ctx context.Context) (int, error) {
	n, err := p.deps.Store.PurgeOlderThan(ctx, p.cfg.StaleAfterDays)
	if err != nil {
		return 0, err
	}
	p.logger.Info("purged stale postings", zap.Int("removed", n), zap.Int("stale_after_days", p.cfg.StaleAfterDays))
	return n, nil
}

func (p *Pipeline) Health(ctx context.Context) (*model.Stats, error) {
	return p.deps.Store.Stats(ctx, p.cfg.StaleAfterDays)
}

// LatestEvaluation returns the newest stored evaluation of the profile, or nil.
func (p *Pipeline) LatestEvaluation(ctx context.Context, profileID string) (*model.Evaluation, error) {
	if profileID == "" {
		return nil, fmt.Errorf("%w: profile id is required", ErrInvalidInput)
	}
	return p.deps.Store.LatestEvaluation(ctx, profileID)
}

func snapshot(prof *profile.Profile) (*profile.Profile, error) {
	if prof == nil {
		return nil, fmt.Errorf("%w: profile is required", ErrInvalidInput)
	}
	c := prof.Clone()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return c, nil
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
