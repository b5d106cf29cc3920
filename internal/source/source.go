// Package source defines job-source fetchers and helpers shared by them.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/skillscope/skillscope/internal/model"
)

// ErrUnavailable marks a job source that could not be reached or answered badly.
var ErrUnavailable = errors.New("job source unavailable")

// Query describes one acquisition request.
type Query struct {
	Keywords string
	Location string
	Remote   bool
	JobTypes []string
	Limit    int
}

var jobTypeHints = map[string]string{
	"student":    "student",
	"graduate":   "graduate",
	"volunteer":  "volunteer",
	"apprentice": "trainee",
}

// SearchText returns the keywords with job-type hints appended, for boards
// that only take free text.
func (q Query) SearchText() string {
	text := strings.TrimSpace(q.Keywords)
	lower := strings.ToLower(text)
	for _, jt := range q.JobTypes {
		hint, ok := jobTypeHints[strings.ToLower(strings.TrimSpace(jt))]
		if !ok || strings.Contains(lower, hint) {
			continue
		}
		text = strings.TrimSpace(text + " " + hint)
		lower = strings.ToLower(text)
	}
	return text
}

func (q Query) String() string {
	parts := []string{q.Keywords}
	if q.Location != "" {
		parts = append(parts, "in "+q.Location)
	}
	if q.Remote {
		parts = append(parts, "(remote)")
	}
	return strings.Join(parts, " ")
}

// Fetcher retrieves raw postings from a job board.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]model.Posting, error)
}

// Multi queries every fetcher concurrently and merges their postings.
type Multi struct {
	fetchers []Fetcher
	logger   *zap.Logger
}

func NewMulti(logger *zap.Logger, fetchers ...Fetcher) *Multi {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Multi{fetchers: fetchers, logger: logger}
}

func (m *Multi) Name() string {
	names := make([]string, 0, len(m.fetchers))
	for _, f := range m.fetchers {
		names = append(names, f.Name())
	}
	return strings.Join(names, "+")
}

// Fetch fails only when every fetcher fails.
func (m *Multi) Fetch(ctx context.Context, q Query) ([]model.Posting, error) {
	if len(m.fetchers) == 0 {
		return nil, fmt.Errorf("%w: no fetchers configured", ErrUnavailable)
	}

	results := make([][]model.Posting, len(m.fetchers))
	errs := make([]error, len(m.fetchers))

	var g errgroup.Group
	for i, f := range m.fetchers {
		g.Go(func() error {
			postings, err := f.Fetch(ctx, q)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", f.Name(), err)
				m.logger.Warn("job source failed", zap.String("source", f.Name()), zap.Error(err))
				return nil
			}
			results[i] = postings
			return nil
		})
	}
	_ = g.Wait()

	var merged []model.Posting
	failed := 0
	for i := range m.fetchers {
		if errs[i] != nil {
			failed++
			continue
		}
		merged = append(merged, results[i]...)
	}

	if failed == len(m.fetchers) {
		return nil, errors.Join(errs...)
	}
	if q.Limit > 0 && len(merged) > q.Limit {
		merged = merged[:q.Limit]
	}
	return merged, nil
}

// Limited throttles calls to the wrapped fetcher.
type Limited struct {
	Fetcher
	limiter *rate.Limiter
}

// NewLimited allows at most perMinute fetches per minute with the given burst.
func NewLimited(f Fetcher, perMinute float64, burst int) *Limited {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60)
	}
	return &Limited{Fetcher: f, limiter: rate.NewLimiter(limit, burst)}
}

func (l *Limited) Fetch(ctx context.Context, q Query) ([]model.Posting, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrUnavailable, err)
	}
	return l.Fetcher.Fetch(ctx, q)
}
