// Package acquire fetches live postings, persists them and falls back to
// stored postings when the job source cannot serve a query.
package acquire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/source"
	"github.com/skillscope/skillscope/internal/store"
)

const defaultTimeout = 30 * time.Second

// Enqueuer accepts posting ids for background enrichment. Implementations must not block.
type Enqueuer interface {
	Enqueue(ctx context.Context, ids ...string) error
}

// Result reports one acquisition.
type Result struct {
	Query    source.Query    `json:"query"`
	Postings []model.Posting `json:"postings"`
	// Live is false when the postings come from the store fallback.
	Live           bool   `json:"live"`
	Inserted       int    `json:"inserted"`
	Updated        int    `json:"updated"`
	Skipped        int    `json:"skipped"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

type Acquirer struct {
	fetcher source.Fetcher
	store   store.Store
	queue   Enqueuer
	logger  *zap.Logger

	// Timeout bounds a single live fetch.
	Timeout time.Duration
	now     func() time.Time
}

// New builds an Acquirer. queue may be nil when enrichment hand-off is disabled.
func New(fetcher source.Fetcher, st store.Store, queue Enqueuer, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		fetcher: fetcher,
		store:   st,
		queue:   queue,
		logger:  logger,
		Timeout: defaultTimeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Acquire returns postings for q. Source failures degrade to stored postings
// without writing anything; store write failures are returned.
func (a *Acquirer) Acquire(ctx context.Context, q source.Query) (*Result, error) {
	log := a.logger.With(zap.String("query", q.String()))

	raw, fetchErr := a.fetch(ctx, q)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	valid, skipped := validPostings(raw)

	var reason string
	switch {
	case fetchErr != nil:
		reason = fmt.Sprintf("fetch failed: %v", fetchErr)
	case len(raw) == 0:
		reason = "source returned no postings"
	case len(valid) == 0:
		reason = "source returned only malformed postings"
	}
	if reason != "" {
		log.Warn("live acquisition unavailable, using stored postings", zap.String("reason", reason))
		return a.fallback(ctx, q, reason, skipped)
	}

	res := &Result{Query: q, Live: true, Skipped: skipped}

	now := a.now()
	ids := make([]string, 0, len(valid))
	var fresh []string
	seen := make(map[string]struct{}, len(valid))
	for i := range valid {
		p := &valid[i]
		p.Fingerprint = ""
		fp := p.EnsureFingerprint()
		if _, dup := seen[fp]; dup {
			res.Skipped++
			continue
		}
		seen[fp] = struct{}{}

		p.LastSeen = now
		if p.SearchTerm == "" {
			p.SearchTerm = q.Keywords
		}

		id, isNew, err := a.store.Upsert(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("upsert posting %q: %w", p.Title, err)
		}
		ids = append(ids, id)
		if isNew {
			res.Inserted++
			fresh = append(fresh, id)
		} else {
			res.Updated++
		}
	}

	a.handOff(ctx, fresh, log)

	stored, err := a.store.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("reload postings: %w", err)
	}
	res.Postings = inOrder(stored, ids)

	log.Info("postings acquired",
		zap.String("source", a.fetcher.Name()),
		zap.Int("inserted", res.Inserted),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (a *Acquirer) fetch(ctx context.Context, q source.Query) ([]model.Posting, error) {
	if a.fetcher == nil {
		return nil, fmt.Errorf("%w: no job source configured", source.ErrUnavailable)
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return a.fetcher.Fetch(fetchCtx, q)
}

func (a *Acquirer) fallback(ctx context.Context, q source.Query, reason string, skipped int) (*Result, error) {
	postings, err := a.store.Query(ctx, FiltersFor(q))
	if err != nil {
		return nil, fmt.Errorf("query stored postings: %w", err)
	}
	return &Result{
		Query:          q,
		Postings:       postings,
		Live:           false,
		Skipped:        skipped,
		FallbackReason: reason,
	}, nil
}

func (a *Acquirer) handOff(ctx context.Context, ids []string, log *zap.Logger) {
	if a.queue == nil || len(ids) == 0 {
		return
	}
	if err := a.queue.Enqueue(ctx, ids...); err != nil {
		log.Warn("enqueueing postings for enrichment failed", zap.Int("count", len(ids)), zap.Error(err))
	}
}

// FiltersFor translates an acquisition query into store filters.
func FiltersFor(q source.Query) model.Filters {
	f := model.Filters{
		Location:      q.Location,
		IncludeRemote: q.Remote,
		JobTypes:      q.JobTypes,
		Limit:         q.Limit,
	}
	if kw := strings.TrimSpace(q.Keywords); kw != "" {
		f.Keywords = []string{kw}
	}
	return f
}

func validPostings(raw []model.Posting) ([]model.Posting, int) {
	valid := make([]model.Posting, 0, len(raw))
	for _, p := range raw {
		if strings.TrimSpace(p.Title) == "" {
			continue
		}
		valid = append(valid, p)
	}
	return valid, len(raw) - len(valid)
}

func inOrder(postings []model.Posting, ids []string) []model.Posting {
	byID := make(map[string]model.Posting, len(postings))
	for _, p := range postings {
		byID[p.ID] = p
	}
	out := make([]model.Posting, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out
}
