// Package store defines the posting repository shared by the storage backends.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/skillscope/skillscope/internal/model"
)

// DefaultStaleAfterDays is the staleness window for postings.
const DefaultStaleAfterDays = 30

// ErrUnavailable marks failures to reach the store. Callers treat it as fatal.
var ErrUnavailable = errors.New("posting store unavailable")

// ErrNotClaimed is returned when an enrichment transition targets a posting
// that is not in the enriching state.
var ErrNotClaimed = errors.New("posting is not claimed for enrichment")

// Store persists postings and evaluation records.
type Store interface {
	// Upsert inserts a posting or refreshes the existing one with the same
	// fingerprint. It returns the stable id and whether a row was created.
	Upsert(ctx context.Context, p *model.Posting) (string, bool, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.Posting, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Posting, error)
	Query(ctx context.Context, f model.Filters) ([]model.Posting, error)
	PurgeOlderThan(ctx context.Context, days int) (int, error)

	ClaimForEnrichment(ctx context.Context, ids []string, limit, maxAttempts int) ([]model.Posting, error)
	CompleteEnrichment(ctx context.Context, id string, d model.Derived) error
	FailEnrichment(ctx context.Context, id, reason string, countAttempt bool) error
	ResetStuckEnrichment(ctx context.Context, olderThan time.Duration) (int, error)

	SaveEvaluation(ctx context.Context, e *model.Evaluation) error
	LatestEvaluation(ctx context.Context, profileID string) (*model.Evaluation, error)

	Stats(ctx context.Context, staleAfterDays int) (*model.Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Unavailable wraps err so errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Cutoff returns the last_seen threshold for the given staleness window.
func Cutoff(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// Ratio returns fresh/total, or 0 for an empty store.
func Ratio(fresh, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(fresh) / float64(total)
}
