// Package postgres implements the posting store on PostgreSQL through pgx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a store.Store backed by a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, store.Unavailable("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, store.Unavailable("ping postgres", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	err = store.Migrate(ctx, db, migrations, "migrations", "postgres", logger)
	_ = db.Close()
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		pool:   pool,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

const postingColumns = `id::text, fingerprint, source, source_id, title, company, location, remote, job_type,
	description, url, search_term, posted_at, skills, industry, company_size, enrichment_state,
	enrich_attempts, enrich_error, first_seen, last_seen, refresh_count`

const upsertSQL = `
INSERT INTO job_postings (id, fingerprint, source, source_id, title, company, location, remote, job_type,
	description, url, search_term, posted_at, enrichment_state, first_seen, last_seen)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 'unenriched', $14, $14)
ON CONFLICT (fingerprint) DO UPDATE SET
	last_seen = GREATEST(job_postings.last_seen, EXCLUDED.last_seen),
	refresh_count = job_postings.refresh_count + 1,
	remote = EXCLUDED.remote,
	url = CASE WHEN EXCLUDED.url <> '' THEN EXCLUDED.url ELSE job_postings.url END,
	posted_at = COALESCE(EXCLUDED.posted_at, job_postings.posted_at),
	description = CASE WHEN EXCLUDED.description <> '' THEN EXCLUDED.description ELSE job_postings.description END,
	enrichment_state = CASE
		WHEN EXCLUDED.description <> '' AND EXCLUDED.description <> job_postings.description
			AND job_postings.enrichment_state = 'enriched' THEN 'unenriched'
		ELSE job_postings.enrichment_state END,
	enrich_attempts = CASE
		WHEN EXCLUDED.description <> '' AND EXCLUDED.description <> job_postings.description
			AND job_postings.enrichment_state = 'enriched' THEN 0
		ELSE job_postings.enrich_attempts END
RETURNING id::text`

func (s *Store) Upsert(ctx context.Context, p *model.Posting) (string, bool, error) {
	if p == nil {
		return "", false, errors.New("posting is required")
	}
	if strings.TrimSpace(p.Title) == "" {
		return "", false, errors.New("posting title is required")
	}

	fp := p.EnsureFingerprint()
	seen := p.LastSeen
	if seen.IsZero() {
		seen = s.now()
	}

	proposed := uuid.NewString()
	var id string
	err := s.pool.QueryRow(ctx, upsertSQL,
		proposed, fp, p.Source, p.SourceID, p.Title, p.Company, p.Location, p.Remote, p.JobType,
		p.Description, p.URL, p.SearchTerm, nullTime(p.PostedAt), seen,
	).Scan(&id)
	if err != nil {
		return "", false, store.Unavailable("upsert posting", err)
	}

	p.ID = id
	return id, id == proposed, nil
}

func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*model.Posting, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE fingerprint = $1`, fingerprint)
	p, err := scanPosting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("find posting", err)
	}
	return p, nil
}

func (s *Store) FindByIDs(ctx context.Context, ids []string) ([]model.Posting, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, store.Unavailable("find postings", err)
	}
	found, err := collectPostings(rows)
	if err != nil {
		return nil, store.Unavailable("find postings", err)
	}

	byID := make(map[string]model.Posting, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	ordered := make([]model.Posting, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	return ordered, nil
}

func (s *Store) Query(ctx context.Context, f model.Filters) ([]model.Posting, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var keywords []string
	for _, kw := range f.Keywords {
		if strings.TrimSpace(kw) == "" {
			continue
		}
		p := arg(store.LikePattern(kw))
		keywords = append(keywords, fmt.Sprintf("(title ILIKE %[1]s OR description ILIKE %[1]s)", p))
	}
	if len(keywords) > 0 {
		where = append(where, "("+strings.Join(keywords, " OR ")+")")
	}

	if loc := strings.TrimSpace(f.Location); loc != "" {
		clause := "location ILIKE " + arg(store.LikePattern(loc))
		if f.IncludeRemote {
			clause = "(" + clause + " OR remote)"
		}
		where = append(where, clause)
	}

	if types := model.NormalizeList(f.JobTypes); len(types) > 0 {
		where = append(where, "LOWER(job_type) = ANY("+arg(types)+")")
	}
	if !f.SeenSince.IsZero() {
		where = append(where, "last_seen >= "+arg(f.SeenSince))
	}
	if f.Enrichment != "" {
		where = append(where, "enrichment_state = "+arg(string(f.Enrichment)))
	}

	query := `SELECT ` + postingColumns + ` FROM job_postings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_seen DESC, fingerprint ASC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, store.Unavailable("query postings", err)
	}
	postings, err := collectPostings(rows)
	if err != nil {
		return nil, store.Unavailable("query postings", err)
	}
	return postings, nil
}

func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("staleness window must be positive, got %d days", days)
	}

	cutoff := store.Cutoff(s.now(), days)
	tag, err := s.pool.Exec(ctx, `DELETE FROM job_postings WHERE last_seen < $1`, cutoff)
	if err != nil {
		return 0, store.Unavailable("purge postings", err)
	}

	s.logger.Debug("purged stale postings", zap.Int64("removed", tag.RowsAffected()), zap.Time("cutoff", cutoff))
	return int(tag.RowsAffected()), nil
}

func (s *Store) ClaimForEnrichment(ctx context.Context, ids []string, limit, maxAttempts int) ([]model.Posting, error) {
	if limit <= 0 {
		limit = len(ids)
	}
	if limit <= 0 {
		return nil, nil
	}

	args := []any{s.now(), limit}
	inner := `SELECT id FROM job_postings WHERE enrichment_state = 'unenriched'`
	if maxAttempts > 0 {
		args = append(args, maxAttempts)
		inner += fmt.Sprintf(` AND enrich_attempts < $%d`, len(args))
	}
	if len(ids) > 0 {
		args = append(args, ids)
		inner += fmt.Sprintf(` AND id::text = ANY($%d)`, len(args))
	}
	inner += ` ORDER BY last_seen DESC LIMIT $2 FOR UPDATE SKIP LOCKED`

	rows, err := s.pool.Query(ctx, `UPDATE job_postings SET enrichment_state = 'enriching', enrich_started_at = $1
WHERE enrichment_state = 'unenriched' AND id IN (`+inner+`)
RETURNING `+postingColumns, args...)
	if err != nil {
		return nil, store.Unavailable("claim postings", err)
	}
	claimed, err := collectPostings(rows)
	if err != nil {
		return nil, store.Unavailable("claim postings", err)
	}
	return claimed, nil
}

func (s *Store) CompleteEnrichment(ctx context.Context, id string, d model.Derived) error {
	skills := d.Skills
	if skills == nil {
		skills = []string{}
	}

	tag, err := s.pool.Exec(ctx, `UPDATE job_postings
SET enrichment_state = 'enriched', skills = $1, industry = $2, company_size = $3, enrich_error = '', enrich_started_at = NULL
WHERE id::text = $4 AND enrichment_state = 'enriching'`, skills, d.Industry, d.CompanySize, id)
	if err != nil {
		return store.Unavailable("complete enrichment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete enrichment %s: %w", id, store.ErrNotClaimed)
	}
	return nil
}

func (s *Store) FailEnrichment(ctx context.Context, id, reason string, countAttempt bool) error {
	inc := 0
	if countAttempt {
		inc = 1
	}

	tag, err := s.pool.Exec(ctx, `UPDATE job_postings
SET enrichment_state = 'unenriched', enrich_error = $1, enrich_attempts = enrich_attempts + $2, enrich_started_at = NULL
WHERE id::text = $3 AND enrichment_state = 'enriching'`, reason, inc, id)
	if err != nil {
		return store.Unavailable("fail enrichment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fail enrichment %s: %w", id, store.ErrNotClaimed)
	}
	return nil
}

func (s *Store) ResetStuckEnrichment(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE job_postings
SET enrichment_state = 'unenriched', enrich_started_at = NULL
WHERE enrichment_state = 'enriching' AND (enrich_started_at IS NULL OR enrich_started_at < $1)`,
		s.now().Add(-olderThan))
	if err != nil {
		return 0, store.Unavailable("reset stuck enrichment", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) Stats(ctx context.Context, staleAfterDays int) (*model.Stats, error) {
	if staleAfterDays <= 0 {
		staleAfterDays = store.DefaultStaleAfterDays
	}

	var (
		stats          model.Stats
		oldest, newest *time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*),
	COUNT(*) FILTER (WHERE enrichment_state = 'unenriched'),
	COUNT(*) FILTER (WHERE enrichment_state = 'enriching'),
	COUNT(*) FILTER (WHERE enrichment_state = 'enriched'),
	COUNT(*) FILTER (WHERE last_seen >= $1),
	MIN(last_seen), MAX(last_seen)
FROM job_postings`, store.Cutoff(s.now(), staleAfterDays)).Scan(
		&stats.Total, &stats.Unenriched, &stats.Enriching, &stats.Enriched, &stats.Fresh, &oldest, &newest,
	)
	if err != nil {
		return nil, store.Unavailable("posting stats", err)
	}

	stats.Stale = stats.Total - stats.Fresh
	stats.FreshnessRatio = store.Ratio(stats.Fresh, stats.Total)
	if oldest != nil {
		stats.OldestSeen = oldest.UTC()
	}
	if newest != nil {
		stats.NewestSeen = newest.UTC()
	}
	return &stats, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return store.Unavailable("ping postgres", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanPosting(row pgx.Row) (*model.Posting, error) {
	var (
		p        model.Posting
		postedAt *time.Time
		state    string
	)

	err := row.Scan(&p.ID, &p.Fingerprint, &p.Source, &p.SourceID, &p.Title, &p.Company, &p.Location,
		&p.Remote, &p.JobType, &p.Description, &p.URL, &p.SearchTerm, &postedAt, &p.Skills, &p.Industry,
		&p.CompanySize, &state, &p.EnrichAttempts, &p.EnrichError, &p.FirstSeen, &p.LastSeen, &p.RefreshCount)
	if err != nil {
		return nil, err
	}

	if postedAt != nil {
		p.PostedAt = postedAt.UTC()
	}
	p.FirstSeen = p.FirstSeen.UTC()
	p.LastSeen = p.LastSeen.UTC()
	p.Enrichment = model.EnrichmentState(state)
	return &p, nil
}

func collectPostings(rows pgx.Rows) ([]model.Posting, error) {
	defer rows.Close()

	var postings []model.Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *p)
	}
	return postings, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
