// Package sqlite implements the posting store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	driverName = "sqlite"
	dialect    = "sqlite3"
)

// Store is a store.Store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

var _ store.Store = (*Store)(nil)

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for last_seen and purge cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string, logger *zap.Logger, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, store.Unavailable("open sqlite", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, store.Unavailable("ping sqlite", err)
	}

	if err := store.Migrate(ctx, db, migrations, "migrations", dialect, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	// SQLite has a single writer; one connection avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	return New(db, logger, opts...), nil
}

// New wraps an already opened database. Migrations are not applied.
func New(db *sql.DB, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

const postingColumns = `id, fingerprint, source, source_id, title, company, location, remote, job_type,
	description, url, search_term, posted_at, skills, industry, company_size, enrichment_state,
	enrich_attempts, enrich_error, first_seen, last_seen, refresh_count`

const upsertSQL = `
INSERT INTO job_postings (id, fingerprint, source, source_id, title, company, location, remote, job_type,
	description, url, search_term, posted_at, enrichment_state, first_seen, last_seen)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'unenriched', ?, ?)
ON CONFLICT (fingerprint) DO UPDATE SET
	last_seen = MAX(job_postings.last_seen, excluded.last_seen),
	refresh_count = job_postings.refresh_count + 1,
	remote = excluded.remote,
	url = CASE WHEN excluded.url <> '' THEN excluded.url ELSE job_postings.url END,
	posted_at = COALESCE(excluded.posted_at, job_postings.posted_at),
	description = CASE WHEN excluded.description <> '' THEN excluded.description ELSE job_postings.description END,
	enrichment_state = CASE
		WHEN excluded.description <> '' AND excluded.description <> job_postings.description
			AND job_postings.enrichment_state = 'enriched' THEN 'unenriched'
		ELSE job_postings.enrichment_state END,
	enrich_attempts = CASE
		WHEN excluded.description <> '' AND excluded.description <> job_postings.description
			AND job_postings.enrichment_state = 'enriched' THEN 0
		ELSE job_postings.enrich_attempts END
RETURNING id`

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

	proposed := s.newID()
	var id string
	err := s.db.QueryRowContext(ctx, upsertSQL,
		proposed, fp, p.Source, p.SourceID, p.Title, p.Company, p.Location, p.Remote, p.JobType,
		p.Description, p.URL, p.SearchTerm, nullMillis(p.PostedAt), toMillis(seen), toMillis(seen),
	).Scan(&id)
	if err != nil {
		return "", false, store.Unavailable("upsert posting", err)
	}

	p.ID = id
	return id, id == proposed, nil
}

func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) (*model.Posting, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postingColumns+` FROM job_postings WHERE fingerprint = ?`, fingerprint)
	p, err := scanPosting(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	query := `SELECT ` + postingColumns + ` FROM job_postings WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, anySlice(ids)...)
	if err != nil {
		return nil, store.Unavailable("find postings", err)
	}
	found, err := scanPostings(rows)
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

	if len(f.Keywords) > 0 {
		var clauses []string
		for _, kw := range f.Keywords {
			if strings.TrimSpace(kw) == "" {
				continue
			}
			pattern := store.LikePattern(kw)
			clauses = append(clauses, `(LOWER(title) LIKE ? ESCAPE '\' OR LOWER(description) LIKE ? ESCAPE '\')`)
			args = append(args, pattern, pattern)
		}
		if len(clauses) > 0 {
			where = append(where, "("+strings.Join(clauses, " OR ")+")")
		}
	}

	if loc := strings.TrimSpace(f.Location); loc != "" {
		clause := `LOWER(location) LIKE ? ESCAPE '\'`
		if f.IncludeRemote {
			clause = "(" + clause + " OR remote = 1)"
		}
		where = append(where, clause)
		args = append(args, store.LikePattern(loc))
	}

	if types := model.NormalizeList(f.JobTypes); len(types) > 0 {
		where = append(where, "LOWER(job_type) IN ("+placeholders(len(types))+")")
		args = append(args, anySlice(types)...)
	}

	if !f.SeenSince.IsZero() {
		where = append(where, "last_seen >= ?")
		args = append(args, toMillis(f.SeenSince))
	}

	if f.Enrichment != "" {
		where = append(where, "enrichment_state = ?")
		args = append(args, string(f.Enrichment))
	}

	query := `SELECT ` + postingColumns + ` FROM job_postings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY last_seen DESC, fingerprint ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Unavailable("query postings", err)
	}
	postings, err := scanPostings(rows)
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_postings WHERE last_seen < ?`, toMillis(cutoff))
	if err != nil {
		return 0, store.Unavailable("purge postings", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Unavailable("purge postings", err)
	}

	s.logger.Debug("purged stale postings", zap.Int64("removed", n), zap.Time("cutoff", cutoff))
	return int(n), nil
}

func (s *Store) ClaimForEnrichment(ctx context.Context, ids []string, limit, maxAttempts int) ([]model.Posting, error) {
	if limit <= 0 {
		limit = len(ids)
	}
	if limit <= 0 {
		return nil, nil
	}

	args := []any{toMillis(s.now())}
	inner := `SELECT id FROM job_postings WHERE enrichment_state = 'unenriched'`
	if maxAttempts > 0 {
		inner += ` AND enrich_attempts < ?`
		args = append(args, maxAttempts)
	}
	if len(ids) > 0 {
		inner += ` AND id IN (` + placeholders(len(ids)) + `)`
		args = append(args, anySlice(ids)...)
	}
	inner += ` ORDER BY last_seen DESC LIMIT ?`
	args = append(args, limit)

	query := `UPDATE job_postings SET enrichment_state = 'enriching', enrich_started_at = ?
WHERE enrichment_state = 'unenriched' AND id IN (` + inner + `)
RETURNING ` + postingColumns

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, store.Unavailable("claim postings", err)
	}
	claimed, err := scanPostings(rows)
	if err != nil {
		return nil, store.Unavailable("claim postings", err)
	}
	return claimed, nil
}

func (s *Store) CompleteEnrichment(ctx context.Context, id string, d model.Derived) error {
	skills, err := json.Marshal(nonNil(d.Skills))
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE job_postings
SET enrichment_state = 'enriched', skills = ?, industry = ?, company_size = ?, enrich_error = '', enrich_started_at = NULL
WHERE id = ? AND enrichment_state = 'enriching'`, string(skills), d.Industry, d.CompanySize, id)
	if err != nil {
		return store.Unavailable("complete enrichment", err)
	}
	return requireAffected(res, "complete enrichment", id)
}

func (s *Store) FailEnrichment(ctx context.Context, id, reason string, countAttempt bool) error {
	inc := 0
	if countAttempt {
		inc = 1
	}

	res, err := s.db.ExecContext(ctx, `UPDATE job_postings
SET enrichment_state = 'unenriched', enrich_error = ?, enrich_attempts = enrich_attempts + ?, enrich_started_at = NULL
WHERE id = ? AND enrichment_state = 'enriching'`, reason, inc, id)
	if err != nil {
		return store.Unavailable("fail enrichment", err)
	}
	return requireAffected(res, "fail enrichment", id)
}

func (s *Store) ResetStuckEnrichment(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `UPDATE job_postings
SET enrichment_state = 'unenriched', enrich_started_at = NULL
WHERE enrichment_state = 'enriching' AND (enrich_started_at IS NULL OR enrich_started_at < ?)`, toMillis(cutoff))
	if err != nil {
		return 0, store.Unavailable("reset stuck enrichment", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.Unavailable("reset stuck enrichment", err)
	}
	return int(n), nil
}

func (s *Store) Stats(ctx context.Context, staleAfterDays int) (*model.Stats, error) {
	if staleAfterDays <= 0 {
		staleAfterDays = store.DefaultStaleAfterDays
	}
	cutoff := store.Cutoff(s.now(), staleAfterDays)

	var (
		stats          model.Stats
		oldest, newest sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*),
	COALESCE(SUM(CASE WHEN enrichment_state = 'unenriched' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN enrichment_state = 'enriching' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN enrichment_state = 'enriched' THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN last_seen >= ? THEN 1 ELSE 0 END), 0),
	MIN(last_seen), MAX(last_seen)
FROM job_postings`, toMillis(cutoff)).Scan(
		&stats.Total, &stats.Unenriched, &stats.Enriching, &stats.Enriched, &stats.Fresh, &oldest, &newest,
	)
	if err != nil {
		return nil, store.Unavailable("posting stats", err)
	}

	stats.Stale = stats.Total - stats.Fresh
	stats.FreshnessRatio = store.Ratio(stats.Fresh, stats.Total)
	if oldest.Valid {
		stats.OldestSeen = fromMillis(oldest.Int64)
	}
	if newest.Valid {
		stats.NewestSeen = fromMillis(newest.Int64)
	}
	return &stats, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return store.Unavailable("ping sqlite", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosting(row scanner) (*model.Posting, error) {
	var (
		p                   model.Posting
		postedAt            sql.NullInt64
		skills, state       string
		firstSeen, lastSeen int64
	)

	err := row.Scan(&p.ID, &p.Fingerprint, &p.Source, &p.SourceID, &p.Title, &p.Company, &p.Location,
		&p.Remote, &p.JobType, &p.Description, &p.URL, &p.SearchTerm, &postedAt, &skills, &p.Industry,
		&p.CompanySize, &state, &p.EnrichAttempts, &p.EnrichError, &firstSeen, &lastSeen, &p.RefreshCount)
	if err != nil {
		return nil, err
	}

	if postedAt.Valid {
		p.PostedAt = fromMillis(postedAt.Int64)
	}
	if skills != "" {
		if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
			return nil, fmt.Errorf("decode skills of posting %s: %w", p.ID, err)
		}
	}
	p.Enrichment = model.EnrichmentState(state)
	p.FirstSeen = fromMillis(firstSeen)
	p.LastSeen = fromMillis(lastSeen)
	return &p, nil
}

func scanPostings(rows *sql.Rows) ([]model.Posting, error) {
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

func requireAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return store.Unavailable(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, store.ErrNotClaimed)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(t), Valid: true}
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
