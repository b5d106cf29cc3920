package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/store"
)

// SaveEvaluation writes the evaluation and all its details in one transaction.
func (s *Store) SaveEvaluation(ctx context.Context, e *model.Evaluation) error {
	if e == nil {
		return errors.New("evaluation is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return store.Unavailable("begin evaluation", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO cv_job_evaluations
	(id, profile_id, profile_fingerprint, status, jobs_evaluated, average_score, summary, plan, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ProfileID, e.ProfileFingerprint, string(e.Status), e.Summary.JobsEvaluated,
		e.Summary.AverageScore, e.Summary, e.Plan, e.CreatedAt,
	); err != nil {
		return store.Unavailable("save evaluation", err)
	}

	batch := &pgx.Batch{}
	for i, d := range e.Details {
		batch.Queue(`INSERT INTO job_evaluation_details
	(evaluation_id, position, job_posting_id, title, company, location, url, description, match_score, score,
	fit, strengths, gaps, recommendation, likelihood, status, error, defaulted, raw)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			e.ID, i, d.PostingID, d.Title, d.Company, d.Location, d.URL, d.Description, d.MatchScore, d.Score,
			d.Fit, nonNil(d.Strengths), nonNil(d.Gaps), d.Recommendation, d.Likelihood, string(d.Status),
			d.Error, nonNil(d.Defaulted), d.Raw)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return store.Unavailable("save evaluation details", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Unavailable("commit evaluation", err)
	}

	s.logger.Debug("evaluation saved",
		zap.String("evaluation_id", e.ID),
		zap.String("profile_id", e.ProfileID),
		zap.Int("details", len(e.Details)),
	)
	return nil
}

// LatestEvaluation returns the most recent evaluation of the profile, or nil.
func (s *Store) LatestEvaluation(ctx context.Context, profileID string) (*model.Evaluation, error) {
	var (
		e      model.Evaluation
		status string
		avg    *float64
	)

	err := s.pool.QueryRow(ctx, `SELECT id::text, profile_id, profile_fingerprint, status, average_score,
	summary, plan, created_at
FROM cv_job_evaluations WHERE profile_id = $1 ORDER BY created_at DESC LIMIT 1`, profileID).Scan(
		&e.ID, &e.ProfileID, &e.ProfileFingerprint, &status, &avg, &e.Summary, &e.Plan, &e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("latest evaluation", err)
	}
	e.Status = model.EvaluationStatus(status)
	e.Summary.AverageScore = avg
	e.CreatedAt = e.CreatedAt.UTC()

	rows, err := s.pool.Query(ctx, `SELECT job_posting_id, title, company, location, url, description,
	match_score, score, fit, strengths, gaps, recommendation, likelihood, status, error, defaulted, raw
FROM job_evaluation_details WHERE evaluation_id = $1 ORDER BY position`, e.ID)
	if err != nil {
		return nil, store.Unavailable("load evaluation details", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			d      model.Detail
			status string
		)
		if err := rows.Scan(&d.PostingID, &d.Title, &d.Company, &d.Location, &d.URL, &d.Description,
			&d.MatchScore, &d.Score, &d.Fit, &d.Strengths, &d.Gaps, &d.Recommendation, &d.Likelihood, &status,
			&d.Error, &d.Defaulted, &d.Raw); err != nil {
			return nil, store.Unavailable("load evaluation details", err)
		}
		d.Status = model.DetailStatus(status)
		e.Details = append(e.Details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("load evaluation details", err)
	}
	return &e, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
