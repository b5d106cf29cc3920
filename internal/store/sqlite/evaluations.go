package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/store"
)

const insertEvaluationSQL = `INSERT INTO cv_job_evaluations
	(id, profile_id, profile_fingerprint, status, jobs_evaluated, average_score, summary, plan, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertDetailSQL = `INSERT INTO job_evaluation_details
	(evaluation_id, position, job_posting_id, title, company, location, url, description, match_score, score,
	fit, strengths, gaps, recommendation, likelihood, status, error, defaulted, raw)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SaveEvaluation writes the evaluation and all its details in one transaction.
func (s *Store) SaveEvaluation(ctx context.Context, e *model.Evaluation) error {
	if e == nil {
		return errors.New("evaluation is required")
	}
	if e.ID == "" {
		e.ID = s.newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}

	summary, err := json.Marshal(e.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	var plan sql.NullString
	if e.Plan != nil {
		raw, err := json.Marshal(e.Plan)
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		plan = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Unavailable("begin evaluation", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertEvaluationSQL,
		e.ID, e.ProfileID, e.ProfileFingerprint, string(e.Status), e.Summary.JobsEvaluated,
		nullFloat(e.Summary.AverageScore), string(summary), plan, toMillis(e.CreatedAt),
	); err != nil {
		return store.Unavailable("save evaluation", err)
	}

	for i, d := range e.Details {
		strengths, gaps, defaulted, err := marshalLists(d)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertDetailSQL,
			e.ID, i, d.PostingID, d.Title, d.Company, d.Location, d.URL, d.Description, d.MatchScore,
			nullFloat(d.Score), d.Fit, strengths, gaps, d.Recommendation, d.Likelihood, string(d.Status),
			d.Error, defaulted, d.Raw,
		); err != nil {
			return store.Unavailable("save evaluation detail", err)
		}
	}

	if err := tx.Commit(); err != nil {
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
		e         model.Evaluation
		status    string
		avg       sql.NullFloat64
		summary   string
		plan      sql.NullString
		createdAt int64
		evaluated int
	)

	err := s.db.QueryRowContext(ctx, `SELECT id, profile_id, profile_fingerprint, status, jobs_evaluated,
	average_score, summary, plan, created_at
FROM cv_job_evaluations WHERE profile_id = ? ORDER BY created_at DESC LIMIT 1`, profileID).Scan(
		&e.ID, &e.ProfileID, &e.ProfileFingerprint, &status, &evaluated, &avg, &summary, &plan, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("latest evaluation", err)
	}

	e.Status = model.EvaluationStatus(status)
	e.CreatedAt = fromMillis(createdAt)
	if err := json.Unmarshal([]byte(summary), &e.Summary); err != nil {
		return nil, fmt.Errorf("decode summary of evaluation %s: %w", e.ID, err)
	}
	e.Summary.JobsEvaluated = evaluated
	if avg.Valid {
		v := avg.Float64
		e.Summary.AverageScore = &v
	}
	if plan.Valid {
		e.Plan = &model.ImprovementPlan{}
		if err := json.Unmarshal([]byte(plan.String), e.Plan); err != nil {
			return nil, fmt.Errorf("decode plan of evaluation %s: %w", e.ID, err)
		}
	}

	details, err := s.loadDetails(ctx, e.ID)
	if err != nil {
		return nil, err
	}
	e.Details = details
	return &e, nil
}

func (s *Store) loadDetails(ctx context.Context, evaluationID string) ([]model.Detail, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_posting_id, title, company, location, url, description,
	match_score, score, fit, strengths, gaps, recommendation, likelihood, status, error, defaulted, raw
FROM job_evaluation_details WHERE evaluation_id = ? ORDER BY position`, evaluationID)
	if err != nil {
		return nil, store.Unavailable("load evaluation details", err)
	}
	defer rows.Close()

	var details []model.Detail
	for rows.Next() {
		var (
			d                          model.Detail
			score                      sql.NullFloat64
			status                     string
			strengths, gaps, defaulted string
		)
		if err := rows.Scan(&d.PostingID, &d.Title, &d.Company, &d.Location, &d.URL, &d.Description,
			&d.MatchScore, &score, &d.Fit, &strengths, &gaps, &d.Recommendation, &d.Likelihood, &status,
			&d.Error, &defaulted, &d.Raw); err != nil {
			return nil, store.Unavailable("load evaluation details", err)
		}
		if score.Valid {
			v := score.Float64
			d.Score = &v
		}
		d.Status = model.DetailStatus(status)
		for _, target := range []struct {
			raw string
			dst *[]string
		}{{strengths, &d.Strengths}, {gaps, &d.Gaps}, {defaulted, &d.Defaulted}} {
			if err := json.Unmarshal([]byte(target.raw), target.dst); err != nil {
				return nil, fmt.Errorf("decode evaluation detail lists: %w", err)
			}
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("load evaluation details", err)
	}
	return details, nil
}

func marshalLists(d model.Detail) (string, string, string, error) {
	var out [3]string
	for i, list := range [][]string{d.Strengths, d.Gaps, d.Defaulted} {
		raw, err := json.Marshal(nonNil(list))
		if err != nil {
			return "", "", "", fmt.Errorf("marshal detail lists: %w", err)
		}
		out[i] = string(raw)
	}
	return out[0], out[1], out[2], nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
