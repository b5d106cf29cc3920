package model

import "time"

// EvaluationStatus is the terminal state of an evaluation run.
type EvaluationStatus string

const (
	EvaluationCompleted EvaluationStatus = "completed"
	EvaluationPartial   EvaluationStatus = "partial"
	EvaluationFailed    EvaluationStatus = "failed"
	EvaluationCancelled EvaluationStatus = "cancelled"
)

// DetailStatus is the outcome of evaluating a single posting.
type DetailStatus string

const (
	DetailOK          DetailStatus = "ok"
	DetailFailed      DetailStatus = "failed"
	DetailUnavailable DetailStatus = "unavailable"
	DetailCancelled   DetailStatus = "cancelled"
)

// Evaluation is the persisted record of one evaluation run for a profile.
type Evaluation struct {
	ID                 string           `json:"id"`
	ProfileID          string           `json:"profile_id"`
	ProfileFingerprint string           `json:"profile_fingerprint"`
	CreatedAt          time.Time        `json:"created_at"`
	Status             EvaluationStatus `json:"status"`
	Summary            Summary          `json:"summary"`
	Details            []Detail         `json:"details"`
	Plan               *ImprovementPlan `json:"plan,omitempty"`
}

// Summary aggregates the successful details of an evaluation.
type Summary struct {
	JobsEvaluated   int          `json:"jobs_evaluated"`
	Succeeded       int          `json:"succeeded"`
	Failed          int          `json:"failed"`
	AverageScore    *float64     `json:"average_score,omitempty"`
	Distribution    Distribution `json:"distribution"`
	BestMatches     []string     `json:"best_matches,omitempty"`
	CommonStrengths []string     `json:"common_strengths,omitempty"`
	CommonGaps      []string     `json:"common_gaps,omitempty"`
	Text            string       `json:"text"`
}

// Distribution buckets scores into high (>=70), medium (40-69) and low (<40).
type Distribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Detail is the assessment of one posting inside an evaluation. Posting text
// is copied in so the record stays readable after the posting is purged.
type Detail struct {
	PostingID      string       `json:"posting_id,omitempty"`
	Title          string       `json:"title"`
	Company        string       `json:"company"`
	Location       string       `json:"location"`
	URL            string       `json:"url,omitempty"`
	Description    string       `json:"description,omitempty"`
	MatchScore     float64      `json:"match_score"`
	Score          *float64     `json:"score,omitempty"`
	Fit            string       `json:"fit,omitempty"`
	Strengths      []string     `json:"strengths"`
	Gaps           []string     `json:"gaps"`
	Recommendation string       `json:"recommendation"`
	Likelihood     string       `json:"likelihood,omitempty"`
	Status         DetailStatus `json:"status"`
	Error          string       `json:"error,omitempty"`
	Defaulted      []string     `json:"defaulted,omitempty"`
	Raw            string       `json:"raw,omitempty"`
}

// Succeeded reports whether the detail carries a usable assessment.
func (d *Detail) Succeeded() bool {
	return d.Status == DetailOK
}

// ImprovementPlan is the aggregate advice produced after the per-posting assessments.
type ImprovementPlan struct {
	Text        string    `json:"text"`
	Fallback    bool      `json:"fallback"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Stats describes the posting store health.
type Stats struct {
	Total          int       `json:"total"`
	Unenriched     int       `json:"unenriched"`
	Enriching      int       `json:"enriching"`
	Enriched       int       `json:"enriched"`
	Fresh          int       `json:"fresh"`
	Stale          int       `json:"stale"`
	FreshnessRatio float64   `json:"freshness_ratio"`
	OldestSeen     time.Time `json:"oldest_seen,omitempty"`
	NewestSeen     time.Time `json:"newest_seen,omitempty"`
}
