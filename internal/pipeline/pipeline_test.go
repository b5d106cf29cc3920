package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/acquire"
	"github.com/skillscope/skillscope/internal/evaluate"
	"github.com/skillscope/skillscope/internal/filtering"
	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
	"github.com/skillscope/skillscope/internal/source"
	"github.com/skillscope/skillscope/internal/store/sqlite"
)

type stubAcquirer struct {
	mu      sync.Mutex
	byQuery map[string][]model.Posting
	err     error
	seen    []source.Query
}

func (s *stubAcquirer) Acquire(_ context.Context, q source.Query) (*acquire.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, q)
	if s.err != nil {
		return nil, s.err
	}
	postings := append([]model.Posting(nil), s.byQuery[q.Keywords]...)
	return &acquire.Result{Query: q, Live: true, Postings: postings, Inserted: len(postings)}, nil
}

type stubReasoner struct{}

func (stubReasoner) GenerateContent(context.Context, string, string) (string, error) {
	return `{"score": 80, "fit": "Good", "strengths": ["SQL"], "gaps": [], "recommendation": "Apply.", "likelihood": "High"}`, nil
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newPipeline(t *testing.T, st *sqlite.Store, acq Acquirer, cfg Config) *Pipeline {
	t.Helper()
	m, err := match.New(match.DefaultConfig())
	require.NoError(t, err)
	p, err := New(Deps{
		Store:     st,
		Acquirer:  acq,
		Matcher:   m,
		Evaluator: evaluate.New(stubReasoner{}, st, evaluate.Config{}, zap.NewNop()),
	}, cfg, zap.NewNop())
	require.NoError(t, err)
	return p
}

func analyst() *profile.Profile {
	return &profile.Profile{
		ID:          "anna",
		Skills:      []string{"SQL", "Python"},
		TargetRoles: []string{"Data Analyst", "BI Developer"},
		Locations:   []string{"Copenhagen"},
	}
}

func posting(title, company string) model.Posting {
	return model.Posting{
		Title:       title,
		Company:     company,
		Location:    "Copenhagen",
		Description: "SQL and Python reporting",
		PostedAt:    time.Now().UTC(),
	}
}

func elsewhere(p model.Posting) model.Posting {
	p.Location = "Berlin"
	return p
}

func TestQueries(t *testing.T) {
	p := analyst()
	p.Locations = []string{"copenhagen", "aarhus"}

	qs := Queries(p, 3, 25)
	require.Len(t, qs, 3)
	require.Equal(t, "data analyst", qs[0].Keywords)
	require.Equal(t, "copenhagen", qs[0].Location)
	require.Equal(t, "aarhus", qs[1].Location)
	require.Equal(t, "bi developer", qs[2].Keywords)
	require.Equal(t, 25, qs[2].Limit)

	mixed := &profile.Profile{ID: "m", TargetRoles: []string{" Data  Analyst", "data analyst"}, Locations: []string{"Copenhagen"}}
	qs = Queries(mixed, 10, 5)
	require.Len(t, qs, 1)
	require.Equal(t, "copenhagen", qs[0].Location)

	skillsOnly := &profile.Profile{ID: "x", Skills: []string{"Go", "sql", "k8s", "aws"}}
	qs = Queries(skillsOnly, 10, 5)
	require.Len(t, qs, 3)
	require.Equal(t, "go", qs[0].Keywords)
	require.Empty(t, qs[0].Location)
}

func TestSearchMergesFiltersAndRanks(t *testing.T) {
	st := openStore(t)
	acq := &stubAcquirer{byQuery: map[string][]model.Posting{
		"data analyst": {posting("Data Analyst", "Acme"), posting("Data Analyst Unpaid Intern", "Shady")},
		"bi developer": {elsewhere(posting("BI Developer", "Globex")), posting("Data Analyst", "Acme")},
	}}
	cfg := DefaultConfig()
	cfg.Filters = filtering.Config{RedFlags: []string{"unpaid"}}
	pl := newPipeline(t, st, acq, cfg)

	res, err := pl.Search(context.Background(), analyst())
	require.NoError(t, err)
	require.Equal(t, "anna", res.ProfileID)
	require.Len(t, res.Queries, 2)
	require.Len(t, res.Results, 2)
	require.Equal(t, 1, res.Results[0].Rank)
	require.Equal(t, "Data Analyst", res.Results[0].Posting.Title)

	var redFlags *filtering.Report
	for i := range res.Filters {
		if res.Filters[i].Name == "red_flags" {
			redFlags = &res.Filters[i]
		}
	}
	require.NotNil(t, redFlags)
	require.Equal(t, 3, redFlags.Initial)
	require.Equal(t, 2, redFlags.Left)
}

func TestSearchRejectsInvalidProfile(t *testing.T) {
	pl := newPipeline(t, openStore(t), &stubAcquirer{}, DefaultConfig())

	_, err := pl.Search(context.Background(), &profile.Profile{ID: "empty"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = pl.Search(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSearchFailsOnAcquisitionError(t *testing.T) {
	boom := errors.New("store is down")
	pl := newPipeline(t, openStore(t), &stubAcquirer{err: boom}, DefaultConfig())

	_, err := pl.Search(context.Background(), analyst())
	require.ErrorIs(t, err, boom)
}

func TestSearchDoesNotMutateProfile(t *testing.T) {
	st := openStore(t)
	pl := newPipeline(t, st, &stubAcquirer{byQuery: map[string][]model.Posting{}}, DefaultConfig())

	p := analyst()
	_, err := pl.Search(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, []string{"SQL", "Python"}, p.Skills)
}

func TestEvaluateByIDsRejectsMoreThanTopN(t *testing.T) {
	pl := newPipeline(t, openStore(t), &stubAcquirer{}, DefaultConfig())

	ids := make([]string, 0, 11)
	for i := range 11 {
		ids = append(ids, fmt.Sprintf("job-%d", i))
	}
	_, err := pl.Evaluate(context.Background(), analyst(), ids)
	require.ErrorIs(t, err, ErrInvalidInput)

	// Duplicates count once.
	_, err = pl.Evaluate(context.Background(), analyst(), append(ids[:10], ids[0]))
	require.NoError(t, err)
}

func TestEvaluateByIDsRecordsMissingPostings(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	first := posting("Data Analyst", "Acme")
	second := posting("BI Developer", "Globex")
	id1, _, err := st.Upsert(ctx, &first)
	require.NoError(t, err)
	id2, _, err := st.Upsert(ctx, &second)
	require.NoError(t, err)

	pl := newPipeline(t, st, &stubAcquirer{}, DefaultConfig())

	eval, err := pl.Evaluate(ctx, analyst(), []string{id2, "gone", id1, id2})
	require.NoError(t, err)
	require.Len(t, eval.Details, 3)
	require.Equal(t, id2, eval.Details[0].PostingID)
	require.Equal(t, id1, eval.Details[1].PostingID)
	require.Equal(t, "gone", eval.Details[2].PostingID)
	require.Equal(t, model.DetailUnavailable, eval.Details[2].Status)
	require.Equal(t, model.EvaluationPartial, eval.Status)

	latest, err := pl.LatestEvaluation(ctx, "anna")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, eval.ID, latest.ID)
}

func TestEvaluateWithoutIDsSearchesFirst(t *testing.T) {
	st := openStore(t)
	acq := &stubAcquirer{byQuery: map[string][]model.Posting{
		"data analyst": {posting("Data Analyst", "Acme")},
	}}
	pl := newPipeline(t, st, acq, DefaultConfig())

	eval, err := pl.Evaluate(context.Background(), analyst(), nil)
	require.NoError(t, err)
	require.Equal(t, model.EvaluationCompleted, eval.Status)
	require.Len(t, eval.Details, 1)
	require.NotEmpty(t, acq.seen)
}

func TestPurgeStaleAndHealth(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	fresh := posting("Data Analyst", "Acme")
	old := posting("Old Role", "Acme")
	old.LastSeen = time.Now().UTC().AddDate(0, 0, -40)
	_, _, err := st.Upsert(ctx, &fresh)
	require.NoError(t, err)
	_, _, err = st.Upsert(ctx, &old)
	require.NoError(t, err)

	pl := newPipeline(t, st, &stubAcquirer{}, DefaultConfig())

	removed, err := pl.PurgeStale(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	stats, err := pl.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)

	_, err = pl.TriggerEnrichment(ctx, 5)
	require.ErrorIs(t, err, ErrNotConfigured)

	_, err = pl.LatestEvaluation(ctx, "")
	require.ErrorIs(t, err, ErrInvalidInput)
}
