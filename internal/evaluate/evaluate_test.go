package evaluate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
)

type stubReasoner struct {
	mu     sync.Mutex
	calls  int
	assess func(ctx context.Context, prompt string) (string, error)
	plan   func() (string, error)
}

func (s *stubReasoner) GenerateContent(ctx context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if system == planSystemPrompt {
		if s.plan == nil {
			return "Focus on SQL.", nil
		}
		return s.plan()
	}
	return s.assess(ctx, prompt)
}

type recordingSaver struct {
	mu    sync.Mutex
	saved []*model.Evaluation
	err   error
}

func (r *recordingSaver) SaveEvaluation(_ context.Context, e *model.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, e)
	return r.err
}

func testProfile() *profile.Profile {
	p := &profile.Profile{
		ID:          "anna",
		Skills:      []string{"sql", "python"},
		TargetRoles: []string{"data analyst"},
		Field:       "Data",
		Experience:  "2 years",
	}
	p.Normalize()
	return p
}

func shortlist(n int) []match.Result {
	out := make([]match.Result, n)
	for i := range out {
		out[i] = match.Result{
			Posting: model.Posting{
				ID:          fmt.Sprintf("id-%02d", i+1),
				Title:       fmt.Sprintf("Role %02d", i+1),
				Company:     "Acme",
				Location:    "Copenhagen",
				Description: strings.Repeat("x", 1000),
			},
			Score: 1 - float64(i)/100,
			Rank:  i + 1,
		}
	}
	return out
}

func goodAnswer(score int) string {
	return fmt.Sprintf(`{"score": %d, "fit": "Good", "strengths": ["SQL"], "gaps": ["Tableau"], "recommendation": "Apply.", "likelihood": "High"}`, score)
}

func TestEvaluateIsolatesFailures(t *testing.T) {
	t.Parallel()

	failing := map[string]bool{"Role 02": true, "Role 05": true, "Role 09": true}
	reasoner := &stubReasoner{assess: func(_ context.Context, prompt string) (string, error) {
		for title := range failing {
			if strings.Contains(prompt, "Title: "+title+"\n") {
				return "", errors.New("upstream error")
			}
		}
		return goodAnswer(75), nil
	}}
	saver := &recordingSaver{}
	ev := New(reasoner, saver, Config{}, zap.NewNop())

	eval, err := ev.Evaluate(context.Background(), testProfile(), shortlist(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if eval.Status != model.EvaluationPartial {
		t.Fatalf("expected partial status, got %s", eval.Status)
	}
	if len(eval.Details) != 10 {
		t.Fatalf("expected 10 details, got %d", len(eval.Details))
	}
	if eval.Summary.Succeeded != 7 || eval.Summary.Failed != 3 {
		t.Fatalf("expected 7 succeeded and 3 failed, got %+v", eval.Summary)
	}
	for _, d := range eval.Details {
		if failing[d.Title] {
			if d.Status != model.DetailFailed || d.Error == "" {
				t.Fatalf("expected %s to carry a failure marker, got %+v", d.Title, d)
			}
			continue
		}
		if d.Status != model.DetailOK || d.Score == nil || *d.Score != 75 {
			t.Fatalf("expected %s to be assessed, got %+v", d.Title, d)
		}
	}
	if got := *eval.Summary.AverageScore; got != 75 {
		t.Fatalf("expected average 75 over successful details, got %v", got)
	}
	if eval.Plan == nil || eval.Plan.Fallback || eval.Plan.Text != "Focus on SQL." {
		t.Fatalf("expected the generated plan, got %+v", eval.Plan)
	}
	if len(saver.saved) != 1 || saver.saved[0] != eval {
		t.Fatalf("expected the evaluation to be saved once")
	}
	if eval.ProfileFingerprint != testProfile().Fingerprint() {
		t.Fatalf("expected the profile fingerprint on the record")
	}
}

func TestEvaluateTakesTopNAndSnapshotsText(t *testing.T) {
	t.Parallel()

	reasoner := &stubReasoner{assess: func(context.Context, string) (string, error) { return goodAnswer(60), nil }}
	ev := New(reasoner, nil, Config{TopN: 3, MaxDescriptionRunes: 100}, zap.NewNop())

	eval, err := ev.Evaluate(context.Background(), testProfile(), shortlist(12))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eval.Details) != 3 {
		t.Fatalf("expected 3 details, got %d", len(eval.Details))
	}
	d := eval.Details[0]
	if d.PostingID != "id-01" || d.MatchScore != 1 {
		t.Fatalf("expected the first shortlist entry, got %+v", d)
	}
	if len([]rune(d.Description)) != 103 || !strings.HasSuffix(d.Description, "...") {
		t.Fatalf("expected the scored description to be truncated, got %d runes", len([]rune(d.Description)))
	}
	if eval.Status != model.EvaluationCompleted {
		t.Fatalf("expected completed status, got %s", eval.Status)
	}
}

func TestEvaluateCancellationRecordsInFlightCalls(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	reasoner := &stubReasoner{assess: func(ctx context.Context, _ string) (string, error) {
		once.Do(func() { close(started) })
		<-release
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return goodAnswer(80), nil
	}}
	saver := &recordingSaver{}
	ev := New(reasoner, saver, Config{Concurrency: 1}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		eval *model.Evaluation
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		eval, err := ev.Evaluate(ctx, testProfile(), shortlist(5))
		done <- outcome{eval, err}
	}()

	<-started
	cancel()
	close(release)

	var res outcome
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("evaluation did not return after cancellation")
	}
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}

	eval := res.eval
	if eval.Status != model.EvaluationCancelled {
		t.Fatalf("expected cancelled status, got %s", eval.Status)
	}
	if eval.Details[0].Status != model.DetailOK {
		t.Fatalf("expected the in-flight call to be recorded, got %+v", eval.Details[0])
	}
	for _, d := range eval.Details[1:] {
		if d.Status != model.DetailCancelled {
			t.Fatalf("expected remaining postings to be cancelled, got %+v", d)
		}
	}
	if eval.Plan == nil || !eval.Plan.Fallback {
		t.Fatalf("expected a fallback plan after cancellation")
	}
	if len(saver.saved) != 1 {
		t.Fatalf("expected the cancelled evaluation to be saved")
	}
}

func TestEvaluateRecordsUnavailablePostings(t *testing.T) {
	t.Parallel()

	reasoner := &stubReasoner{assess: func(context.Context, string) (string, error) { return goodAnswer(50), nil }}
	ev := New(reasoner, nil, Config{}, zap.NewNop())

	eval, err := ev.Evaluate(context.Background(), testProfile(), shortlist(1), "gone-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eval.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(eval.Details))
	}
	missing := eval.Details[1]
	if missing.Status != model.DetailUnavailable || missing.Error != "posting unavailable" || missing.PostingID != "gone-1" {
		t.Fatalf("unexpected unavailable detail: %+v", missing)
	}
	if eval.Status != model.EvaluationPartial {
		t.Fatalf("expected partial status, got %s", eval.Status)
	}
}

func TestEvaluateMalformedAnswerFailsOnlyThatPosting(t *testing.T) {
	t.Parallel()

	reasoner := &stubReasoner{assess: func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Title: Role 01\n") {
			return "I am unable to assess this posting.", nil
		}
		return goodAnswer(40), nil
	}}
	ev := New(reasoner, nil, Config{}, zap.NewNop())

	eval, err := ev.Evaluate(context.Background(), testProfile(), shortlist(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eval.Details[0].Status != model.DetailFailed || !strings.Contains(eval.Details[0].Error, "malformed") {
		t.Fatalf("expected a malformed failure, got %+v", eval.Details[0])
	}
	if eval.Details[0].Raw == "" {
		t.Fatalf("expected the raw answer to be kept for audit")
	}
	if eval.Details[1].Status != model.DetailOK {
		t.Fatalf("expected the second posting to succeed, got %+v", eval.Details[1])
	}
}

func TestEvaluateFallsBackWhenPlanFails(t *testing.T) {
	t.Parallel()

	reasoner := &stubReasoner{
		assess: func(context.Context, string) (string, error) { return goodAnswer(30), nil },
		plan:   func() (string, error) { return "", errors.New("quota exceeded") },
	}
	ev := New(reasoner, nil, Config{}, zap.NewNop())

	eval, err := ev.Evaluate(context.Background(), testProfile(), shortlist(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !eval.Plan.Fallback || !strings.Contains(eval.Plan.Text, "Tableau") {
		t.Fatalf("expected a fallback plan naming the common gap, got %+v", eval.Plan)
	}
}

func TestEvaluateReturnsRecordWhenSaveFails(t *testing.T) {
	t.Parallel()

	reasoner := &stubReasoner{assess: func(context.Context, string) (string, error) { return goodAnswer(90), nil }}
	saver := &recordingSaver{err: errors.New("disk full")}
	ev := New(reasoner, saver, Config{}, zap.NewNop())

	eval, err := ev.Evaluate(context.Background(), testProfile(), shortlist(1))
	if err == nil {
		t.Fatalf("expected the save error")
	}
	if eval == nil || eval.Status != model.EvaluationCompleted {
		t.Fatalf("expected the built record with the error, got %+v", eval)
	}
}
