package evaluate

import (
	"errors"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	a, err := Decode("Here you go:\n```json\n{\"match_score\": \"0.82\", \"overall_fit\": \"Good\", \"strengths\": \"SQL\", \"critical_gaps\": [\"Tableau\", \"Power BI\"], \"recommendations\": [\"Apply\", \"soon.\"], \"likelihood\": \"High chance\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Score == nil || *a.Score != 82 {
		t.Fatalf("expected fractional score scaled to 82, got %v", a.Score)
	}
	if a.Fit != "Good" || a.Likelihood != "high" || a.Recommendation != "Apply soon." {
		t.Fatalf("unexpected assessment: %+v", a)
	}
	if len(a.Strengths) != 1 || a.Strengths[0] != "SQL" || len(a.Gaps) != 2 {
		t.Fatalf("unexpected lists: %+v", a)
	}
	if len(a.Defaulted) != 0 {
		t.Fatalf("expected no defaulted fields, got %v", a.Defaulted)
	}
}

func TestDecodeSections(t *testing.T) {
	t.Parallel()

	raw := `JOB_1:
MATCH_SCORE: 75
OVERALL_FIT: Good
STRENGTHS: Excellent Python skills
CRITICAL_GAPS: None identified - strong alignment
MINOR_GAPS: Public speaking
RECOMMENDATIONS: Emphasize Python projects
LIKELIHOOD: Medium`

	a, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Score == nil || *a.Score != 75 {
		t.Fatalf("expected score 75, got %v", a.Score)
	}
	if len(a.Gaps) != 0 {
		t.Fatalf("expected 'none identified' to give no gaps, got %v", a.Gaps)
	}
	if a.Recommendation != "Emphasize Python projects" || a.Likelihood != "medium" {
		t.Fatalf("unexpected assessment: %+v", a)
	}
	if len(a.Defaulted) != 0 {
		t.Fatalf("expected no defaulted fields, got %v", a.Defaulted)
	}
}

func TestDecodeDefaultsAndClamps(t *testing.T) {
	t.Parallel()

	a, err := Decode(`{"score": 150}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *a.Score != 100 {
		t.Fatalf("expected score clamped to 100, got %v", *a.Score)
	}
	want := []string{"fit", "strengths", "gaps", "recommendation", "likelihood"}
	if len(a.Defaulted) != len(want) {
		t.Fatalf("expected defaulted %v, got %v", want, a.Defaulted)
	}
	for i := range want {
		if a.Defaulted[i] != want[i] {
			t.Fatalf("expected defaulted %v, got %v", want, a.Defaulted)
		}
	}
	if a.Strengths == nil || a.Gaps == nil {
		t.Fatalf("expected empty lists instead of nil")
	}

	b, err := Decode(`{"strengths": ["SQL"], "score": "high"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Score != nil || b.Defaulted[0] != "score" {
		t.Fatalf("expected an unreadable score to stay unset, got %+v", b)
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "no structure at all", `{"unrelated": true}`} {
		if _, err := Decode(raw); !errors.Is(err, ErrMalformed) {
			t.Fatalf("expected ErrMalformed for %q, got %v", raw, err)
		}
	}
}
