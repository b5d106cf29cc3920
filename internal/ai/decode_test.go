package ai

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestDecodeObject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		key  string
		want any
	}{
		{name: "plain", raw: `{"score": 80}`, key: "score", want: 80.0},
		{name: "fenced", raw: "```json\n{\"score\": \"75\"}\n```", key: "score", want: "75"},
		{name: "prose around", raw: "Here you go:\n{\"fit\": true}\nThanks", key: "fit", want: true},
		{name: "brace in prose", raw: "Here is my assessment {as requested}:\n{\"score\": 60, \"gaps\": []}", key: "score", want: 60.0},
		{name: "trailing braces", raw: "{\"score\": 55}\nNote: {not json}", key: "score", want: 55.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := DecodeObject(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if data[tt.key] != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, data[tt.key])
			}
		})
	}
}

func TestDecodeObjectWithoutJSON(t *testing.T) {
	t.Parallel()

	_, err := DecodeObject("Score: 70\nStrengths: SQL")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}

	if _, err := DecodeObject("{broken"); err == nil {
		t.Fatal("expected error for broken json")
	}
}

func TestCoerceFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   any
		want float64
	}{
		{in: 72.0, want: 72},
		{in: "64", want: 64},
		{in: "85%", want: 85},
		{in: "7/10", want: 70},
		{in: 3, want: 3},
	}
	for _, tt := range tests {
		if got := CoerceFloat(tt.in); got != tt.want {
			t.Fatalf("CoerceFloat(%v): expected %v, got %v", tt.in, tt.want, got)
		}
	}

	for _, bad := range []any{"high", "", nil, "1/0"} {
		if got := CoerceFloat(bad); !math.IsNaN(got) {
			t.Fatalf("CoerceFloat(%v): expected NaN, got %v", bad, got)
		}
	}
}

func TestCoerceStringList(t *testing.T) {
	t.Parallel()

	got := CoerceStringList([]any{" SQL ", "", "Python"})
	if len(got) != 2 || got[0] != "SQL" || got[1] != "Python" {
		t.Fatalf("unexpected list %v", got)
	}

	got = CoerceStringList("- dbt\n- Airflow; Spark")
	if len(got) != 3 || got[0] != "dbt" || got[2] != "Spark" {
		t.Fatalf("unexpected list %v", got)
	}

	if got := CoerceStringList(nil); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	data := map[string]any{"Match_Score": 55.0}
	v, ok := Lookup(data, "score", "match_score")
	if !ok || v != 55.0 {
		t.Fatalf("expected 55, got %v (%v)", v, ok)
	}
	if _, ok := Lookup(data, "missing"); ok {
		t.Fatal("expected missing key")
	}
}

func TestIsRateLimit(t *testing.T) {
	t.Parallel()

	if !IsRateLimit(fmt.Errorf("wrap: %w", ErrRateLimited)) {
		t.Fatal("expected wrapped sentinel to be detected")
	}
	if !IsRateLimit(errors.New("Error 429: RESOURCE_EXHAUSTED")) {
		t.Fatal("expected provider status to be detected")
	}
	if IsRateLimit(errors.New("connection reset")) || IsRateLimit(nil) {
		t.Fatal("unexpected rate limit detection")
	}
}

func TestParseSections(t *testing.T) {
	t.Parallel()

	raw := `Here is my assessment.
**Score:** 72
Strengths:
- SQL
- Stakeholder communication
Gaps: Tableau
COMPANY SIZE: 250 employees
Unrelated: ignored`

	got := ParseSections(raw, "score", "strengths", "gaps", "company_size")
	if got["score"] != "72" {
		t.Fatalf("unexpected score %q", got["score"])
	}
	strengths := CoerceStringList(got["strengths"])
	if len(strengths) != 2 || strengths[1] != "Stakeholder communication" {
		t.Fatalf("unexpected strengths %v", strengths)
	}
	if got["gaps"] != "Tableau" {
		t.Fatalf("unexpected gaps %q", got["gaps"])
	}
	if got["company_size"] != "250 employees\nUnrelated: ignored" {
		t.Fatalf("unexpected company size %q", got["company_size"])
	}
	if len(ParseSections("no sections here", "score")) != 0 {
		t.Fatal("expected no sections")
	}
}
