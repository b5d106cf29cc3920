package evaluate

import (
	"errors"
	"math"
	"strings"

	"github.com/skillscope/skillscope/internal/ai"
)

// ErrMalformed is returned when a completion carries none of the assessment fields.
var ErrMalformed = errors.New("malformed assessment response")

// Assessment is the decoded answer for one posting.
type Assessment struct {
	Score          *float64
	Fit            string
	Strengths      []string
	Gaps           []string
	Recommendation string
	Likelihood     string
	// Defaulted names the fields that were missing and got their default.
	Defaulted []string
}

var fieldKeys = []struct {
	name string
	keys []string
}{
	{"score", []string{"score", "match_score", "fit_score", "compatibility"}},
	{"fit", []string{"fit", "overall_fit"}},
	{"strengths", []string{"strengths", "strength"}},
	{"gaps", []string{"gaps", "critical_gaps", "missing", "weaknesses"}},
	{"recommendation", []string{"recommendation", "recommendations", "advice"}},
	{"likelihood", []string{"likelihood", "interview_likelihood"}},
}

// Sections that end the previous field but are not read.
var ignoredSections = []string{"minor_gaps", "seniority_match", "experience_gap", "reality_check"}

// Decode reads a completion as JSON, or as "Score: ..." style sections when it
// holds no JSON object. Missing fields get their defaults.
func Decode(raw string) (*Assessment, error) {
	values := make(map[string]any)

	if data, err := ai.DecodeObject(raw); err == nil {
		for _, f := range fieldKeys {
			if v, ok := ai.Lookup(data, f.keys...); ok && v != nil {
				values[f.name] = v
			}
		}
	} else {
		all := append([]string(nil), ignoredSections...)
		for _, f := range fieldKeys {
			all = append(all, f.keys...)
		}
		sections := ai.ParseSections(raw, all...)
		for _, f := range fieldKeys {
			for _, key := range f.keys {
				if v, ok := sections[key]; ok {
					values[f.name] = v
					break
				}
			}
		}
	}

	if len(values) == 0 {
		return nil, ErrMalformed
	}

	a := &Assessment{
		Strengths: []string{},
		Gaps:      []string{},
	}

	if score, ok := normalizeScore(ai.CoerceFloat(values["score"])); ok {
		a.Score = &score
	} else {
		a.Defaulted = append(a.Defaulted, "score")
	}

	if v, ok := values["fit"]; ok {
		a.Fit = fitLabel(v)
	}
	if a.Fit == "" {
		a.Defaulted = append(a.Defaulted, "fit")
	}

	a.Strengths = ai.CoerceStringList(values["strengths"])
	if len(a.Strengths) == 0 {
		a.Defaulted = append(a.Defaulted, "strengths")
	}

	a.Gaps = ai.CoerceStringList(values["gaps"])
	if len(a.Gaps) == 0 && !saysNone(values["gaps"]) {
		a.Defaulted = append(a.Defaulted, "gaps")
	}
	if len(a.Gaps) == 1 && saysNone(a.Gaps[0]) {
		a.Gaps = []string{}
	}

	a.Recommendation = recommendationText(values["recommendation"])
	if a.Recommendation == "" {
		a.Defaulted = append(a.Defaulted, "recommendation")
	}

	a.Likelihood = likelihood(ai.CoerceString(values["likelihood"]))
	if a.Likelihood == "" {
		a.Defaulted = append(a.Defaulted, "likelihood")
	}

	return a, nil
}

// normalizeScore treats values in (0,1] as fractions and clamps to [0,100].
func normalizeScore(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v > 0 && v <= 1 {
		v *= 100
	}
	return math.Max(0, math.Min(100, v)), true
}

func fitLabel(v any) string {
	if b, ok := v.(bool); ok {
		if b {
			return "Good"
		}
		return "Poor"
	}
	return ai.CoerceString(v)
}

func recommendationText(v any) string {
	if list, ok := v.([]any); ok {
		return strings.Join(ai.CoerceStringList(list), " ")
	}
	return ai.CoerceString(v)
}

func likelihood(raw string) string {
	lower := strings.ToLower(raw)
	for _, level := range []string{"high", "medium", "low"} {
		if strings.HasPrefix(lower, level) {
			return level
		}
	}
	return ""
}

func saysNone(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(s))
	return lower == "none" || strings.HasPrefix(lower, "none ") || strings.HasPrefix(lower, "none identified")
}
