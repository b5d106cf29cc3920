package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/model"
)

func printResults(w io.Writer, results []match.Result, limit int) {
	for i, r := range results {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "... %d more\n", len(results)-limit)
			return
		}
		fmt.Fprintln(w, match.Describe(r))
		if r.Posting.URL != "" {
			fmt.Fprintf(w, "    %s\n", r.Posting.URL)
		}
	}
}

func printEvaluation(w io.Writer, e *model.Evaluation) {
	fmt.Fprintf(w, "Evaluation %s for %s (%s, %s)\n", e.ID, e.ProfileID, e.Status, e.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintln(w, e.Summary.Text)
	fmt.Fprintln(w)

	for _, d := range e.Details {
		switch {
		case d.Succeeded() && d.Score != nil:
			fmt.Fprintf(w, "[%3.0f] %s @ %s (%s)\n", *d.Score, valueOr(d.Title, d.PostingID), d.Company, d.Likelihood)
			if len(d.Strengths) > 0 {
				fmt.Fprintf(w, "      strengths: %s\n", strings.Join(d.Strengths, ", "))
			}
			if len(d.Gaps) > 0 {
				fmt.Fprintf(w, "      gaps: %s\n", strings.Join(d.Gaps, ", "))
			}
			if d.Recommendation != "" {
				fmt.Fprintf(w, "      %s\n", d.Recommendation)
			}
		default:
			fmt.Fprintf(w, "[%s] %s: %s\n", d.Status, valueOr(d.Title, d.PostingID), d.Error)
		}
	}

	if e.Plan != nil {
		fmt.Fprintln(w)
		if e.Plan.Fallback {
			fmt.Fprintln(w, "Improvement plan (generic):")
		} else {
			fmt.Fprintln(w, "Improvement plan:")
		}
		fmt.Fprintln(w, e.Plan.Text)
	}
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// reportByCompany counts results per company, most frequent first.
func reportByCompany(results []match.Result) []companyCount {
	counts := make(map[string]int)
	for _, r := range results {
		counts[valueOr(r.Posting.Company, "unknown")]++
	}
	out := make([]companyCount, 0, len(counts))
	for company, n := range counts {
		out = append(out, companyCount{Company: company, Postings: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Postings != out[j].Postings {
			return out[i].Postings > out[j].Postings
		}
		return out[i].Company < out[j].Company
	})
	return out
}

type companyCount struct {
	Company  string `json:"company"`
	Postings int    `json:"postings"`
}

// dumpToTmpFile writes v as indented JSON into a new temporary file and returns its name.
func dumpToTmpFile(v any) (string, error) {
	f, err := os.CreateTemp("", app+"-*.json")
	if err != nil {
		return "", err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return f.Name(), nil
}
