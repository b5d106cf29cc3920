package evaluate

import (
	"fmt"
	"sort"

	"github.com/skillscope/skillscope/internal/model"
)

const (
	highScore     = 70
	mediumScore   = 40
	bestMatches   = 3
	maxCommonList = 5
)

// Summarize aggregates the successful details; failed ones are only counted.
func Summarize(details []model.Detail) model.Summary {
	s := model.Summary{JobsEvaluated: len(details)}

	type scored struct {
		key   string
		score float64
	}
	var (
		scores    []scored
		total     float64
		strengths = newCounter()
		gaps      = newCounter()
	)

	for _, d := range details {
		if !d.Succeeded() {
			s.Failed++
			continue
		}
		s.Succeeded++
		strengths.add(d.Strengths)
		gaps.add(d.Gaps)

		if d.Score == nil {
			continue
		}
		score := *d.Score
		total += score
		key := d.PostingID
		if key == "" {
			key = d.Title
		}
		scores = append(scores, scored{key: key, score: score})

		switch {
		case score >= highScore:
			s.Distribution.High++
		case score >= mediumScore:
			s.Distribution.Medium++
		default:
			s.Distribution.Low++
		}
	}

	if len(scores) > 0 {
		avg := total / float64(len(scores))
		s.AverageScore = &avg

		sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
		for i := 0; i < len(scores) && i < bestMatches; i++ {
			s.BestMatches = append(s.BestMatches, scores[i].key)
		}
	}

	s.CommonStrengths = strengths.top(maxCommonList)
	s.CommonGaps = gaps.top(maxCommonList)
	s.Text = summaryText(s)
	return s
}

func summaryText(s model.Summary) string {
	switch {
	case s.JobsEvaluated == 0:
		return "No postings were evaluated."
	case s.AverageScore == nil:
		return fmt.Sprintf("Evaluated %d postings; none received a score.", s.JobsEvaluated)
	default:
		return fmt.Sprintf("Evaluated %d postings (%d assessed): average score %.0f, %d high, %d medium and %d low matches.",
			s.JobsEvaluated, s.Succeeded, *s.AverageScore, s.Distribution.High, s.Distribution.Medium, s.Distribution.Low)
	}
}

// counter counts normalised phrases and remembers the first spelling seen.
type counter struct {
	counts map[string]int
	first  map[string]int
	label  map[string]string
}

func newCounter() *counter {
	return &counter{counts: map[string]int{}, first: map[string]int{}, label: map[string]string{}}
}

func (c *counter) add(items []string) {
	for _, item := range items {
		key := model.Normalize(item)
		if key == "" {
			continue
		}
		if _, ok := c.counts[key]; !ok {
			c.first[key] = len(c.first)
			c.label[key] = item
		}
		c.counts[key]++
	}
}

func (c *counter) top(n int) []string {
	keys := make([]string, 0, len(c.counts))
	for k := range c.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if c.counts[keys[i]] != c.counts[keys[j]] {
			return c.counts[keys[i]] > c.counts[keys[j]]
		}
		return c.first[keys[i]] < c.first[keys[j]]
	})
	if len(keys) > n {
		keys = keys[:n]
	}
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.label[k]
	}
	return out
}
