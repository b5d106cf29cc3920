// Package match scores postings against a candidate profile. Scoring is pure:
// the same profile, postings and instant always give the same ranking.
package match

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
)

const weightTolerance = 1e-6

type Weights struct {
	Skills   float64 `mapstructure:"skills" json:"skills"`
	Role     float64 `mapstructure:"role" json:"role"`
	Location float64 `mapstructure:"location" json:"location"`
	Recency  float64 `mapstructure:"recency" json:"recency"`
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{"skills": w.Skills, "role": w.Role, "location": w.Location, "recency": w.Recency} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("weight %s must be non-negative, got %v", name, v)
		}
	}
	if sum := w.Skills + w.Role + w.Location + w.Recency; math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %.6f", sum)
	}
	return nil
}

type Config struct {
	Weights Weights `mapstructure:"weights"`
	// RegionCredit is the location score for a posting in the same region as a desired location.
	RegionCredit float64 `mapstructure:"region-credit"`
	// HorizonDays is the age at which the recency score reaches zero.
	HorizonDays int `mapstructure:"horizon-days"`
	// Regions maps a region name to the places it contains.
	Regions map[string][]string `mapstructure:"regions"`
}

func DefaultConfig() Config {
	return Config{
		Weights:      Weights{Skills: 0.4, Role: 0.3, Location: 0.2, Recency: 0.1},
		RegionCredit: 0.5,
		HorizonDays:  30,
		Regions:      DefaultRegions(),
	}
}

// SubScores are the per-dimension scores in [0,1].
type SubScores struct {
	Skills   float64 `json:"skills"`
	Role     float64 `json:"role"`
	Location float64 `json:"location"`
	Recency  float64 `json:"recency"`
}

type Result struct {
	Posting       model.Posting `json:"posting"`
	Score         float64       `json:"score"`
	Sub           SubScores     `json:"sub_scores"`
	Rank          int           `json:"rank"`
	MatchedSkills []string      `json:"matched_skills"`
	MissingSkills []string      `json:"missing_skills"`
}

// Matcher holds only immutable configuration and is safe for concurrent use.
type Matcher struct {
	cfg     Config
	regions *regionIndex
}

func New(cfg Config) (*Matcher, error) {
	if err := cfg.Weights.Validate(); err != nil {
		return nil, err
	}
	if cfg.RegionCredit < 0 || cfg.RegionCredit > 1 {
		return nil, fmt.Errorf("region credit must be within [0,1], got %v", cfg.RegionCredit)
	}
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = DefaultConfig().HorizonDays
	}
	if cfg.Regions == nil {
		cfg.Regions = DefaultRegions()
	}
	return &Matcher{cfg: cfg, regions: newRegionIndex(cfg.Regions)}, nil
}

// Match scores every posting and returns them ranked, best first.
func (m *Matcher) Match(p *profile.Profile, postings []model.Posting, at time.Time) []Result {
	if p == nil {
		return nil
	}
	skills := model.NormalizeList(p.Skills)

	results := make([]Result, 0, len(postings))
	for _, posting := range postings {
		posting.EnsureFingerprint()

		matched, missing, skillScore := m.skillOverlap(skills, posting)
		sub := SubScores{
			Skills:   skillScore,
			Role:     roleFit(p.TargetRoles, posting.Title),
			Location: m.locationFit(p, posting),
			Recency:  m.recency(posting.PostedAt, at),
		}
		w := m.cfg.Weights
		score := w.Skills*sub.Skills + w.Role*sub.Role + w.Location*sub.Location + w.Recency*sub.Recency

		results = append(results, Result{
			Posting:       posting,
			Score:         clip(score),
			Sub:           sub,
			MatchedSkills: matched,
			MissingSkills: missing,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Posting.PostedAt.Equal(b.Posting.PostedAt) {
			return a.Posting.PostedAt.After(b.Posting.PostedAt)
		}
		return a.Posting.Fingerprint < b.Posting.Fingerprint
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// Shortlist returns the first n results.
func Shortlist(results []Result, n int) []Result {
	if n <= 0 || n >= len(results) {
		return results
	}
	return results[:n]
}

// skillOverlap uses derived skills when present and otherwise detects the
// profile skills as whole-token phrases in the title and description.
func (m *Matcher) skillOverlap(skills []string, posting model.Posting) ([]string, []string, float64) {
	matched := []string{}
	missing := []string{}

	derived := model.NormalizeList(posting.Skills)
	if len(derived) > 0 {
		have := make(map[string]struct{}, len(skills))
		for _, s := range skills {
			have[s] = struct{}{}
		}
		wanted := make(map[string]struct{}, len(derived))
		for _, s := range derived {
			wanted[s] = struct{}{}
			if _, ok := have[s]; !ok {
				missing = append(missing, s)
			}
		}
		for _, s := range skills {
			if _, ok := wanted[s]; ok {
				matched = append(matched, s)
			}
		}
	} else {
		text := tokens(posting.Title + " " + posting.Description)
		for _, s := range skills {
			if containsPhrase(text, tokens(s)) {
				matched = append(matched, s)
			}
		}
	}

	denominator := len(skills)
	if denominator == 0 {
		denominator = 1
	}
	return matched, missing, clip(float64(len(matched)) / float64(denominator))
}

func roleFit(roles []string, title string) float64 {
	titleStems := stems(title)
	best := 0.0
	for _, role := range roles {
		roleStems := stems(role)
		if len(roleStems) == 0 {
			continue
		}
		overlap := 0
		for s := range roleStems {
			if _, ok := titleStems[s]; ok {
				overlap++
			}
		}
		best = math.Max(best, float64(overlap)/float64(len(roleStems)))
	}
	return clip(best)
}

func (m *Matcher) locationFit(p *profile.Profile, posting model.Posting) float64 {
	postingPlace := placeTokens(posting.Location)
	postingRemote := posting.Remote || hasToken(postingPlace, "remote")

	if p.Remote && postingRemote {
		return 1
	}
	if len(p.Locations) == 0 {
		if p.Remote {
			return 0
		}
		// No location preference.
		return 1
	}
	if len(postingPlace) == 0 {
		return 0
	}

	best := 0.0
	for _, desired := range p.Locations {
		want := placeTokens(desired)
		if len(want) == 0 {
			continue
		}
		if containsAll(postingPlace, want) {
			return 1
		}
		if m.regions.sameRegion(postingPlace, want) {
			best = math.Max(best, m.cfg.RegionCredit)
		}
	}
	return best
}

func (m *Matcher) recency(posted, at time.Time) float64 {
	if posted.IsZero() {
		return 0
	}
	days := at.Sub(posted).Hours() / 24
	if days < 0 {
		days = 0
	}
	return clip(1 - days/float64(m.cfg.HorizonDays))
}

func clip(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func hasToken(set []string, token string) bool {
	for _, t := range set {
		if t == token {
			return true
		}
	}
	return false
}

func containsAll(set, want []string) bool {
	for _, w := range want {
		if !hasToken(set, w) {
			return false
		}
	}
	return true
}

// Describe renders a one-line explanation of a result.
func Describe(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %.2f %s", r.Rank, r.Score, r.Posting.Title)
	if r.Posting.Company != "" {
		fmt.Fprintf(&b, " @ %s", r.Posting.Company)
	}
	if r.Posting.Location != "" {
		fmt.Fprintf(&b, " (%s)", r.Posting.Location)
	}
	fmt.Fprintf(&b, " [skills %.2f role %.2f location %.2f recency %.2f]",
		r.Sub.Skills, r.Sub.Role, r.Sub.Location, r.Sub.Recency)
	return b.String()
}
