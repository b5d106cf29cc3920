// Package filtering drops postings the caller never wants to see before they are matched.
package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
)

// Filter represents a single filtering step applied to postings.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, postings []model.Posting) ([]model.Posting, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
	// Location is the location constraint of the search, empty when unconstrained.
	Location string
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int `json:"initial"`
	Dropped int `json:"dropped"`
	Left    int `json:"left"`
}

// Report is the step result of one named filter.
type Report struct {
	Name string `json:"name"`
	Step
}

// Config contains configuration settings consumed by the filters.
type Config struct {
	RedFlags          []string `mapstructure:"red-flags"`
	ExcludedCompanies []string `mapstructure:"excluded-companies"`
	ExcludeFile       string   `mapstructure:"exclude-file"`
	RequireLocation   bool     `mapstructure:"require-location"`
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Reason  string            `json:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns a fresh set of the standard filters. Filters keep the state
// read in Validate, so every run needs its own set.
func Default() []Filter {
	return []Filter{
		NewRedFlags(),
		NewExcludedCompanies(),
		NewExcludeFile(),
		NewLocationRequired(),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// Run executes the supplied filters sequentially and returns the postings left.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, postings []model.Posting) ([]model.Posting, []Report, error) {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}
	}

	reports := make([]Report, 0, len(steps))
	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}

		next, info, err := step.Apply(ctx, deps, postings)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Info("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		postings = next
		reports = append(reports, Report{Name: step.Name(), Step: info})
	}

	return postings, reports, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}

// keep returns the postings for which drop is false, along with the step counts.
func keep(postings []model.Posting, drop func(p *model.Posting) bool) ([]model.Posting, Step, []string) {
	left := make([]model.Posting, 0, len(postings))
	var dropped []string
	for i := range postings {
		if drop(&postings[i]) {
			dropped = append(dropped, postings[i].Title)
			continue
		}
		left = append(left, postings[i])
	}
	return left, Step{Initial: len(postings), Dropped: len(postings) - len(left), Left: len(left)}, dropped
}
