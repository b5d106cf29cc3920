package filtering

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
)

type redFlagsFilter struct {
	disabled bool
	reason   string
	terms    []string
}

// NewRedFlags creates a filter that removes postings mentioning any red-flag term.
func NewRedFlags() Filter {
	return &redFlagsFilter{}
}

func (f *redFlagsFilter) Name() string { return "red_flags" }

func (f *redFlagsFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *redFlagsFilter) IsEnabled() bool { return !f.disabled }

func (f *redFlagsFilter) Validate(cfg *Config) error {
	f.terms = nil
	if cfg != nil {
		f.terms = model.NormalizeList(cfg.RedFlags)
	}
	return nil
}

func (f *redFlagsFilter) Apply(_ context.Context, deps Deps, postings []model.Posting) ([]model.Posting, Step, error) {
	if len(f.terms) == 0 {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	left, step, dropped := keep(postings, func(p *model.Posting) bool {
		return ContainsRedFlag(p.Title, p.Company, p.Description, f.terms)
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding postings with red flags",
			zap.Strings("red_flags", f.terms),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", step.Left),
		)
	}
	return left, step, nil
}

func (f *redFlagsFilter) Status() Status {
	details := map[string]string{}
	if len(f.terms) > 0 {
		details["red_flags"] = strings.Join(f.terms, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

// ContainsRedFlag reports whether title, company or description mention any of
// the terms, ignoring case.
func ContainsRedFlag(title, company, description string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	haystack := strings.ToLower(title + " " + company + " " + description)
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

type excludedCompaniesFilter struct {
	disabled  bool
	reason    string
	companies map[string]struct{}
}

// NewExcludedCompanies creates a filter that removes postings by companies configured in the config.
func NewExcludedCompanies() Filter {
	return &excludedCompaniesFilter{}
}

func (f *excludedCompaniesFilter) Name() string { return "excluded_companies" }

func (f *excludedCompaniesFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *excludedCompaniesFilter) IsEnabled() bool { return !f.disabled }

func (f *excludedCompaniesFilter) Validate(cfg *Config) error {
	f.companies = map[string]struct{}{}
	if cfg == nil {
		return nil
	}
	for _, c := range model.NormalizeList(cfg.ExcludedCompanies) {
		f.companies[c] = struct{}{}
	}
	return nil
}

func (f *excludedCompaniesFilter) Apply(_ context.Context, deps Deps, postings []model.Posting) ([]model.Posting, Step, error) {
	if len(f.companies) == 0 {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	left, step, dropped := keep(postings, func(p *model.Posting) bool {
		_, excluded := f.companies[model.Normalize(p.Company)]
		return excluded
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding postings by companies",
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", step.Left),
		)
	}
	return left, step, nil
}

func (f *excludedCompaniesFilter) Status() Status {
	names := make([]string, 0, len(f.companies))
	for c := range f.companies {
		names = append(names, c)
	}
	details := map[string]string{}
	if len(names) > 0 {
		details["companies"] = strings.Join(names, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type excludeFileFilter struct {
	disabled bool
	reason   string
	path     string
}

// NewExcludeFile creates a filter that removes postings listed in the exclude file.
func NewExcludeFile() Filter {
	return &excludeFileFilter{}
}

func (f *excludeFileFilter) Name() string { return "exclude_file" }

func (f *excludeFileFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *excludeFileFilter) IsEnabled() bool { return !f.disabled }

func (f *excludeFileFilter) Validate(cfg *Config) error {
	f.path = ""
	if cfg != nil {
		f.path = strings.TrimSpace(cfg.ExcludeFile)
	}
	return nil
}

func (f *excludeFileFilter) Apply(_ context.Context, deps Deps, postings []model.Posting) ([]model.Posting, Step, error) {
	if f.path == "" {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	excluded, err := LoadExcludeList(f.path)
	if err != nil {
		return postings, Step{}, fmt.Errorf("getting excluded postings from file: %w", err)
	}

	fingerprints := excluded.Fingerprints()
	left, step, dropped := keep(postings, func(p *model.Posting) bool {
		_, ok := fingerprints[p.EnsureFingerprint()]
		return ok
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding postings based on exclude file",
			zap.String("path", f.path),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", step.Left),
		)
	}
	return left, step, nil
}

func (f *excludeFileFilter) Status() Status {
	details := map[string]string{}
	if f.path != "" {
		details["path"] = f.path
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type locationRequiredFilter struct {
	disabled bool
	reason   string
}

// NewLocationRequired creates a filter that removes postings without a location
// from location-constrained searches. Remote postings are kept.
func NewLocationRequired() Filter {
	return &locationRequiredFilter{}
}

func (f *locationRequiredFilter) Name() string { return "location_required" }

func (f *locationRequiredFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *locationRequiredFilter) IsEnabled() bool { return !f.disabled }

func (f *locationRequiredFilter) Validate(cfg *Config) error {
	if cfg != nil && !cfg.RequireLocation {
		f.Disable("not required by config")
	}
	return nil
}

func (f *locationRequiredFilter) Apply(_ context.Context, deps Deps, postings []model.Posting) ([]model.Posting, Step, error) {
	if f.disabled || strings.TrimSpace(deps.Location) == "" {
		return postings, Step{Initial: len(postings), Left: len(postings)}, nil
	}

	left, step, dropped := keep(postings, func(p *model.Posting) bool {
		return strings.TrimSpace(p.Location) == "" && !p.Remote
	})
	if deps.Logger != nil && len(dropped) > 0 {
		deps.Logger.Info("excluding postings without location",
			zap.String("location", deps.Location),
			zap.Strings("excluded_postings", dropped),
			zap.Int("postings_left", step.Left),
		)
	}
	return left, step, nil
}

func (f *locationRequiredFilter) Status() Status {
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason}
}
