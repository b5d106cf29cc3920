// Package enrich derives skills, industry and company size for stored postings
// and keeps the posting store fresh.
package enrich

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/store"
	"github.com/skillscope/skillscope/internal/utils"
)

//go:embed prompt.md
var promptTemplate string

var prompt = template.Must(template.New("enrich").Parse(promptTemplate))

const systemPrompt = "You are a precise job-market data analyst. Reply with JSON only."

const (
	lowFreshnessRatio = 0.2
	highStaleCount    = 200
	maxLogLength      = 200
)

type Config struct {
	BatchSize           int           `mapstructure:"batch-size"`
	MaxAttempts         int           `mapstructure:"max-attempts"`
	StuckAfter          time.Duration `mapstructure:"stuck-after"`
	StaleAfterDays      int           `mapstructure:"stale-after-days"`
	MaxSkills           int           `mapstructure:"max-skills"`
	MaxDescriptionRunes int           `mapstructure:"max-description-runes"`
	CallTimeout         time.Duration `mapstructure:"call-timeout"`
}

func DefaultConfig() Config {
	return Config{
		BatchSize:           15,
		MaxAttempts:         3,
		StuckAfter:          30 * time.Minute,
		StaleAfterDays:      store.DefaultStaleAfterDays,
		MaxSkills:           30,
		MaxDescriptionRunes: 2000,
		CallTimeout:         90 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.StuckAfter <= 0 {
		c.StuckAfter = d.StuckAfter
	}
	if c.StaleAfterDays <= 0 {
		c.StaleAfterDays = d.StaleAfterDays
	}
	if c.MaxSkills <= 0 {
		c.MaxSkills = d.MaxSkills
	}
	if c.MaxDescriptionRunes <= 0 {
		c.MaxDescriptionRunes = d.MaxDescriptionRunes
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

// Status reports one enrichment run.
type Status struct {
	Claimed     int  `json:"claimed"`
	Enriched    int  `json:"enriched"`
	Failed      int  `json:"failed"`
	Released    int  `json:"released"`
	RateLimited bool `json:"rate_limited"`
}

type MaintenanceReport struct {
	ResetStuck int          `json:"reset_stuck"`
	Purged     int          `json:"purged"`
	Stats      *model.Stats `json:"stats"`
	Warnings   []string     `json:"warnings,omitempty"`
}

type Engine struct {
	store    store.Store
	reasoner ai.Reasoner
	logger   *zap.Logger
	cfg      Config
}

func New(st store.Store, reasoner ai.Reasoner, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, reasoner: reasoner, logger: logger, cfg: cfg.withDefaults()}
}

// RunBatch enriches up to size unenriched postings; size <= 0 uses the configured batch size.
func (e *Engine) RunBatch(ctx context.Context, size int) (*Status, error) {
	if size <= 0 {
		size = e.cfg.BatchSize
	}
	claimed, err := e.store.ClaimForEnrichment(ctx, nil, size, e.cfg.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim postings: %w", err)
	}
	return e.process(ctx, claimed)
}

// EnrichIDs enriches the given postings when they are still unenriched.
func (e *Engine) EnrichIDs(ctx context.Context, ids []string) (*Status, error) {
	if len(ids) == 0 {
		return &Status{}, nil
	}
	claimed, err := e.store.ClaimForEnrichment(ctx, ids, len(ids), e.cfg.MaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("claim postings: %w", err)
	}
	return e.process(ctx, claimed)
}

func (e *Engine) process(ctx context.Context, claimed []model.Posting) (*Status, error) {
	status := &Status{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return status, nil
	}
	if e.reasoner == nil {
		return status, e.release(claimed, "reasoning capability is not configured", status)
	}

	for i, p := range claimed {
		if ctx.Err() != nil {
			return status, e.release(claimed[i:], "enrichment cancelled", status)
		}

		log := e.logger.With(zap.String("posting_id", p.ID), zap.String("title", p.Title))

		derived, err := e.derive(ctx, p)
		if err != nil && ai.IsRateLimit(err) {
			status.RateLimited = true
			log.Warn("rate limited, stopping enrichment batch", zap.Int("remaining", len(claimed)-i), zap.Error(err))
			return status, e.release(claimed[i:], "rate limited", status)
		}
		if err != nil {
			status.Failed++
			log.Warn("enrichment failed", zap.Error(err))
			if ferr := e.store.FailEnrichment(context.WithoutCancel(ctx), p.ID, err.Error(), true); ferr != nil {
				if errors.Is(ferr, store.ErrUnavailable) {
					return status, fmt.Errorf("record enrichment failure: %w", ferr)
				}
				log.Warn("recording enrichment failure", zap.Error(ferr))
			}
			continue
		}

		if err := e.store.CompleteEnrichment(context.WithoutCancel(ctx), p.ID, derived); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return status, fmt.Errorf("complete enrichment: %w", err)
			}
			log.Warn("posting was released before enrichment completed", zap.Error(err))
			continue
		}
		status.Enriched++
		log.Debug("posting enriched",
			zap.Strings("skills", derived.Skills),
			zap.String("industry", derived.Industry),
			zap.String("company_size", derived.CompanySize),
		)
	}

	e.logger.Info("enrichment batch finished",
		zap.Int("claimed", status.Claimed),
		zap.Int("enriched", status.Enriched),
		zap.Int("failed", status.Failed),
	)
	return status, nil
}

// release hands postings back without counting an attempt.
func (e *Engine) release(postings []model.Posting, reason string, status *Status) error {
	ctx := context.Background()
	for _, p := range postings {
		if err := e.store.FailEnrichment(ctx, p.ID, reason, false); err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				return fmt.Errorf("release posting %s: %w", p.ID, err)
			}
			continue
		}
		status.Released++
	}
	return nil
}

type promptData struct {
	Title       string
	Company     string
	Location    string
	Description string
	MaxSkills   int
	Industries  string
}

func (e *Engine) derive(ctx context.Context, p model.Posting) (model.Derived, error) {
	var buf bytes.Buffer
	if err := prompt.Execute(&buf, promptData{
		Title:       p.Title,
		Company:     p.Company,
		Location:    p.Location,
		Description: truncateRunes(p.Description, e.cfg.MaxDescriptionRunes),
		MaxSkills:   e.cfg.MaxSkills,
		Industries:  strings.Join(Industries, ", "),
	}); err != nil {
		return model.Derived{}, fmt.Errorf("render prompt: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	raw, err := e.reasoner.GenerateContent(callCtx, systemPrompt, buf.String())
	if err != nil {
		return model.Derived{}, err
	}

	derived, err := e.decode(raw)
	if err != nil {
		return model.Derived{}, fmt.Errorf("%w (response: %s)", err, utils.TruncateForLog(raw, maxLogLength))
	}
	return derived, nil
}

var errMalformed = errors.New("malformed enrichment response")

// decode reads the JSON answer, falling back to "SKILLS:/INDUSTRY:/COMPANY_SIZE:" lines.
func (e *Engine) decode(raw string) (model.Derived, error) {
	var skills, industry, size any
	found := false

	if data, err := ai.DecodeObject(raw); err == nil {
		if v, ok := ai.Lookup(data, "skills", "required_skills", "key_skills"); ok {
			skills, found = v, true
		}
		if v, ok := ai.Lookup(data, "industry", "company_industry"); ok {
			industry, found = v, true
		}
		if v, ok := ai.Lookup(data, "company_size", "size", "employees"); ok {
			size, found = v, true
		}
	} else {
		sections := ai.ParseSections(raw, "skills", "industry", "company_size")
		if v, ok := sections["skills"]; ok {
			skills, found = strings.ReplaceAll(v, ",", "\n"), true
		}
		if v, ok := sections["industry"]; ok {
			industry, found = v, true
		}
		if v, ok := sections["company_size"]; ok {
			size, found = v, true
		}
	}
	if !found {
		return model.Derived{}, errMalformed
	}

	normalized := model.NormalizeList(ai.CoerceStringList(skills))
	if len(normalized) > e.cfg.MaxSkills {
		normalized = normalized[:e.cfg.MaxSkills]
	}
	return model.Derived{
		Skills:      normalized,
		Industry:    CanonicalIndustry(ai.CoerceString(industry)),
		CompanySize: SizeBucket(ai.CoerceString(size)),
	}, nil
}

// Maintain releases stuck claims, purges stale postings and reports store health.
func (e *Engine) Maintain(ctx context.Context) (*MaintenanceReport, error) {
	report := &MaintenanceReport{}

	reset, err := e.store.ResetStuckEnrichment(ctx, e.cfg.StuckAfter)
	if err != nil {
		return nil, fmt.Errorf("reset stuck enrichment: %w", err)
	}
	report.ResetStuck = reset

	purged, err := e.store.PurgeOlderThan(ctx, e.cfg.StaleAfterDays)
	if err != nil {
		return nil, fmt.Errorf("purge stale postings: %w", err)
	}
	report.Purged = purged

	stats, warnings, err := e.Health(ctx)
	if err != nil {
		return nil, err
	}
	report.Stats = stats
	report.Warnings = warnings

	e.logger.Info("maintenance finished",
		zap.Int("reset_stuck", reset),
		zap.Int("purged", purged),
		zap.Int("total", stats.Total),
	)
	return report, nil
}

// Health returns store statistics and logs warnings for a stale database.
func (e *Engine) Health(ctx context.Context) (*model.Stats, []string, error) {
	stats, err := e.store.Stats(ctx, e.cfg.StaleAfterDays)
	if err != nil {
		return nil, nil, fmt.Errorf("posting stats: %w", err)
	}

	var warnings []string
	if stats.Total > 0 && stats.FreshnessRatio < lowFreshnessRatio {
		warnings = append(warnings, fmt.Sprintf("low freshness ratio %.2f", stats.FreshnessRatio))
	}
	if stats.Stale > highStaleCount {
		warnings = append(warnings, fmt.Sprintf("%d stale postings awaiting purge", stats.Stale))
	}
	for _, w := range warnings {
		e.logger.Warn("posting store health", zap.String("warning", w))
	}

	e.logger.Info("posting store health",
		zap.Int("total", stats.Total),
		zap.Int("fresh", stats.Fresh),
		zap.Int("stale", stats.Stale),
		zap.Int("unenriched", stats.Unenriched),
		zap.Float64("freshness_ratio", stats.FreshnessRatio),
	)
	return stats, warnings, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(strings.TrimSpace(s))
	if limit <= 0 || len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit])
}
