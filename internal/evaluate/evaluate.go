// Package evaluate runs the AI compatibility assessment of a candidate against
// the best-ranked postings and builds the persisted evaluation record.
package evaluate

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/match"
	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
	"github.com/skillscope/skillscope/internal/utils"
)

//go:embed assess.md
var assessTemplate string

const systemPrompt = "You are a precise, realistic career assessor. Follow the requested output format exactly."

const (
	maxLogLength = 200

	errCancelled   = "evaluation cancelled"
	errUnavailable = "posting unavailable"
)

type Config struct {
	TopN                int           `mapstructure:"top-n"`
	Concurrency         int           `mapstructure:"concurrency"`
	MaxDescriptionRunes int           `mapstructure:"max-description-runes"`
	MaxRawRunes         int           `mapstructure:"max-raw-runes"`
	CallTimeout         time.Duration `mapstructure:"call-timeout"`
}

func DefaultConfig() Config {
	return Config{
		TopN:                10,
		Concurrency:         4,
		MaxDescriptionRunes: 800,
		MaxRawRunes:         2000,
		CallTimeout:         2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TopN <= 0 {
		c.TopN = d.TopN
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.MaxDescriptionRunes <= 0 {
		c.MaxDescriptionRunes = d.MaxDescriptionRunes
	}
	if c.MaxRawRunes <= 0 {
		c.MaxRawRunes = d.MaxRawRunes
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	return c
}

// Saver persists finished evaluations.
type Saver interface {
	SaveEvaluation(ctx context.Context, e *model.Evaluation) error
}

type Evaluator struct {
	reasoner ai.Reasoner
	saver    Saver
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// New creates an Evaluator. A nil saver skips persistence.
func New(reasoner ai.Reasoner, saver Saver, cfg Config, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		reasoner: reasoner,
		saver:    saver,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

func (e *Evaluator) Config() Config {
	return e.cfg
}

// Evaluate assesses the first TopN results of shortlist. Ids listed in missing
// refer to postings that no longer exist and are recorded as unavailable.
// The record is returned even when saving it fails.
func (e *Evaluator) Evaluate(ctx context.Context, p *profile.Profile, shortlist []match.Result, missing ...string) (*model.Evaluation, error) {
	if p == nil {
		return nil, errors.New("profile is required")
	}

	items := shortlist
	if len(items) > e.cfg.TopN {
		items = items[:e.cfg.TopN]
	}

	log := e.logger.With(zap.String("profile_id", p.ID))
	log.Info("evaluating postings", zap.Int("postings", len(items)), zap.Int("unavailable", len(missing)))

	profileText := p.Text()
	details := make([]model.Detail, len(items), len(items)+len(missing))
	for i, r := range items {
		details[i] = e.snapshot(r)
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)
	for i := range items {
		if ctx.Err() != nil {
			markCancelled(&details[i])
			continue
		}
		g.Go(func() error {
			e.assess(ctx, log, profileText, &details[i])
			return nil
		})
	}
	_ = g.Wait()

	for _, id := range missing {
		details = append(details, model.Detail{
			PostingID: id,
			Status:    model.DetailUnavailable,
			Error:     errUnavailable,
			Strengths: []string{},
			Gaps:      []string{},
		})
	}

	eval := &model.Evaluation{
		ProfileID:          p.ID,
		ProfileFingerprint: p.Fingerprint(),
		CreatedAt:          e.now().UTC(),
		Details:            details,
	}
	eval.Summary = Summarize(details)
	eval.Status = status(details)
	eval.Plan = e.plan(ctx, log, p, eval)

	log.Info("evaluation finished",
		zap.String("status", string(eval.Status)),
		zap.Int("succeeded", eval.Summary.Succeeded),
		zap.Int("failed", eval.Summary.Failed),
		zap.Bool("fallback_plan", eval.Plan != nil && eval.Plan.Fallback),
	)

	if e.saver == nil {
		return eval, nil
	}
	if err := e.saver.SaveEvaluation(context.WithoutCancel(ctx), eval); err != nil {
		return eval, fmt.Errorf("save evaluation: %w", err)
	}
	return eval, nil
}

func (e *Evaluator) snapshot(r match.Result) model.Detail {
	return model.Detail{
		PostingID:   r.Posting.ID,
		Title:       r.Posting.Title,
		Company:     r.Posting.Company,
		Location:    r.Posting.Location,
		URL:         r.Posting.URL,
		Description: truncateRunes(r.Posting.Description, e.cfg.MaxDescriptionRunes),
		MatchScore:  r.Score,
		Strengths:   []string{},
		Gaps:        []string{},
	}
}

// assess fills d in place. Calls already started are not cut short by ctx.
func (e *Evaluator) assess(ctx context.Context, log *zap.Logger, profileText string, d *model.Detail) {
	if ctx.Err() != nil {
		markCancelled(d)
		return
	}

	log = log.With(zap.String("posting_id", d.PostingID), zap.String("title", d.Title))

	if e.reasoner == nil {
		d.Status = model.DetailFailed
		d.Error = "reasoning capability is not configured"
		return
	}

	prompt := strings.NewReplacer(
		"{{PROFILE}}", profileText,
		"{{POSTING}}", postingText(d),
	).Replace(assessTemplate)

	log.Debug("assessment request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, maxLogLength)),
	)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CallTimeout)
	defer cancel()

	raw, err := e.reasoner.GenerateContent(callCtx, systemPrompt, prompt)
	if err != nil {
		d.Status = model.DetailFailed
		d.Error = utils.TruncateForLog(err.Error(), maxLogLength)
		log.Warn("assessment failed", zap.Error(err))
		return
	}
	d.Raw = truncateRunes(raw, e.cfg.MaxRawRunes)

	a, err := Decode(raw)
	if err != nil {
		d.Status = model.DetailFailed
		d.Error = err.Error()
		log.Warn("assessment response is malformed", zap.String("response_preview", utils.TruncateForLog(raw, maxLogLength)))
		return
	}

	d.Status = model.DetailOK
	d.Score = a.Score
	d.Fit = a.Fit
	d.Strengths = a.Strengths
	d.Gaps = a.Gaps
	d.Recommendation = a.Recommendation
	d.Likelihood = a.Likelihood
	d.Defaulted = a.Defaulted

	if len(a.Defaulted) > 0 {
		log.Debug("assessment fields defaulted", zap.Strings("fields", a.Defaulted))
	}
}

func markCancelled(d *model.Detail) {
	d.Status = model.DetailCancelled
	d.Error = errCancelled
}

func postingText(d *model.Detail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", valueOr(d.Title, "Unknown position"))
	fmt.Fprintf(&b, "Company: %s\n", valueOr(d.Company, "Unknown company"))
	fmt.Fprintf(&b, "Location: %s\n", valueOr(d.Location, "Unknown location"))
	fmt.Fprintf(&b, "Description: %s", valueOr(d.Description, "No description available"))
	return b.String()
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func status(details []model.Detail) model.EvaluationStatus {
	var ok, cancelled int
	for _, d := range details {
		switch d.Status {
		case model.DetailOK:
			ok++
		case model.DetailCancelled:
			cancelled++
		}
	}
	switch {
	case cancelled > 0:
		return model.EvaluationCancelled
	case ok == len(details):
		return model.EvaluationCompleted
	case ok == 0:
		return model.EvaluationFailed
	default:
		return model.EvaluationPartial
	}
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}
