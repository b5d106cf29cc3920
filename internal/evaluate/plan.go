package evaluate

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/skillscope/skillscope/internal/model"
	"github.com/skillscope/skillscope/internal/profile"
)

//go:embed plan.md
var planTemplate string

const planSystemPrompt = "You are a senior career coach. Be specific, realistic and encouraging."

// plan asks for an improvement plan and falls back to a fixed one when the
// reasoning capability is missing, fails or the evaluation was cancelled.
func (e *Evaluator) plan(ctx context.Context, log *zap.Logger, p *profile.Profile, eval *model.Evaluation) *model.ImprovementPlan {
	if e.reasoner == nil || ctx.Err() != nil || eval.Summary.Succeeded == 0 {
		return FallbackPlan(p, eval.Summary, e.now())
	}

	prompt := strings.NewReplacer(
		"{{PROFILE}}", p.Text(),
		"{{SUMMARY}}", summaryForPrompt(eval.Summary),
	).Replace(planTemplate)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	text, err := e.reasoner.GenerateContent(callCtx, planSystemPrompt, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn("improvement plan generation failed, using the fallback plan", zap.Error(err))
		return FallbackPlan(p, eval.Summary, e.now())
	}

	return &model.ImprovementPlan{
		Text:        strings.TrimSpace(text),
		GeneratedAt: e.now().UTC(),
	}
}

func summaryForPrompt(s model.Summary) string {
	var b strings.Builder
	if s.AverageScore != nil {
		fmt.Fprintf(&b, "Average score: %.0f/100\n", *s.AverageScore)
	}
	fmt.Fprintf(&b, "Postings assessed: %d\n", s.Succeeded)
	fmt.Fprintf(&b, "Distribution: %d high, %d medium, %d low\n", s.Distribution.High, s.Distribution.Medium, s.Distribution.Low)
	if len(s.CommonStrengths) > 0 {
		fmt.Fprintf(&b, "Common strengths: %s\n", strings.Join(s.CommonStrengths, " | "))
	}
	if len(s.CommonGaps) > 0 {
		fmt.Fprintf(&b, "Common gaps: %s\n", strings.Join(s.CommonGaps, " | "))
	}
	return strings.TrimSpace(b.String())
}

// FallbackPlan builds a deterministic plan from the profile and the summary.
func FallbackPlan(p *profile.Profile, s model.Summary, at time.Time) *model.ImprovementPlan {
	var b strings.Builder
	b.WriteString("CURRENT STATUS\n")
	switch {
	case p.Field != "" && p.Experience != "":
		fmt.Fprintf(&b, "You are working in the %s field with %s of experience.", p.Field, p.Experience)
	case p.Field != "":
		fmt.Fprintf(&b, "You are working in the %s field.", p.Field)
	default:
		b.WriteString("You are looking for your next role.")
	}
	if s.AverageScore != nil {
		fmt.Fprintf(&b, " Your average match score is %.0f/100 across %d assessed postings.", *s.AverageScore, s.Succeeded)
	}
	b.WriteString("\n\nIMMEDIATE ACTIONS (0-2 months)\n")
	b.WriteString("- Update your CV to highlight keywords and measurable achievements from the postings you target\n")
	b.WriteString("- Tailor every application to the requirements of the posting\n")
	b.WriteString("- Prepare concrete examples of your work for interviews\n")
	if len(s.CommonGaps) > 0 {
		b.WriteString("\nSKILL DEVELOPMENT PRIORITIES\n")
		for _, gap := range s.CommonGaps {
			fmt.Fprintf(&b, "- %s\n", gap)
		}
	}
	b.WriteString("\nMEDIUM TERM (2-4 months)\n")
	b.WriteString("- Complete a course or certification in a skill that postings ask for most often\n")
	b.WriteString("- Build a small portfolio project that shows the skill in practice\n")
	b.WriteString("\nLONG TERM (4-6 months)\n")
	b.WriteString("- Grow your professional network in the industries you target\n")
	if len(s.CommonStrengths) > 0 {
		fmt.Fprintf(&b, "- Keep building on your strengths: %s\n", strings.Join(s.CommonStrengths, ", "))
	}

	return &model.ImprovementPlan{
		Text:        strings.TrimSpace(b.String()),
		Fallback:    true,
		GeneratedAt: at.UTC(),
	}
}
