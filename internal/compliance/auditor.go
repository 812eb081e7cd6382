package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"brandforge/internal/domain"
	"brandforge/internal/infra"
	"brandforge/internal/providers/audit"
)

// DefaultWeight applies to categories the canonical table does not name.
const DefaultWeight = 10.0

// CategoryPassThreshold marks an individual dimension as passing. It is
// deliberately the review boundary, not the auto-approve one.
const CategoryPassThreshold = 70.0

// canonicalWeights is the fixed weight table used to aggregate category
// scores. The collaborator's own aggregate is never trusted; the overall
// score is always recomputed from these weights.
var canonicalWeights = map[string]float64{
	"colors":     30,
	"typography": 25,
	"logo_usage": 25,
	"tone":       10,
	"layout":     10,
}

// DefaultCategories is the fixed list requested from the reasoning collaborator.
var DefaultCategories = []string{"colors", "typography", "logo_usage", "tone", "layout"}

// Auditor scores produced assets against brand rules with a hard wall-clock
// timeout. On timeout or collaborator failure it returns a degraded,
// non-approving score instead of an error so the pipeline never hangs.
type Auditor struct {
	collaborator     audit.Auditor
	timeout          time.Duration
	approveThreshold float64
	logger           infra.Logger
}

// NewAuditor wires the reasoning collaborator behind the scoring rules.
func NewAuditor(collaborator audit.Auditor, timeout time.Duration, approveThreshold float64, logger infra.Logger) *Auditor {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Auditor{
		collaborator:     collaborator,
		timeout:          timeout,
		approveThreshold: approveThreshold,
		logger:           logger,
	}
}

// Score audits an image reference. The returned score is always usable for
// routing; Unavailable marks verdicts degraded by timeout or failure.
func (a *Auditor) Score(ctx context.Context, imageRef string, rules domain.BrandRules) domain.ComplianceScore {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	raw, err := a.collaborator.Audit(ctx, imageRef, rules, DefaultCategories)
	if err != nil {
		reason := "audit failed"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "audit timed out"
		}
		a.logger.Warn().Err(err).Str("image_ref", imageRef).Msg("compliance: " + reason)
		return DegradedScore(reason)
	}

	score, err := Aggregate(raw, a.approveThreshold)
	if err != nil {
		a.logger.Warn().Err(err).Str("image_ref", imageRef).Msg("compliance: rejected audit payload")
		return DegradedScore("audit returned invalid scores")
	}
	return score
}

// Aggregate validates raw category scores and recomputes the weighted overall
// score. Raw scores outside [0,100] reject the whole payload; clamping is a
// belt for float jitter after validation, not a repair mechanism.
func Aggregate(raw *audit.RawResult, approveThreshold float64) (domain.ComplianceScore, error) {
	if raw == nil || len(raw.Categories) == 0 {
		return domain.ComplianceScore{}, fmt.Errorf("no category scores")
	}

	titler := cases.Title(language.Und)
	var weightedSum, totalWeight float64
	categories := make([]domain.CategoryScore, 0, len(raw.Categories))
	for _, rc := range raw.Categories {
		if rc.Score < 0 || rc.Score > 100 {
			return domain.ComplianceScore{}, fmt.Errorf("category %q score %.2f out of range", rc.Category, rc.Score)
		}
		weight := DefaultWeight
		if w, ok := canonicalWeights[rc.Category]; ok {
			weight = w
		}
		score := clamp(rc.Score)
		weightedSum += score * weight
		totalWeight += weight

		violations := rc.Violations
		for i := range violations {
			if violations[i].Category == "" {
				violations[i].Category = rc.Category
			}
			violations[i].Category = normalizeCategory(titler, violations[i].Category)
		}
		categories = append(categories, domain.CategoryScore{
			Category:   rc.Category,
			Score:      score,
			Passed:     score >= CategoryPassThreshold,
			Violations: violations,
		})
	}

	overall := 0.0
	if totalWeight > 0 {
		overall = clamp(weightedSum / totalWeight)
	}
	return domain.ComplianceScore{
		OverallScore: overall,
		Categories:   categories,
		Approved:     overall >= approveThreshold,
		Summary:      raw.Summary,
	}, nil
}

// DegradedScore is the zero-confidence verdict used when the auditor is
// unavailable. It routes like a failing score.
func DegradedScore(reason string) domain.ComplianceScore {
	return domain.ComplianceScore{
		OverallScore: 0,
		Approved:     false,
		Summary:      "compliance audit unavailable: " + reason,
		Unavailable:  true,
	}
}

func normalizeCategory(titler cases.Caser, category string) string {
	return titler.String(category)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
