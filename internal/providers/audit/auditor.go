package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"brandforge/internal/domain"
	"brandforge/internal/providers/genai"
)

// RawCategoryScore is a single unvalidated score reported by the reasoning
// collaborator. Validation and aggregation happen in the compliance package.
type RawCategoryScore struct {
	Category   string             `json:"category"`
	Score      float64            `json:"score"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// RawResult is the collaborator's unvalidated audit payload.
type RawResult struct {
	Categories []RawCategoryScore `json:"categories"`
	Summary    string             `json:"summary,omitempty"`
}

// Auditor is the narrow contract for the reasoning collaborator. The caller
// bounds the call with its own context deadline.
type Auditor interface {
	Audit(ctx context.Context, imageRef string, rules domain.BrandRules, categories []string) (*RawResult, error)
}

// GeminiAuditor scores assets by asking a reasoning model for structured JSON.
type GeminiAuditor struct {
	client *genai.Client
}

func NewGeminiAuditor(client *genai.Client) *GeminiAuditor {
	return &GeminiAuditor{client: client}
}

func (a *GeminiAuditor) Audit(ctx context.Context, imageRef string, rules domain.BrandRules, categories []string) (*RawResult, error) {
	raw, err := a.client.Reason(ctx, genai.ReasonRequest{
		Instruction: buildAuditInstruction(rules, categories),
		ImageRef:    imageRef,
		RequestID:   rules.BrandID,
	})
	if err != nil {
		return nil, fmt.Errorf("audit call: %w", err)
	}

	var result RawResult
	if err := json.Unmarshal([]byte(extractJSON(raw)), &result); err != nil {
		return nil, fmt.Errorf("parse audit response: %w", err)
	}
	if len(result.Categories) == 0 {
		return nil, fmt.Errorf("audit response has no category scores")
	}
	return &result, nil
}

func buildAuditInstruction(rules domain.BrandRules, categories []string) string {
	var b strings.Builder
	b.WriteString("You are a brand compliance auditor. Score the attached image against the brand guidelines below.\n")
	b.WriteString("Score each of these categories from 0 to 100: ")
	b.WriteString(strings.Join(categories, ", "))
	b.WriteString(".\n")
	names := make([]string, 0, len(rules.Guidelines))
	for name := range rules.Guidelines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, rules.Guidelines[name])
	}
	b.WriteString(`Respond with JSON only: {"categories":[{"category":"...","score":0,"violations":[{"category":"...","description":"...","severity":"low|medium|high|critical","fix_suggestion":"..."}]}],"summary":"..."}`)
	return b.String()
}

// extractJSON tolerates models that wrap JSON answers in fences or prose.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}
	if start := strings.Index(raw, "{"); start > 0 {
		raw = raw[start:]
	}
	if end := strings.LastIndex(raw, "}"); end >= 0 && end < len(raw)-1 {
		raw = raw[:end+1]
	}
	return raw
}

var _ Auditor = (*GeminiAuditor)(nil)
