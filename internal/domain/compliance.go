package domain

// Severity ranks how badly a violation breaks brand rules.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Violation is a single brand-rule breach found during an audit.
type Violation struct {
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	Severity      Severity `json:"severity"`
	FixSuggestion string   `json:"fix_suggestion,omitempty"`
}

// CategoryScore is one audited dimension (colors, typography, ...).
type CategoryScore struct {
	Category   string      `json:"category"`
	Score      float64     `json:"score"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// ComplianceScore is the weighted audit verdict for one generated asset.
// OverallScore is always recomputed locally from the category scores; the
// audit collaborator's own aggregate is never trusted.
type ComplianceScore struct {
	OverallScore float64         `json:"overall_score"`
	Categories   []CategoryScore `json:"categories,omitempty"`
	Approved     bool            `json:"approved"`
	Summary      string          `json:"summary,omitempty"`
	Unavailable  bool            `json:"unavailable,omitempty"`
}

// AllViolations flattens every category's violations in category order.
func (c ComplianceScore) AllViolations() []Violation {
	var out []Violation
	for _, cat := range c.Categories {
		out = append(out, cat.Violations...)
	}
	return out
}

// BrandRules is the rule context handed to the audit collaborator. Guideline
// extraction itself is out of scope; the orchestrator only threads the
// already-extracted rules through.
type BrandRules struct {
	BrandID    string            `json:"brand_id"`
	Guidelines map[string]string `json:"guidelines,omitempty"`
}
