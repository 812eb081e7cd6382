package brand

import (
	"context"

	"brandforge/internal/domain"
)

// StaticResolver serves one fixed guideline set for every brand. Brand CRUD
// and guideline extraction live in a separate service; until that service is
// consulted per brand, the orchestrator runs against this baseline so audits
// always have rules to score against.
type StaticResolver struct {
	guidelines map[string]string
}

// NewStaticResolver builds a resolver around the given guideline set. A nil
// map falls back to a conservative default.
func NewStaticResolver(guidelines map[string]string) *StaticResolver {
	if len(guidelines) == 0 {
		guidelines = map[string]string{
			"colors":     "use only the brand palette; no off-palette accents",
			"typography": "headlines in the primary brand typeface",
			"logo_usage": "logo unobscured with mandated clear space",
			"tone":       "professional, confident, no slang",
			"layout":     "respect grid margins; single focal point",
		}
	}
	return &StaticResolver{guidelines: guidelines}
}

// Rules returns the guideline set for a brand.
func (r *StaticResolver) Rules(ctx context.Context, brandID string) (domain.BrandRules, error) {
	return domain.BrandRules{BrandID: brandID, Guidelines: r.guidelines}, nil
}
