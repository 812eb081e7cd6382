package imagegen

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"brandforge/internal/domain"
)

// PromptInput carries everything the composer needs for one generation turn.
type PromptInput struct {
	BrandName        string
	Prompt           string
	Guidelines       map[string]string
	Violations       []domain.Violation
	TweakInstruction string
	Refinement       bool
}

// BuildInstruction composes the generation instruction for a fresh render or
// a correction turn. Correction turns fold the previous audit's violations
// and any user tweak instruction into the prompt.
func BuildInstruction(in PromptInput) string {
	parts := []string{}
	titler := cases.Title(language.Und)

	prompt := strings.TrimSpace(in.Prompt)
	brand := strings.TrimSpace(in.BrandName)
	switch {
	case in.Refinement:
		parts = append(parts, "Refine the attached brand asset, keeping its overall composition.")
	case brand != "":
		parts = append(parts, fmt.Sprintf("Create a brand asset for %s.", titler.String(brand)))
	default:
		parts = append(parts, "Create a brand asset.")
	}
	if prompt != "" {
		parts = append(parts, prompt+".")
	}

	for _, name := range sortedKeys(in.Guidelines) {
		if rule := strings.TrimSpace(in.Guidelines[name]); rule != "" {
			parts = append(parts, fmt.Sprintf("%s guideline: %s.", titler.String(name), rule))
		}
	}

	if len(in.Violations) > 0 {
		parts = append(parts, "Fix the following brand compliance issues:")
		for idx, v := range in.Violations {
			fix := strings.TrimSpace(v.FixSuggestion)
			if fix == "" {
				fix = strings.TrimSpace(v.Description)
			}
			if fix == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("%d. [%s] %s", idx+1, v.Category, fix))
		}
	}

	if tweak := strings.TrimSpace(in.TweakInstruction); tweak != "" {
		parts = append(parts, "Requested adjustment: "+tweak+".")
	}

	return strings.Join(parts, " ")
}

// sortedKeys fixes the guideline order so identical inputs compose identical
// instructions.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
