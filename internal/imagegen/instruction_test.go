package imagegen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"brandforge/internal/domain"
)

func TestBuildInstructionFreshRender(t *testing.T) {
	got := BuildInstruction(PromptInput{
		BrandName:  "acme coffee",
		Prompt:     "summer sale banner",
		Guidelines: map[string]string{"colors": "primary #1A73E8 on white"},
	})

	assert.Contains(t, got, "Create a brand asset for Acme Coffee.")
	assert.Contains(t, got, "summer sale banner.")
	assert.Contains(t, got, "Colors guideline: primary #1A73E8 on white.")
	assert.NotContains(t, got, "Refine")
}

func TestBuildInstructionRefinementFoldsViolations(t *testing.T) {
	got := BuildInstruction(PromptInput{
		BrandName: "acme",
		Prompt:    "summer sale banner",
		Violations: []domain.Violation{
			{Category: "Colors", Description: "background off-palette", FixSuggestion: "use the approved background blue"},
			{Category: "Typography", Description: "wrong typeface"},
		},
		TweakInstruction: "make the logo bigger",
		Refinement:       true,
	})

	assert.Contains(t, got, "Refine the attached brand asset")
	assert.Contains(t, got, "Fix the following brand compliance issues:")
	assert.Contains(t, got, "1. [Colors] use the approved background blue")
	assert.Contains(t, got, "2. [Typography] wrong typeface")
	assert.Contains(t, got, "Requested adjustment: make the logo bigger.")
}

func TestBuildInstructionIsDeterministic(t *testing.T) {
	in := PromptInput{
		Prompt: "poster",
		Guidelines: map[string]string{
			"typography": "primary typeface",
			"colors":     "brand palette only",
			"layout":     "respect grid margins",
		},
	}

	got := BuildInstruction(in)
	colors := strings.Index(got, "Colors guideline")
	layout := strings.Index(got, "Layout guideline")
	typography := strings.Index(got, "Typography guideline")
	assert.GreaterOrEqual(t, colors, 0)
	assert.Less(t, colors, layout)
	assert.Less(t, layout, typography)

	for i := 0; i < 10; i++ {
		assert.Equal(t, got, BuildInstruction(in))
	}
}

func TestBuildInstructionSkipsEmptyParts(t *testing.T) {
	got := BuildInstruction(PromptInput{
		Prompt:     "poster",
		Guidelines: map[string]string{"tone": "   "},
		Violations: []domain.Violation{{Category: "Layout"}},
	})

	assert.Contains(t, got, "Create a brand asset.")
	assert.NotContains(t, got, "Tone guideline")
	assert.NotContains(t, got, "1. [Layout]")
}
