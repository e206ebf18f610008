package pipeline

import (
	"context"
	"fmt"
	"strings"

	"planify/internal/llmclient"
	"planify/internal/prompt"
	"planify/internal/types"
)

// SectionGenerator drafts the free-text plan sections, one model call per
// section type.
type SectionGenerator struct {
	LLM         llmclient.LLMClient
	Temperature float64
	MaxTokens   int
}

// Generate renders the section's template against the context and asks the
// model for plain text. Empty output is a stage failure; the orchestrator
// decides whether that is fatal to the run.
func (g *SectionGenerator) Generate(ctx context.Context, pctx types.PlanGenerationContext, section types.SectionType) (types.SectionResult, error) {
	tpl, ok := prompt.TemplateFor(section)
	if !ok {
		return types.SectionResult{}, fmt.Errorf("pipeline: no template for section %q", section)
	}
	user, err := prompt.Render(tpl.Text, pctx)
	if err != nil {
		return types.SectionResult{}, err
	}
	gen, err := g.LLM.Generate(ctx, prompt.SystemDrafting, user, llmclient.GenerateOptions{
		Temperature:    g.Temperature,
		MaxTokens:      g.MaxTokens,
		ResponseFormat: llmclient.FormatText,
	})
	if err != nil {
		return types.SectionResult{}, err
	}
	text := strings.TrimSpace(gen.Text)
	if text == "" {
		return types.SectionResult{}, llmclient.ErrEmptyOutput
	}
	return types.SectionResult{
		SectionType: section,
		Text:        text,
		TokensUsed:  gen.TokensUsed,
		Confidence:  sectionConfidence(text, pctx),
	}, nil
}

// sectionConfidence scores one drafted section from its length and the
// richness of the context it was drafted from.
func sectionConfidence(text string, pctx types.PlanGenerationContext) int {
	score := 80
	if len(text) > 300 {
		score += 10
	}
	if len(text) < 150 {
		score -= 20
	}
	if len(pctx.Assessments) > 0 {
		score += 5
	}
	if strings.TrimSpace(pctx.Child.PrimaryDiagnosis) != "" {
		score += 5
	}
	return clampScore(score)
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
