package pipeline

import (
	"context"
	"encoding/json"

	"planify/internal/llmclient"
	"planify/internal/prompt"
	"planify/internal/types"
	"planify/internal/util/jsonutil"
)

var provisionSpec = prompt.Spec{
	Purpose: "Specify the concrete, costed provisions required to deliver a child's EHC plan outcomes.",
	Background: "Each provision is a specific service or resource with a provider, delivery " +
		"schedule, and annual cost, linked to the outcomes it helps meet. The outcomes " +
		"already agreed for this plan are included in the input with their identifiers.",
	OutputFields: []prompt.Field{
		{Name: "provision_type", Type: "string", Required: true, Description: "One of: educational, health, social_care, therapy, equipment, transport."},
		{Name: "title", Type: "string", Required: true},
		{Name: "description", Type: "string", Required: true},
		{Name: "service_provider", Type: "string", Required: true},
		{Name: "delivery_method", Type: "string", Required: true, Description: "Individual, small group, whole class, etc."},
		{Name: "frequency_description", Type: "string", Required: true},
		{Name: "hours_per_week", Type: "number", Required: true},
		{Name: "weeks_per_year", Type: "number", Required: true},
		{Name: "group_size", Type: "number", Required: false},
		{Name: "staff_qualifications_required", Type: "[]string", Required: true},
		{Name: "linked_outcomes", Type: "[]string", Required: true, Description: "IDs of the outcomes this provision supports; use only IDs from the input."},
		{Name: "expected_impact", Type: "string", Required: true},
		{Name: "start_date", Type: "string", Required: true, Description: "YYYY-MM-DD."},
		{Name: "review_frequency", Type: "string", Required: true},
		{Name: "statutory_requirement", Type: "bool", Required: true},
		{Name: "annual_cost", Type: "number", Required: true},
	},
	Constraints: []string{
		"Return a JSON array of provision objects; no wrapper object.",
		"linked_outcomes must only contain IDs that appear in the input outcomes.",
		"hours_per_week, weeks_per_year, and annual_cost must be non-negative numbers.",
	},
}

// ProvisionSynthesis is the tagged result of provision synthesis, with the
// same degradation semantics as OutcomeSynthesis.
type ProvisionSynthesis struct {
	Provisions []types.Provision
	TokensUsed int
	Degraded   bool
}

// ProvisionSynthesizer produces the structured provision list. It has a hard
// data dependency on the outcome synthesizer: provision prompts embed the
// produced outcomes and provision records reference their IDs.
type ProvisionSynthesizer struct {
	LLM         llmclient.LLMClient
	Temperature float64
	MaxTokens   int
}

func (s *ProvisionSynthesizer) Synthesize(ctx context.Context, pctx types.PlanGenerationContext, outcomes []types.Outcome) (ProvisionSynthesis, error) {
	user, err := provisionSpec.Build(provisionInputJSON(pctx, outcomes))
	if err != nil {
		return ProvisionSynthesis{}, err
	}
	gen, err := s.LLM.Generate(ctx, prompt.SystemDrafting, user, llmclient.GenerateOptions{
		Temperature:    s.Temperature,
		MaxTokens:      s.MaxTokens,
		ResponseFormat: llmclient.FormatJSON,
	})
	if err != nil {
		return ProvisionSynthesis{}, err
	}

	var provisions []types.Provision
	if err := jsonutil.UnmarshalModelOutput(gen.Text, &provisions); err != nil {
		return ProvisionSynthesis{TokensUsed: gen.TokensUsed, Degraded: true}, nil
	}

	known := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		known[o.ID] = true
	}
	for i := range provisions {
		provisions[i] = sanitizeProvision(provisions[i], known)
	}
	return ProvisionSynthesis{Provisions: provisions, TokensUsed: gen.TokensUsed}, nil
}

// sanitizeProvision enforces the schema invariants on a parsed record:
// hallucinated outcome IDs are dropped (not an error) and negative quantities
// are clamped to zero.
func sanitizeProvision(p types.Provision, knownOutcomes map[string]bool) types.Provision {
	linked := make([]string, 0, len(p.LinkedOutcomes))
	for _, id := range p.LinkedOutcomes {
		if knownOutcomes[id] {
			linked = append(linked, id)
		}
	}
	p.LinkedOutcomes = linked
	if p.HoursPerWeek < 0 {
		p.HoursPerWeek = 0
	}
	if p.WeeksPerYear < 0 {
		p.WeeksPerYear = 0
	}
	if p.AnnualCost < 0 {
		p.AnnualCost = 0
	}
	if p.GroupSize < 0 {
		p.GroupSize = 0
	}
	return p
}

func provisionInputJSON(pctx types.PlanGenerationContext, outcomes []types.Outcome) string {
	type outcomeRef struct {
		ID       string `json:"id"`
		Category string `json:"category"`
		Title    string `json:"title"`
		Detail   string `json:"specific_detail"`
	}
	refs := make([]outcomeRef, 0, len(outcomes))
	for _, o := range outcomes {
		refs = append(refs, outcomeRef{
			ID:       o.ID,
			Category: string(o.Category),
			Title:    o.Title,
			Detail:   o.SpecificDetail,
		})
	}
	input := map[string]any{
		"outcomes":        refs,
		"local_authority": pctx.LocalAuthority,
		"plan_type":       string(pctx.PlanType),
	}
	for _, name := range []string{"child_profile", "current_setting", "assessment_recommendations"} {
		if v, ok := prompt.Resolve(name, pctx); ok {
			input[name] = v
		}
	}
	b, _ := json.MarshalIndent(input, "", "  ")
	return string(b)
}
