package pipeline

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"planify/internal/llmclient"
	"planify/internal/prompt"
	"planify/internal/types"
	"planify/internal/util/jsonutil"
)

var outcomeSpec = prompt.Spec{
	Purpose: "Produce 6-8 SMART outcomes for a child's Education, Health and Care plan.",
	Background: "Each outcome must be Specific, Measurable, Achievable, Relevant and " +
		"Time-bound, grounded in the assessment evidence and the family's aspirations. " +
		"Cover a spread of categories rather than repeating one area.",
	OutputFields: []prompt.Field{
		{Name: "category", Type: "string", Required: true, Description: "One of: educational, independence, communication, health, community, employment."},
		{Name: "title", Type: "string", Required: true, Description: "Short outcome title."},
		{Name: "description", Type: "string", Required: true, Description: "One-paragraph outcome statement."},
		{Name: "specific_detail", Type: "string", Required: true, Description: "What exactly will change."},
		{Name: "measurable_criteria", Type: "string", Required: true, Description: "How progress is measured."},
		{Name: "achievable_rationale", Type: "string", Required: true, Description: "Why this is achievable from the baseline."},
		{Name: "relevant_justification", Type: "string", Required: true, Description: "Why this matters for this child."},
		{Name: "time_bound_deadline", Type: "string", Required: true, Description: "Target date, YYYY-MM-DD."},
		{Name: "success_criteria", Type: "[]string", Required: true, Description: "Observable success criteria."},
		{Name: "baseline_measurement", Type: "string", Required: true, Description: "Current baseline."},
		{Name: "milestones", Type: "[]{description, target_date}", Required: true, Description: "Interim milestones with dates."},
	},
	Constraints: []string{
		"Return a JSON array of 6 to 8 outcome objects; no wrapper object.",
		"Use only information present in the input; never invent assessment findings.",
		"Dates must be YYYY-MM-DD.",
	},
}

// OutcomeSynthesis is the tagged result of outcome synthesis. Degraded is set
// when the model answered but its output did not parse; the token spend is
// still recorded.
type OutcomeSynthesis struct {
	Outcomes   []types.Outcome
	TokensUsed int
	Degraded   bool
}

// OutcomeSynthesizer produces the structured SMART outcome list. It must
// complete before provision synthesis starts.
type OutcomeSynthesizer struct {
	LLM         llmclient.LLMClient
	Temperature float64
	MaxTokens   int
}

// Synthesize requests the outcome records as JSON and parses them. A parse
// failure returns an empty, degraded result rather than an error: a plan with
// zero generated outcomes is still inspectable and regenerable. Errors are
// returned only for failed model calls.
func (s *OutcomeSynthesizer) Synthesize(ctx context.Context, pctx types.PlanGenerationContext) (OutcomeSynthesis, error) {
	user, err := outcomeSpec.Build(contextInputJSON(pctx))
	if err != nil {
		return OutcomeSynthesis{}, err
	}
	gen, err := s.LLM.Generate(ctx, prompt.SystemDrafting, user, llmclient.GenerateOptions{
		Temperature:    s.Temperature,
		MaxTokens:      s.MaxTokens,
		ResponseFormat: llmclient.FormatJSON,
	})
	if err != nil {
		return OutcomeSynthesis{}, err
	}

	var docs []outcomeDoc
	if err := jsonutil.UnmarshalModelOutput(gen.Text, &docs); err != nil {
		return OutcomeSynthesis{TokensUsed: gen.TokensUsed, Degraded: true}, nil
	}
	outcomes := make([]types.Outcome, 0, len(docs))
	for _, d := range docs {
		o := d.toOutcome()
		o.ID = uuid.NewString()
		outcomes = append(outcomes, o)
	}
	return OutcomeSynthesis{Outcomes: outcomes, TokensUsed: gen.TokensUsed}, nil
}

// outcomeDoc is the wire shape requested from the model; IDs are assigned
// locally after parsing, never taken from the model.
type outcomeDoc struct {
	Category              string            `json:"category"`
	Title                 string            `json:"title"`
	Description           string            `json:"description"`
	SpecificDetail        string            `json:"specific_detail"`
	MeasurableCriteria    string            `json:"measurable_criteria"`
	AchievableRationale   string            `json:"achievable_rationale"`
	RelevantJustification string            `json:"relevant_justification"`
	TimeBoundDeadline     string            `json:"time_bound_deadline"`
	SuccessCriteria       []string          `json:"success_criteria"`
	BaselineMeasurement   string            `json:"baseline_measurement"`
	Milestones            []types.Milestone `json:"milestones"`
}

func (d outcomeDoc) toOutcome() types.Outcome {
	return types.Outcome{
		Category:              types.OutcomeCategory(d.Category),
		Title:                 d.Title,
		Description:           d.Description,
		SpecificDetail:        d.SpecificDetail,
		MeasurableCriteria:    d.MeasurableCriteria,
		AchievableRationale:   d.AchievableRationale,
		RelevantJustification: d.RelevantJustification,
		TimeBoundDeadline:     d.TimeBoundDeadline,
		SuccessCriteria:       d.SuccessCriteria,
		BaselineMeasurement:   d.BaselineMeasurement,
		Milestones:            d.Milestones,
	}
}

// contextInputJSON serializes the context pieces the synthesizers share.
func contextInputJSON(pctx types.PlanGenerationContext) string {
	input := map[string]string{}
	for _, name := range []string{
		"child_profile",
		"parent_input",
		"assessment_summary",
		"identified_needs",
		"parent_aspirations",
	} {
		if v, ok := prompt.Resolve(name, pctx); ok {
			input[name] = v
		}
	}
	input["plan_type"] = string(pctx.PlanType)
	input["urgency_level"] = string(pctx.Urgency)
	b, _ := json.MarshalIndent(input, "", "  ")
	return string(b)
}
