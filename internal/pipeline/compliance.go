package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"planify/internal/llmclient"
	"planify/internal/prompt"
	"planify/internal/types"
	"planify/internal/util/jsonutil"
)

var complianceSpec = prompt.Spec{
	Purpose: "Review a drafted EHC plan against the statutory requirements checklist.",
	Background: "The checklist covers: the child's views are recorded (section_a), needs are " +
		"specified with evidence (section_b), outcomes are SMART (section_e), educational " +
		"provision is specific and quantified (section_f), and health provision is specified " +
		"(section_g). The review is advisory and never blocks plan generation.",
	OutputFields: []prompt.Field{
		{Name: "compliance_score", Type: "number", Required: true, Description: "0-100 overall rating."},
		{Name: "issues", Type: "[]string", Required: true, Description: "Concrete compliance problems found."},
		{Name: "recommendations", Type: "[]string", Required: true, Description: "Actionable fixes, one per issue where possible."},
		{Name: "statutory_requirements_met", Type: "map[string]bool", Required: true, Description: "Checklist keys (section_a, section_b, section_e, section_f, section_g) to pass/fail."},
	},
	Constraints: []string{
		"Return a single JSON object.",
		"compliance_score must be between 0 and 100.",
		"Judge only what is present in the input; do not assume missing content exists elsewhere.",
	},
}

// Evaluation is the combined result of the compliance review and the locally
// computed overall confidence.
type Evaluation struct {
	Compliance types.ComplianceReport
	Confidence int
	TokensUsed int
}

// Evaluator scores the assembled plan. The compliance path calls the model;
// the confidence path is pure local computation.
type Evaluator struct {
	LLM         llmclient.LLMClient
	Temperature float64
	MaxTokens   int
}

// Evaluate never fails: a failed or unparseable compliance review degrades to
// a zero-score report flagged for manual review, because the review is
// advisory rather than blocking.
func (e *Evaluator) Evaluate(
	ctx context.Context,
	pctx types.PlanGenerationContext,
	sections map[types.SectionType]types.SectionResult,
	outcomes []types.Outcome,
	provisions []types.Provision,
) Evaluation {
	report, tokens := e.reviewCompliance(ctx, sections, outcomes, provisions)
	return Evaluation{
		Compliance: report,
		Confidence: OverallConfidence(pctx, sections),
		TokensUsed: tokens,
	}
}

func (e *Evaluator) reviewCompliance(
	ctx context.Context,
	sections map[types.SectionType]types.SectionResult,
	outcomes []types.Outcome,
	provisions []types.Provision,
) (types.ComplianceReport, int) {
	user, err := complianceSpec.Build(complianceInputJSON(sections, outcomes, provisions))
	if err != nil {
		return fallbackComplianceReport(), 0
	}
	gen, err := e.LLM.Generate(ctx, prompt.SystemDrafting, user, llmclient.GenerateOptions{
		Temperature:    e.Temperature,
		MaxTokens:      e.MaxTokens,
		ResponseFormat: llmclient.FormatJSON,
	})
	if err != nil {
		return fallbackComplianceReport(), 0
	}
	var report types.ComplianceReport
	if err := jsonutil.UnmarshalModelOutput(gen.Text, &report); err != nil {
		return fallbackComplianceReport(), gen.TokensUsed
	}
	report.ComplianceScore = clampScore(report.ComplianceScore)
	if report.Issues == nil {
		report.Issues = []string{}
	}
	if report.Recommendations == nil {
		report.Recommendations = []string{}
	}
	if report.StatutoryRequirementsMet == nil {
		report.StatutoryRequirementsMet = map[string]bool{}
	}
	return report, gen.TokensUsed
}

func fallbackComplianceReport() types.ComplianceReport {
	return types.ComplianceReport{
		ComplianceScore:          0,
		Issues:                   []string{"Unable to complete compliance check"},
		Recommendations:          []string{"Manual review required"},
		StatutoryRequirementsMet: map[string]bool{},
	}
}

// OverallConfidence rates how far the context and the generated content can be
// trusted without human review. Computed locally; no model call.
func OverallConfidence(pctx types.PlanGenerationContext, sections map[types.SectionType]types.SectionResult) int {
	score := 100
	if strings.TrimSpace(pctx.Child.PrimaryDiagnosis) == "" {
		score -= 10
	}
	if len(pctx.Assessments) == 0 {
		score -= 15
	}
	if strings.TrimSpace(pctx.ParentInput.ChildViews) == "" {
		score -= 10
	}
	if strings.TrimSpace(pctx.ParentInput.ParentViews) == "" {
		score -= 10
	}
	// Missing sections contribute their penalty through zero-length text.
	for _, st := range types.AllSectionTypes() {
		if len(sections[st].Text) < 200 {
			score -= 5
		}
	}
	return clampScore(score)
}

func complianceInputJSON(
	sections map[types.SectionType]types.SectionResult,
	outcomes []types.Outcome,
	provisions []types.Provision,
) string {
	sectionTexts := map[string]string{}
	for st, res := range sections {
		sectionTexts[string(st)] = res.Text
	}
	input := map[string]any{
		"sections":   sectionTexts,
		"outcomes":   outcomes,
		"provisions": provisions,
	}
	b, _ := json.MarshalIndent(input, "", "  ")
	return string(b)
}
