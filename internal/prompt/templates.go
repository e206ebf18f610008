package prompt

import (
	"fmt"
	"strings"

	"planify/internal/types"
)

// SystemDrafting is the shared system instruction for free-text section
// drafting.
const SystemDrafting = `You are an experienced special educational needs caseworker drafting ` +
	`statutory Education, Health and Care plan content for a UK local authority. ` +
	`Write in clear, person-centred, professional English. Use only the information ` +
	`provided; never invent assessment findings, diagnoses, or family details.`

// SectionTemplate is a versioned prompt template for one plan section.
// Requires names the placeholders the template depends on; coverage is
// checked once at startup by ValidateTemplates.
type SectionTemplate struct {
	Section  types.SectionType
	Version  string
	Requires []string
	Text     string
}

var sectionTemplates = map[types.SectionType]SectionTemplate{
	types.SectionChildViews: {
		Section:  types.SectionChildViews,
		Version:  "v2",
		Requires: []string{"child_profile", "parent_input"},
		Text: `Draft "Section A: The views, interests and aspirations of the child" for an EHC plan.

Child profile:
{{child_profile}}

Views gathered from the family:
{{parent_input}}

Write 2-4 paragraphs in the first person plural about the child ("X tells us...").
Centre the child's own voice wherever views are recorded.`,
	},
	types.SectionParentViews: {
		Section:  types.SectionParentViews,
		Version:  "v2",
		Requires: []string{"child_profile", "parent_input"},
		Text: `Draft the parent and carer views section of an EHC plan.

Child profile:
{{child_profile}}

Parent and carer input:
{{parent_input}}

Summarise the family's perspective, home context, and concerns in 2-4 paragraphs.
Reflect their aspirations faithfully: {{parent_aspirations}}`,
	},
	types.SectionEducationalNeeds: {
		Section:  types.SectionEducationalNeeds,
		Version:  "v3",
		Requires: []string{"child_profile", "assessment_summary", "identified_needs"},
		Text: `Draft "Section B: Special educational needs" for an EHC plan.

Child profile:
{{child_profile}}

Assessment evidence:
{{assessment_summary}}

Needs identified so far:
{{identified_needs}}

Describe each area of need with its evidence base. Group needs under communication
and interaction, cognition and learning, social/emotional/mental health, and
sensory/physical where applicable.`,
	},
	types.SectionOutcomesNarrative: {
		Section:  types.SectionOutcomesNarrative,
		Version:  "v2",
		Requires: []string{"child_profile", "identified_needs", "parent_aspirations"},
		Text: `Draft the outcomes narrative for an EHC plan: the overall picture of what good
progress looks like for this child across education, health and care.

Child profile:
{{child_profile}}

Identified needs:
{{identified_needs}}

Family aspirations:
{{parent_aspirations}}

Write 2-3 paragraphs linking aspirations to broad outcome areas. Do not list
individual SMART outcomes; those are produced separately.`,
	},
	types.SectionEducationalProvision: {
		Section:  types.SectionEducationalProvision,
		Version:  "v3",
		Requires: []string{"child_profile", "assessment_recommendations", "current_setting"},
		Text: `Draft the educational provision narrative ("Section F" overview) for an EHC plan.

Child profile:
{{child_profile}}

Current setting and provision:
{{current_setting}}

Professional recommendations:
{{assessment_recommendations}}

Describe the educational support the child requires, referencing the local offer
of {{local_authority}}. Itemised, costed provisions are produced separately.`,
	},
	types.SectionHealthProvision: {
		Section:  types.SectionHealthProvision,
		Version:  "v2",
		Requires: []string{"child_profile", "assessment_summary"},
		Text: `Draft the health provision narrative ("Section G" overview) for an EHC plan.

Child profile:
{{child_profile}}

Assessment evidence:
{{assessment_summary}}

Describe health needs and the therapeutic or clinical input required, including
how health services will work with the educational setting.`,
	},
}

// TemplateFor returns the template registered for the section type.
func TemplateFor(s types.SectionType) (SectionTemplate, bool) {
	t, ok := sectionTemplates[s]
	return t, ok
}

// ValidateTemplates verifies, at startup rather than call time, that every
// section type has a template, that each declared requirement is a known
// placeholder, and that the template text actually references it.
func ValidateTemplates() error {
	known := map[string]bool{}
	for _, n := range Placeholders() {
		known[n] = true
	}
	for _, s := range types.AllSectionTypes() {
		t, ok := sectionTemplates[s]
		if !ok {
			return fmt.Errorf("prompt: no template registered for section %q", s)
		}
		for _, req := range t.Requires {
			if !known[req] {
				return fmt.Errorf("prompt: template %s/%s requires unknown placeholder %q", s, t.Version, req)
			}
			if !strings.Contains(t.Text, "{{"+req+"}}") {
				return fmt.Errorf("prompt: template %s/%s declares %q but never references it", s, t.Version, req)
			}
		}
	}
	return nil
}
