package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"planify/internal/types"
)

// TemplateError reports malformed template syntax. It is the only failure
// mode of rendering; unknown placeholders pass through untouched.
type TemplateError struct {
	Pos int
	Msg string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt: template error at offset %d: %s", e.Pos, e.Msg)
}

// resolver derives one placeholder's replacement text from the context.
type resolver func(types.PlanGenerationContext) string

var resolvers = map[string]resolver{
	"child_profile":              renderChildProfile,
	"parent_input":               renderParentInput,
	"assessment_summary":         renderAssessmentSummary,
	"current_setting":            renderCurrentSetting,
	"local_authority":            func(c types.PlanGenerationContext) string { return c.LocalAuthority },
	"identified_needs":           func(c types.PlanGenerationContext) string { return bulleted(c.Child.CurrentNeeds) },
	"parent_aspirations":         func(c types.PlanGenerationContext) string { return c.ParentInput.Aspirations },
	"assessment_recommendations": renderAssessmentRecommendations,
}

// Placeholders returns the known placeholder names, sorted.
func Placeholders() []string {
	names := make([]string, 0, len(resolvers))
	for n := range resolvers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve serializes a single named placeholder against the context. The
// synthesizers use it to build structured-prompt inputs from the same
// serializations the section templates see.
func Resolve(name string, ctx types.PlanGenerationContext) (string, bool) {
	fn, ok := resolvers[name]
	if !ok {
		return "", false
	}
	return fn(ctx), true
}

// Render substitutes every known {{placeholder}} in tpl with its serialized
// value from ctx. Unrecognized placeholders are left untouched. The transform
// is pure; the only error is malformed syntax (an unterminated "{{").
func Render(tpl string, ctx types.PlanGenerationContext) (string, error) {
	var out strings.Builder
	out.Grow(len(tpl))
	rest := tpl
	offset := 0
	for {
		i := strings.Index(rest, "{{")
		if i < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:i])
		j := strings.Index(rest[i:], "}}")
		if j < 0 {
			return "", &TemplateError{Pos: offset + i, Msg: "unterminated placeholder"}
		}
		name := strings.TrimSpace(rest[i+2 : i+j])
		if fn, ok := resolvers[name]; ok {
			out.WriteString(fn(ctx))
		} else {
			out.WriteString(rest[i : i+j+2])
		}
		offset += i + j + 2
		rest = rest[i+j+2:]
	}
}

// ---- placeholder serializers ----

func renderChildProfile(c types.PlanGenerationContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.Child.FullName())
	fmt.Fprintf(&b, "Date of birth: %s\n", c.Child.DateOfBirth)
	if age, err := c.Child.Age(time.Now()); err == nil {
		fmt.Fprintf(&b, "Age: %d\n", age)
	}
	if c.Child.Gender != "" {
		fmt.Fprintf(&b, "Gender: %s\n", c.Child.Gender)
	}
	fmt.Fprintf(&b, "Primary diagnosis: %s\n", c.Child.PrimaryDiagnosis)
	if len(c.Child.SecondaryDiagnoses) > 0 {
		fmt.Fprintf(&b, "Secondary diagnoses: %s\n", strings.Join(c.Child.SecondaryDiagnoses, "; "))
	}
	writeListSection(&b, "Current needs", c.Child.CurrentNeeds)
	writeListSection(&b, "Strengths", c.Child.Strengths)
	writeListSection(&b, "Challenges", c.Child.Challenges)
	writeListSection(&b, "Current support", c.Child.CurrentSupport)
	return strings.TrimRight(b.String(), "\n")
}

func renderParentInput(c types.PlanGenerationContext) string {
	var b strings.Builder
	writeTextSection(&b, "Child's views", c.ParentInput.ChildViews)
	writeTextSection(&b, "Parent/carer views", c.ParentInput.ParentViews)
	writeTextSection(&b, "Home environment", c.ParentInput.HomeEnvironment)
	writeTextSection(&b, "Family circumstances", c.ParentInput.FamilyCircumstances)
	writeTextSection(&b, "Aspirations", c.ParentInput.Aspirations)
	writeTextSection(&b, "Concerns", c.ParentInput.Concerns)
	if b.Len() == 0 {
		return "No parent or carer input provided."
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderAssessmentSummary(c types.PlanGenerationContext) string {
	if len(c.Assessments) == 0 {
		return "No assessment reports available."
	}
	var b strings.Builder
	for _, a := range c.Assessments {
		fmt.Fprintf(&b, "%s (%s, %s)\n", a.AssessmentType, a.Assessor, a.AssessmentDate)
		writeListSection(&b, "Key findings", a.KeyFindings)
		writeListSection(&b, "Recommendations", a.Recommendations)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderAssessmentRecommendations(c types.PlanGenerationContext) string {
	var recs []string
	for _, a := range c.Assessments {
		recs = append(recs, a.Recommendations...)
	}
	if len(recs) == 0 {
		return "None recorded."
	}
	return bulleted(recs)
}

func renderCurrentSetting(c types.PlanGenerationContext) string {
	var b strings.Builder
	if c.Child.YearGroup != "" {
		fmt.Fprintf(&b, "Year group: %s\n", c.Child.YearGroup)
	}
	if c.Child.SchoolType != "" {
		fmt.Fprintf(&b, "School type: %s\n", c.Child.SchoolType)
	}
	writeListSection(&b, "Provision currently in place", c.CurrentProvision)
	if b.Len() == 0 {
		return "Current setting not recorded."
	}
	return strings.TrimRight(b.String(), "\n")
}

func bulleted(items []string) string {
	var b strings.Builder
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", it)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeListSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n%s\n", title, bulleted(items))
}

func writeTextSection(b *strings.Builder, title, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", title, text)
}
