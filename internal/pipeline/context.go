package pipeline

import (
	"strings"
	"time"

	"planify/internal/types"
)

// AssembleContext validates and normalizes the raw generation inputs into one
// immutable context value consumed by every later stage. It is side-effect
// free; a *ValidationError means no external call was made.
func AssembleContext(
	child types.ChildProfile,
	assessments []types.AssessmentRecord,
	parentInput types.ParentInput,
	currentProvision []string,
	localAuthority string,
	urgency types.UrgencyLevel,
	planType types.PlanType,
) (types.PlanGenerationContext, error) {
	pctx := types.PlanGenerationContext{
		Child:            child,
		Assessments:      append([]types.AssessmentRecord(nil), assessments...),
		ParentInput:      parentInput,
		CurrentProvision: append([]string(nil), currentProvision...),
		LocalAuthority:   strings.TrimSpace(localAuthority),
		Urgency:          urgency,
		PlanType:         planType,
	}
	if err := ValidateContext(pctx); err != nil {
		return types.PlanGenerationContext{}, err
	}
	return pctx, nil
}

// ValidateContext checks the invariants the stages depend on. It is run by
// AssembleContext and again by the orchestrator on entry, since contexts can
// also arrive pre-built from callers.
func ValidateContext(pctx types.PlanGenerationContext) error {
	dob, err := time.Parse(types.DateLayout, pctx.Child.DateOfBirth)
	if err != nil {
		return &ValidationError{Field: "child.date_of_birth", Reason: "must be a " + types.DateLayout + " date"}
	}
	if !dob.Before(time.Now()) {
		return &ValidationError{Field: "child.date_of_birth", Reason: "must be in the past"}
	}
	if !pctx.Urgency.Valid() {
		return &ValidationError{Field: "urgency_level", Reason: "unknown value " + string(pctx.Urgency)}
	}
	if !pctx.PlanType.Valid() {
		return &ValidationError{Field: "plan_type", Reason: "unknown value " + string(pctx.PlanType)}
	}
	if strings.TrimSpace(pctx.LocalAuthority) == "" {
		return &ValidationError{Field: "local_authority", Reason: "must not be empty"}
	}
	return nil
}
