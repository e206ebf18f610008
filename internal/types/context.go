package types

import (
	"strings"
	"time"
)

// DateLayout is the wire format for all dates handled by the pipeline.
const DateLayout = "2006-01-02"

// Generation context inputs ------------------------------------------------------

type ChildProfile struct {
	FirstName          string   `json:"first_name"`
	LastName           string   `json:"last_name"`
	DateOfBirth        string   `json:"date_of_birth"`
	Gender             string   `json:"gender,omitempty"`
	PrimaryDiagnosis   string   `json:"primary_diagnosis"`
	SecondaryDiagnoses []string `json:"secondary_diagnoses,omitempty"`
	CurrentNeeds       []string `json:"current_needs"`
	Strengths          []string `json:"strengths"`
	Challenges         []string `json:"challenges"`
	CurrentSupport     []string `json:"current_support"`
	YearGroup          string   `json:"year_group,omitempty"`
	SchoolType         string   `json:"school_type,omitempty"`
}

// Age returns whole years at the given instant. The assembler guarantees
// DateOfBirth parses, so callers after assembly may ignore the error.
func (c ChildProfile) Age(now time.Time) (int, error) {
	dob, err := time.Parse(DateLayout, c.DateOfBirth)
	if err != nil {
		return 0, err
	}
	years := now.Year() - dob.Year()
	if now.YearDay() < dob.YearDay() {
		years--
	}
	return years, nil
}

func (c ChildProfile) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type AssessmentRecord struct {
	AssessmentType  string            `json:"assessment_type"`
	Assessor        string            `json:"assessor"`
	AssessmentDate  string            `json:"assessment_date"`
	KeyFindings     []string          `json:"key_findings"`
	Recommendations []string          `json:"recommendations"`
	Scores          map[string]string `json:"scores,omitempty"`
	FullReport      string            `json:"full_report,omitempty"`
}

type ParentInput struct {
	ChildViews          string `json:"child_views,omitempty"`
	ParentViews         string `json:"parent_views,omitempty"`
	HomeEnvironment     string `json:"home_environment,omitempty"`
	FamilyCircumstances string `json:"family_circumstances,omitempty"`
	Aspirations         string `json:"aspirations,omitempty"`
	Concerns            string `json:"concerns,omitempty"`
}

// Enumerations -------------------------------------------------------------------

type UrgencyLevel string

const (
	UrgencyUrgent   UrgencyLevel = "urgent"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyStandard UrgencyLevel = "standard"
	UrgencyLow      UrgencyLevel = "low"
)

func (u UrgencyLevel) Valid() bool {
	switch u {
	case UrgencyUrgent, UrgencyHigh, UrgencyStandard, UrgencyLow:
		return true
	}
	return false
}

type PlanType string

const (
	PlanInitial      PlanType = "initial"
	PlanAnnualReview PlanType = "annual_review"
	PlanReassessment PlanType = "reassessment"
)

func (p PlanType) Valid() bool {
	switch p {
	case PlanInitial, PlanAnnualReview, PlanReassessment:
		return true
	}
	return false
}

// PlanGenerationContext ----------------------------------------------------------

// PlanGenerationContext is assembled once per generation run and treated as
// read-only by every stage. Assessments keep insertion order; callers who care
// about recency must pre-sort.
type PlanGenerationContext struct {
	Child            ChildProfile       `json:"child"`
	Assessments      []AssessmentRecord `json:"assessments"`
	ParentInput      ParentInput        `json:"parent_input"`
	CurrentProvision []string           `json:"current_provision"`
	LocalAuthority   string             `json:"local_authority"`
	Urgency          UrgencyLevel       `json:"urgency_level"`
	PlanType         PlanType           `json:"plan_type"`
}
