package types

// Sections -----------------------------------------------------------------------

type SectionType string

const (
	SectionChildViews           SectionType = "child_views"
	SectionParentViews          SectionType = "parent_views"
	SectionEducationalNeeds     SectionType = "educational_needs"
	SectionOutcomesNarrative    SectionType = "outcomes_narrative"
	SectionEducationalProvision SectionType = "educational_provision"
	SectionHealthProvision      SectionType = "health_provision"
)

// AllSectionTypes lists every section a complete plan must carry, in document
// order.
func AllSectionTypes() []SectionType {
	return []SectionType{
		SectionChildViews,
		SectionParentViews,
		SectionEducationalNeeds,
		SectionOutcomesNarrative,
		SectionEducationalProvision,
		SectionHealthProvision,
	}
}

type SectionResult struct {
	SectionType SectionType `json:"section_type"`
	Text        string      `json:"text"`
	TokensUsed  int         `json:"tokens_used"`
	Confidence  int         `json:"confidence"`
}

// Outcomes -----------------------------------------------------------------------

type OutcomeCategory string

const (
	OutcomeEducational   OutcomeCategory = "educational"
	OutcomeIndependence  OutcomeCategory = "independence"
	OutcomeCommunication OutcomeCategory = "communication"
	OutcomeHealth        OutcomeCategory = "health"
	OutcomeCommunity     OutcomeCategory = "community"
	OutcomeEmployment    OutcomeCategory = "employment"
)

type Milestone struct {
	Description string `json:"description"`
	TargetDate  string `json:"target_date"`
}

type Outcome struct {
	ID                    string          `json:"id"`
	Category              OutcomeCategory `json:"category"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	SpecificDetail        string          `json:"specific_detail"`
	MeasurableCriteria    string          `json:"measurable_criteria"`
	AchievableRationale   string          `json:"achievable_rationale"`
	RelevantJustification string          `json:"relevant_justification"`
	TimeBoundDeadline     string          `json:"time_bound_deadline"`
	SuccessCriteria       []string        `json:"success_criteria"`
	BaselineMeasurement   string          `json:"baseline_measurement"`
	Milestones            []Milestone     `json:"milestones"`
}

// Provisions ---------------------------------------------------------------------

type ProvisionType string

const (
	ProvisionEducational ProvisionType = "educational"
	ProvisionHealth      ProvisionType = "health"
	ProvisionSocialCare  ProvisionType = "social_care"
	ProvisionTherapy     ProvisionType = "therapy"
	ProvisionEquipment   ProvisionType = "equipment"
	ProvisionTransport   ProvisionType = "transport"
)

type Provision struct {
	ProvisionType        ProvisionType `json:"provision_type"`
	Title                string        `json:"title"`
	Description          string        `json:"description"`
	ServiceProvider      string        `json:"service_provider"`
	DeliveryMethod       string        `json:"delivery_method"`
	FrequencyDescription string        `json:"frequency_description"`
	HoursPerWeek         float64       `json:"hours_per_week"`
	WeeksPerYear         float64       `json:"weeks_per_year"`
	GroupSize            int           `json:"group_size,omitempty"`
	StaffQualifications  []string      `json:"staff_qualifications_required"`
	LinkedOutcomes       []string      `json:"linked_outcomes"`
	ExpectedImpact       string        `json:"expected_impact"`
	StartDate            string        `json:"start_date"`
	ReviewFrequency      string        `json:"review_frequency"`
	StatutoryRequirement bool          `json:"statutory_requirement"`
	AnnualCost           float64       `json:"annual_cost"`
}

// Compliance & result ------------------------------------------------------------

type ComplianceReport struct {
	ComplianceScore          int             `json:"compliance_score"`
	Issues                   []string        `json:"issues"`
	Recommendations          []string        `json:"recommendations"`
	StatutoryRequirementsMet map[string]bool `json:"statutory_requirements_met"`
}

type PlanMetadata struct {
	ModelIdentifier  string `json:"model_identifier"`
	GenerationTimeMs int64  `json:"generation_time_ms"`
	ConfidenceScore  int    `json:"confidence_score"`
	TokensUsed       int    `json:"tokens_used"`
}

// GeneratedPlan is the root aggregate returned to the caller. It is never
// mutated after return; revisions start a new run with an adjusted context.
type GeneratedPlan struct {
	Sections   map[SectionType]SectionResult `json:"sections"`
	Outcomes   []Outcome                     `json:"outcomes"`
	Provisions []Provision                   `json:"provisions"`
	Compliance ComplianceReport              `json:"compliance"`
	Metadata   PlanMetadata                  `json:"metadata"`
}
