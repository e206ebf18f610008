package llm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"planify/internal/llmclient"
)

// FakeClient returns deterministic, minimal payloads per stage for offline
// runs and testing. Section stages get filler narrative; structured stages
// get canned JSON that parses against the pipeline schemas.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

var outcomeIDPattern = regexp.MustCompile(`"id":\s*"([^"]+)"`)

func (f *FakeClient) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	stage := StageFrom(ctx)
	var text string
	switch {
	case strings.HasPrefix(stage, "section:"):
		name := strings.TrimPrefix(stage, "section:")
		text = fakeSectionText(name)
	case stage == "outcomes":
		text = fakeOutcomesJSON
	case stage == "provisions":
		// Link the first provision to whatever outcome IDs appear in the
		// prompt so referential filtering has something real to keep.
		var ids []string
		for _, m := range outcomeIDPattern.FindAllStringSubmatch(user, 2) {
			ids = append(ids, m[1])
		}
		if ids == nil {
			ids = []string{}
		}
		linked, _ := json.Marshal(ids)
		text = strings.Replace(fakeProvisionsJSON, `"__LINKED__"`, string(linked), 1)
	case stage == "compliance":
		text = fakeComplianceJSON
	default:
		text = "{}"
	}
	return llmclient.Generation{Text: text, TokensUsed: llmclient.CountTokens(text)}, nil
}

func fakeSectionText(name string) string {
	return "This is an offline draft of the " + name + " section. " +
		strings.Repeat("The setting will continue to monitor progress against the agreed support plan, "+
			"reviewing strategies with the family and relevant professionals each term. ", 3)
}

const fakeOutcomesJSON = `[
  {"category":"educational","title":"Improve reading comprehension","description":"Develop age-appropriate reading comprehension with structured support.","specific_detail":"Comprehension of short narrative texts","measurable_criteria":"Answer 8 of 10 literal questions correctly","achievable_rationale":"Baseline shows emerging decoding skills","relevant_justification":"Supports curriculum access","time_bound_deadline":"2027-07-31","success_criteria":["Answers literal questions","Retells key events"],"baseline_measurement":"4 of 10 questions at baseline","milestones":[{"description":"6 of 10 questions","target_date":"2026-12-18"}]},
  {"category":"communication","title":"Initiate peer interaction","description":"Initiate and sustain short exchanges with peers.","specific_detail":"Structured social opportunities at break times","measurable_criteria":"Three self-initiated exchanges per day","achievable_rationale":"Responds well to adult-scaffolded interaction","relevant_justification":"Reduces social isolation","time_bound_deadline":"2027-07-31","success_criteria":["Initiates greeting","Takes turns in conversation"],"baseline_measurement":"One prompted exchange per day","milestones":[{"description":"Two exchanges with prompting","target_date":"2026-12-18"}]},
  {"category":"independence","title":"Organise own equipment","description":"Prepare and manage equipment for the school day independently.","specific_detail":"Visual checklist routine at start and end of day","measurable_criteria":"Completes routine unprompted 4 of 5 days","achievable_rationale":"Already follows the routine with prompts","relevant_justification":"Builds readiness for transition","time_bound_deadline":"2027-07-31","success_criteria":["Uses checklist","Packs bag unaided"],"baseline_measurement":"Requires adult prompting daily","milestones":[{"description":"3 of 5 days with one prompt","target_date":"2026-12-18"}]},
  {"category":"health","title":"Apply self-regulation strategies","description":"Use taught strategies to manage sensory overload.","specific_detail":"Access to a quiet space and movement breaks","measurable_criteria":"Uses a strategy in 3 of 4 observed episodes","achievable_rationale":"Engages with OT programme","relevant_justification":"Reduces distress and lost learning time","time_bound_deadline":"2027-07-31","success_criteria":["Requests a break appropriately","Returns to task within 10 minutes"],"baseline_measurement":"Strategies used only with adult direction","milestones":[{"description":"Strategy use with a visual prompt","target_date":"2026-12-18"}]},
  {"category":"community","title":"Take part in a community activity","description":"Attend a weekly community-based activity of choice.","specific_detail":"Supported attendance at a local club","measurable_criteria":"Attends 3 of 4 sessions per month","achievable_rationale":"Expressed interest in joining a club","relevant_justification":"Broadens social networks beyond school","time_bound_deadline":"2027-07-31","success_criteria":["Attends regularly","Participates in group tasks"],"baseline_measurement":"No current community participation","milestones":[{"description":"Visit and observe a session","target_date":"2026-12-18"}]},
  {"category":"employment","title":"Explore vocational interests","description":"Identify and explore areas of vocational interest.","specific_detail":"Careers sessions adapted to communication needs","measurable_criteria":"Identifies two areas of interest with evidence","achievable_rationale":"Shows sustained interest in practical tasks","relevant_justification":"Prepares for post-16 pathway planning","time_bound_deadline":"2027-07-31","success_criteria":["Names preferred activities","Completes a taster experience"],"baseline_measurement":"Interests not yet explored","milestones":[{"description":"Complete interests profile","target_date":"2026-12-18"}]}
]`

const fakeProvisionsJSON = `[
  {"provision_type":"educational","title":"Specialist teaching support","description":"Small-group literacy intervention delivered by a specialist teacher.","service_provider":"School SEN team","delivery_method":"Small group","frequency_description":"Three sessions weekly","hours_per_week":3,"weeks_per_year":38,"group_size":4,"staff_qualifications_required":["Qualified teacher with SpLD accreditation"],"linked_outcomes":"__LINKED__","expected_impact":"Measurable gains in reading comprehension","start_date":"2026-09-01","review_frequency":"Termly","statutory_requirement":true,"annual_cost":4200},
  {"provision_type":"therapy","title":"Occupational therapy programme","description":"Sensory regulation programme with school-based follow-up.","service_provider":"NHS Children's OT Service","delivery_method":"Individual","frequency_description":"Fortnightly direct sessions with daily school follow-up","hours_per_week":1,"weeks_per_year":38,"staff_qualifications_required":["HCPC-registered occupational therapist"],"linked_outcomes":[],"expected_impact":"Independent use of self-regulation strategies","start_date":"2026-09-01","review_frequency":"Termly","statutory_requirement":true,"annual_cost":2800}
]`

const fakeComplianceJSON = `{
  "compliance_score": 85,
  "issues": ["Section F provision frequencies could be more specific"],
  "recommendations": ["Quantify adult support hours for each provision"],
  "statutory_requirements_met": {
    "section_a": true,
    "section_b": true,
    "section_e": true,
    "section_f": true,
    "section_g": true
  }
}`
