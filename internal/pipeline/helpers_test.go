package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"planify/internal/llm"
	"planify/internal/llmclient"
	"planify/internal/types"
)

// testPlanContext builds a fully populated context: diagnosis, one assessment,
// and both family view fields present.
func testPlanContext(t *testing.T) types.PlanGenerationContext {
	t.Helper()
	pctx, err := AssembleContext(
		types.ChildProfile{
			FirstName:        "Alfie",
			LastName:         "Turner",
			DateOfBirth:      "2017-04-09",
			PrimaryDiagnosis: "Autism spectrum disorder",
			CurrentNeeds:     []string{"Structured literacy support", "Sensory regulation"},
			Strengths:        []string{"Strong visual memory"},
			Challenges:       []string{"Transitions between activities"},
			CurrentSupport:   []string{"1:1 TA support in literacy"},
			YearGroup:        "Year 4",
			SchoolType:       "mainstream primary",
		},
		[]types.AssessmentRecord{
			{
				AssessmentType:  "Educational Psychology",
				Assessor:        "Dr L. Mensah",
				AssessmentDate:  "2026-05-14",
				KeyFindings:     []string{"Working memory below age-related expectations"},
				Recommendations: []string{"Small-group precision teaching", "Visual timetable"},
			},
		},
		types.ParentInput{
			ChildViews:  "I like drawing and my dog. Loud rooms are scary.",
			ParentViews: "Alfie is happiest with routine; changes need warning.",
			Aspirations: "We want Alfie to enjoy school and make one good friend.",
		},
		[]string{"Visual timetable", "Movement breaks"},
		"Westshire County Council",
		types.UrgencyStandard,
		types.PlanInitial,
	)
	require.NoError(t, err)
	return pctx
}

// scriptClient routes each call through fn keyed by the stage tag in the
// context, recording call order.
type scriptClient struct {
	mu     sync.Mutex
	stages []string
	fn     func(stage, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error)
}

func (c *scriptClient) Name() string { return "script" }
func (c *scriptClient) Close() error { return nil }

func (c *scriptClient) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	stage := llm.StageFrom(ctx)
	c.mu.Lock()
	c.stages = append(c.stages, stage)
	c.mu.Unlock()
	return c.fn(stage, user, opts)
}

func (c *scriptClient) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.stages...)
}

// fastConfig keeps retry sleeps negligible in tests.
func fastConfig() Config {
	return Config{
		MaxAttempts:    1,
		RetryBaseDelay: 1,
	}
}
