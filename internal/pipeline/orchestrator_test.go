package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planify/internal/llm"
	"planify/internal/llmclient"
	"planify/internal/types"
)

// stageRecorder wraps a client and logs the stage tag of every call, with an
// optional per-stage override.
type stageRecorder struct {
	inner llmclient.LLMClient
	mu    sync.Mutex
	order []string
	// override, when set, intercepts matching stages instead of delegating.
	override func(stage string) (llmclient.Generation, error, bool)
}

func (r *stageRecorder) Name() string { return r.inner.Name() }
func (r *stageRecorder) Close() error { return r.inner.Close() }

func (r *stageRecorder) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	stage := llm.StageFrom(ctx)
	r.mu.Lock()
	r.order = append(r.order, stage)
	r.mu.Unlock()
	if r.override != nil {
		if gen, err, ok := r.override(stage); ok {
			return gen, err
		}
	}
	return r.inner.Generate(ctx, system, user, opts)
}

func (r *stageRecorder) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func collectStates(events *[]StageEvent) Option {
	return WithStageObserver(func(ev StageEvent) { *events = append(*events, ev) })
}

func TestGeneratePlanEndToEnd(t *testing.T) {
	var events []StageEvent
	o := New(llm.NewFakeClient(), nil, fastConfig(), collectStates(&events))

	plan, err := o.GeneratePlan(context.Background(), testPlanContext(t))
	require.NoError(t, err)

	assert.Len(t, plan.Sections, len(types.AllSectionTypes()))
	for _, st := range types.AllSectionTypes() {
		res := plan.Sections[st]
		assert.Equal(t, st, res.SectionType)
		assert.NotEmpty(t, res.Text)
		assert.GreaterOrEqual(t, res.Confidence, 70)
	}

	require.Len(t, plan.Outcomes, 6)
	valid := map[string]bool{}
	for _, out := range plan.Outcomes {
		require.NotEmpty(t, out.ID)
		assert.False(t, valid[out.ID], "duplicate outcome id %s", out.ID)
		valid[out.ID] = true
	}

	require.NotEmpty(t, plan.Provisions)
	for _, p := range plan.Provisions {
		for _, id := range p.LinkedOutcomes {
			assert.True(t, valid[id], "provision links unknown outcome %s", id)
		}
	}
	// The offline client cites the first two outcome IDs it sees.
	assert.Len(t, plan.Provisions[0].LinkedOutcomes, 2)

	assert.Equal(t, 85, plan.Compliance.ComplianceScore)
	assert.GreaterOrEqual(t, plan.Metadata.ConfidenceScore, 70)
	assert.Equal(t, "FakeLLM", plan.Metadata.ModelIdentifier)
	assert.Positive(t, plan.Metadata.TokensUsed)
	assert.GreaterOrEqual(t, plan.Metadata.GenerationTimeMs, int64(0))

	var states []State
	for _, ev := range events {
		states = append(states, ev.State)
	}
	assert.Equal(t, []State{
		StateAssembling,
		StateGenerating,
		StateGeneratingProvisions,
		StateEvaluating,
		StateComplete,
	}, states)
}

func TestGeneratePlanShapeIsDeterministic(t *testing.T) {
	run := func() *types.GeneratedPlan {
		o := New(llm.NewFakeClient(), nil, fastConfig())
		plan, err := o.GeneratePlan(context.Background(), testPlanContext(t))
		require.NoError(t, err)
		return plan
	}
	a, b := run(), run()

	require.Len(t, b.Sections, len(a.Sections))
	for st, sec := range a.Sections {
		other, ok := b.Sections[st]
		require.True(t, ok, "section %s missing from second run", st)
		assert.Equal(t, sec.Text, other.Text)
		assert.Equal(t, sec.Confidence, other.Confidence)
	}

	require.Len(t, b.Outcomes, len(a.Outcomes))
	for i := range a.Outcomes {
		assert.Equal(t, a.Outcomes[i].Title, b.Outcomes[i].Title)
		assert.Equal(t, a.Outcomes[i].Category, b.Outcomes[i].Category)
	}
	assert.Len(t, b.Provisions, len(a.Provisions))

	assert.Equal(t, a.Metadata.ConfidenceScore, b.Metadata.ConfidenceScore)
	assert.Equal(t, a.Compliance.ComplianceScore, b.Compliance.ComplianceScore)
	assert.Equal(t, a.Metadata.TokensUsed, b.Metadata.TokensUsed)
}

func TestGeneratePlanProvisionsWaitForOutcomes(t *testing.T) {
	rec := &stageRecorder{inner: llm.NewFakeClient()}
	o := New(rec, nil, fastConfig())

	_, err := o.GeneratePlan(context.Background(), testPlanContext(t))
	require.NoError(t, err)

	stages := rec.stages()
	provIdx := -1
	for i, s := range stages {
		if s == "provisions" {
			provIdx = i
		}
	}
	require.GreaterOrEqual(t, provIdx, 0)
	for i, s := range stages {
		if strings.HasPrefix(s, "section:") || s == "outcomes" {
			assert.Less(t, i, provIdx, "stage %s ran after provisions", s)
		}
	}
	assert.Equal(t, "compliance", stages[len(stages)-1])
}

func TestGeneratePlanRejectsInvalidContext(t *testing.T) {
	rec := &stageRecorder{inner: llm.NewFakeClient()}
	o := New(rec, nil, fastConfig())

	pctx := testPlanContext(t)
	pctx.LocalAuthority = ""
	_, err := o.GeneratePlan(context.Background(), pctx)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Empty(t, rec.stages(), "no model call may precede validation")
}

func TestGeneratePlanExhaustion(t *testing.T) {
	down := llmclient.NewPermanentError(errors.New("quota exhausted"))
	client := &scriptClient{fn: func(_, _ string, _ llmclient.GenerateOptions) (llmclient.Generation, error) {
		return llmclient.Generation{}, down
	}}
	var events []StageEvent
	o := New(client, nil, fastConfig(), collectStates(&events))

	_, err := o.GeneratePlan(context.Background(), testPlanContext(t))

	var exErr *PipelineExhaustedError
	require.True(t, errors.As(err, &exErr), "expected PipelineExhaustedError, got %v", err)
	assert.ErrorIs(t, exErr.LastErr, down)
	assert.Equal(t, StateFailed, events[len(events)-1].State)
}

func TestGeneratePlanDegradesWhenAllSectionsFail(t *testing.T) {
	down := llmclient.NewPermanentError(errors.New("text generation disabled"))
	rec := &stageRecorder{
		inner: llm.NewFakeClient(),
		override: func(stage string) (llmclient.Generation, error, bool) {
			if strings.HasPrefix(stage, "section:") {
				return llmclient.Generation{}, down, true
			}
			return llmclient.Generation{}, nil, false
		},
	}
	o := New(rec, nil, fastConfig())

	plan, err := o.GeneratePlan(context.Background(), testPlanContext(t))
	require.NoError(t, err, "outcome synthesis succeeded, so the run must complete")
	assert.Empty(t, plan.Sections)
	assert.Len(t, plan.Outcomes, 6)
	// Six missing sections cost five points each against a full context.
	assert.Equal(t, 70, plan.Metadata.ConfidenceScore)
}

func TestGeneratePlanDegradesOnUnparseableOutcomes(t *testing.T) {
	rec := &stageRecorder{
		inner: llm.NewFakeClient(),
		override: func(stage string) (llmclient.Generation, error, bool) {
			if stage == "outcomes" {
				return llmclient.Generation{Text: "not json at all", TokensUsed: 5}, nil, true
			}
			return llmclient.Generation{}, nil, false
		},
	}
	o := New(rec, nil, fastConfig())

	plan, err := o.GeneratePlan(context.Background(), testPlanContext(t))
	require.NoError(t, err)
	assert.Empty(t, plan.Outcomes)
	assert.Len(t, plan.Sections, len(types.AllSectionTypes()))
	for _, p := range plan.Provisions {
		assert.Empty(t, p.LinkedOutcomes)
	}

	// The wasted outcome call still counts toward the run's token total.
	sectionTokens := 0
	for _, sec := range plan.Sections {
		sectionTokens += sec.TokensUsed
	}
	assert.GreaterOrEqual(t, plan.Metadata.TokensUsed, sectionTokens+5)
}

func TestGeneratePlanCountsWastedOutcomeTokens(t *testing.T) {
	down := llmclient.NewPermanentError(errors.New("drafting offline"))
	client := &scriptClient{fn: func(stage, _ string, _ llmclient.GenerateOptions) (llmclient.Generation, error) {
		if stage == "outcomes" {
			return llmclient.Generation{Text: "not json at all", TokensUsed: 5}, nil
		}
		return llmclient.Generation{}, down
	}}
	o := New(client, nil, fastConfig())

	// Every other stage fails with zero spend, so the total is exactly the
	// degraded outcome call's tokens.
	plan, err := o.GeneratePlan(context.Background(), testPlanContext(t))
	require.NoError(t, err)
	assert.Empty(t, plan.Outcomes)
	assert.Empty(t, plan.Sections)
	assert.Equal(t, 5, plan.Metadata.TokensUsed)
}

func TestGeneratePlanFailFastSections(t *testing.T) {
	down := llmclient.NewPermanentError(errors.New("content filter rejection"))
	rec := &stageRecorder{
		inner: llm.NewFakeClient(),
		override: func(stage string) (llmclient.Generation, error, bool) {
			if stage == "section:child_views" {
				return llmclient.Generation{}, down, true
			}
			return llmclient.Generation{}, nil, false
		},
	}
	cfg := fastConfig()
	cfg.FailFastSections = true
	o := New(rec, nil, cfg)

	_, err := o.GeneratePlan(context.Background(), testPlanContext(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, down)
}

type countingLimiter struct {
	mu sync.Mutex
	n  int
}

func (l *countingLimiter) Acquire(context.Context) error {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
	return nil
}

func TestGeneratePlanReservesFanOutPermits(t *testing.T) {
	rl := &countingLimiter{}
	o := New(llm.NewFakeClient(), nil, fastConfig(), WithBroker(llm.NewBroker(rl)))

	_, err := o.GeneratePlan(context.Background(), testPlanContext(t))
	require.NoError(t, err)

	// One permit per section branch plus one for outcome synthesis.
	assert.Equal(t, len(types.AllSectionTypes())+1, rl.n)
}
