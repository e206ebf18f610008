package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"planify/internal/llm"
	"planify/internal/llmclient"
	"planify/internal/platform/logger"
	"planify/internal/types"
)

// State identifies where a generation run is in its lifecycle.
type State string

const (
	StateAssembling           State = "assembling"
	StateGenerating           State = "generating_sections_outcomes"
	StateGeneratingProvisions State = "generating_provisions"
	StateEvaluating           State = "evaluating"
	StateComplete             State = "complete"
	StateFailed               State = "failed"
)

// StageEvent is emitted on every state transition for observers (progress
// streaming, tests).
type StageEvent struct {
	State  State     `json:"state"`
	Detail string    `json:"detail,omitempty"`
	At     time.Time `json:"at"`
}

// Config tunes one orchestrator instance. Zero values take defaults.
type Config struct {
	// CallTimeout bounds one stage call including its retries.
	CallTimeout time.Duration
	// Deadline bounds the whole run; on expiry outstanding branches are
	// cancelled and the run proceeds to evaluation with partial results.
	Deadline       time.Duration
	MaxAttempts    int
	RetryBaseDelay time.Duration
	MaxConcurrent  int
	Temperature    float64
	MaxTokens      int
	// FailFastSections makes any single section failure fatal to the run.
	// Off by default: partial plans are reviewable and regenerable.
	FailFastSections bool
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 60 * time.Second
	}
	if c.Deadline <= 0 {
		c.Deadline = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 300 * time.Millisecond
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = len(types.AllSectionTypes()) + 1
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.4
	}
	return c
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithBroker pre-reserves LLM-call permits for the fan-out against a shared
// rate limit before launching any branch.
func WithBroker(b llm.PermitBroker) Option {
	return func(o *Orchestrator) { o.broker = b }
}

// WithStageObserver registers a callback invoked on every state transition.
func WithStageObserver(fn func(StageEvent)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// Orchestrator sequences the generation stages. Every stage receives the same
// immutable context; the orchestrator never mutates it.
type Orchestrator struct {
	llm      llmclient.LLMClient
	log      *logger.Logger
	cfg      Config
	broker   llm.PermitBroker
	observer func(StageEvent)

	sections   *SectionGenerator
	outcomes   *OutcomeSynthesizer
	provisions *ProvisionSynthesizer
	evaluator  *Evaluator
}

// New builds an orchestrator around the given client. Retry policy belongs
// here, not in the client: the raw client is wrapped with the configured
// retry middleware and per-stage logging.
func New(client llmclient.LLMClient, log *logger.Logger, cfg Config, opts ...Option) *Orchestrator {
	cfg = cfg.withDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	wrapped := llm.Wrap(client,
		llm.Retry(cfg.MaxAttempts, cfg.RetryBaseDelay),
		llm.WithLogging(log),
	)
	o := &Orchestrator{
		llm:        wrapped,
		log:        log,
		cfg:        cfg,
		sections:   &SectionGenerator{LLM: wrapped, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		outcomes:   &OutcomeSynthesizer{LLM: wrapped, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		provisions: &ProvisionSynthesizer{LLM: wrapped, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
		evaluator:  &Evaluator{LLM: wrapped, Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GeneratePlan is the single inbound entry point: one validated context in,
// one immutable GeneratedPlan out. Stage-local failures degrade; only context
// validation failure and total exhaustion are raised.
func (o *Orchestrator) GeneratePlan(ctx context.Context, pctx types.PlanGenerationContext) (*types.GeneratedPlan, error) {
	start := time.Now()

	o.transition(StateAssembling, "")
	if err := ValidateContext(pctx); err != nil {
		o.transition(StateFailed, err.Error())
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	secTypes := types.AllSectionTypes()
	if o.broker != nil {
		// Secure the whole fan-out budget up-front so concurrent branches
		// cannot starve each other at a shared rate limit.
		if lease, err := o.broker.Reserve(runCtx, len(secTypes)+1); err == nil {
			runCtx = lease.Context(runCtx)
		} else {
			o.log.Warn("permit reservation failed; branches fall back to the shared limiter", "error", err)
		}
	}

	// ---- fan-out: six sections + outcome synthesis, joined before provisions ----

	o.transition(StateGenerating, "")
	secResults := make([]*types.SectionResult, len(secTypes))
	secErrs := make([]error, len(secTypes))
	var outcomeRes OutcomeSynthesis
	var outcomeErr error

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, st := range secTypes {
		i, st := i, st
		g.Go(func() error {
			callCtx, cancel := o.callContext(gctx, "section:"+string(st))
			defer cancel()
			res, err := o.sections.Generate(callCtx, pctx, st)
			if err != nil {
				secErrs[i] = err
				if o.cfg.FailFastSections {
					return err
				}
				return nil
			}
			secResults[i] = &res
			return nil
		})
	}
	g.Go(func() error {
		callCtx, cancel := o.callContext(gctx, "outcomes")
		defer cancel()
		outcomeRes, outcomeErr = o.outcomes.Synthesize(callCtx, pctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		o.transition(StateFailed, err.Error())
		return nil, fmt.Errorf("pipeline: section generation failed: %w", err)
	}

	// Aggregation happens only after the join; the branches shared nothing
	// but the read-only context and their own result slots.
	sections := make(map[types.SectionType]types.SectionResult, len(secTypes))
	tokens := 0
	failedSections := 0
	var lastErr error
	for i, st := range secTypes {
		if secResults[i] != nil {
			sections[st] = *secResults[i]
			tokens += secResults[i].TokensUsed
			continue
		}
		failedSections++
		lastErr = secErrs[i]
		o.log.Warn("section generation failed", "section", st, "error", secErrs[i])
	}
	tokens += outcomeRes.TokensUsed
	if outcomeErr != nil {
		lastErr = outcomeErr
		o.log.Warn("outcome synthesis failed", "error", outcomeErr)
	} else if outcomeRes.Degraded {
		o.log.Warn("outcome synthesis returned unparseable output; continuing with zero outcomes",
			"tokens_wasted", outcomeRes.TokensUsed)
	}

	if failedSections == len(secTypes) && outcomeErr != nil {
		o.transition(StateFailed, "all generation stages failed")
		return nil, &PipelineExhaustedError{
			TokensUsed: tokens,
			Elapsed:    time.Since(start),
			LastErr:    lastErr,
		}
	}

	// ---- provisions: strictly after the outcome ID set is final ----

	o.transition(StateGeneratingProvisions, "")
	provCtx, provCancel := o.callContext(runCtx, "provisions")
	provRes, provErr := o.provisions.Synthesize(provCtx, pctx, outcomeRes.Outcomes)
	provCancel()
	if provErr != nil {
		o.log.Warn("provision synthesis failed; continuing with zero provisions", "error", provErr)
		provRes = ProvisionSynthesis{}
	}
	tokens += provRes.TokensUsed

	// ---- evaluation ----

	o.transition(StateEvaluating, "")
	evalCtx, evalCancel := o.callContext(runCtx, "compliance")
	evaluation := o.evaluator.Evaluate(evalCtx, pctx, sections, outcomeRes.Outcomes, provRes.Provisions)
	evalCancel()
	tokens += evaluation.TokensUsed

	plan := &types.GeneratedPlan{
		Sections:   sections,
		Outcomes:   outcomeRes.Outcomes,
		Provisions: provRes.Provisions,
		Compliance: evaluation.Compliance,
		Metadata: types.PlanMetadata{
			ModelIdentifier:  o.llm.Name(),
			GenerationTimeMs: time.Since(start).Milliseconds(),
			ConfidenceScore:  evaluation.Confidence,
			TokensUsed:       tokens,
		},
	}
	o.transition(StateComplete, "")
	o.log.Info("plan generated",
		"sections", len(sections),
		"outcomes", len(plan.Outcomes),
		"provisions", len(plan.Provisions),
		"confidence", plan.Metadata.ConfidenceScore,
		"compliance", plan.Compliance.ComplianceScore,
		"tokens", tokens,
		"elapsed_ms", plan.Metadata.GenerationTimeMs)
	return plan, nil
}

// callContext tags the context with the stage and bounds the call (including
// its retries) by the configured timeout.
func (o *Orchestrator) callContext(ctx context.Context, stage string) (context.Context, context.CancelFunc) {
	return context.WithTimeout(llm.WithStage(ctx, stage), o.cfg.CallTimeout)
}

func (o *Orchestrator) transition(s State, detail string) {
	o.log.Debug("pipeline state", "state", s, "detail", detail)
	if o.observer != nil {
		o.observer(StageEvent{State: s, Detail: detail, At: time.Now()})
	}
}
