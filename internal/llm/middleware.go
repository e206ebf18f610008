package llm

import (
	"context"
	"errors"
	"time"

	"planify/internal/llmclient"
	"planify/internal/platform/logger"
)

// Middleware decorates an LLMClient to inject cross-cutting concerns
// (rate limiting, retries, logging, etc.).
type Middleware func(llmclient.LLMClient) llmclient.LLMClient

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner llmclient.LLMClient, mws ...Middleware) llmclient.LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate limiting --------

// RateLimit limits request rate using a token-bucket limiter.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		rl := newRPSLimiter(rps, burst) // nil when disabled
		return &rateLimited{next: next, rl: rl}
	}
}

// RateLimitWith shares an externally owned limiter, so a PermitBroker can
// reserve from the same bucket the per-call middleware drains.
func RateLimitWith(rl Limiter) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &sharedRateLimited{next: next, rl: rl}
	}
}

type sharedRateLimited struct {
	next llmclient.LLMClient
	rl   Limiter
}

func (c *sharedRateLimited) Name() string { return c.next.Name() }
func (c *sharedRateLimited) Close() error { return c.next.Close() }

func (c *sharedRateLimited) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	if c.rl != nil && !TakeCredit(ctx) {
		if err := c.rl.Acquire(ctx); err != nil {
			return llmclient.Generation{}, err
		}
	}
	return c.next.Generate(ctx, system, user, opts)
}

type rateLimited struct {
	next llmclient.LLMClient
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }
func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	if c.rl != nil {
		// Prefer reserved credits embedded in the context.
		if !TakeCredit(ctx) {
			if err := c.rl.Acquire(ctx); err != nil {
				return llmclient.Generation{}, err
			}
		}
	}
	return c.next.Generate(ctx, system, user, opts)
}

// RateLimitFromEnv reads RPS/BURST from environment variables with the given
// prefixes in priority order. For example, ("LLM", "GEMINI") checks
// LLM_RPS/LLM_BURST first, then GEMINI_RPS/GEMINI_BURST.
func RateLimitFromEnv(prefixes ...string) Middleware {
	rps, burst := limiterEnv(prefixes...)
	return RateLimit(rps, burst)
}

// -------- Retry with exponential backoff --------

// Retry retries Generate up to maxAttempts with exponential backoff starting
// at baseDelay. PermanentError aborts immediately, as does context
// cancellation.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next llmclient.LLMClient
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	var last error
	for i := 0; i < r.max; i++ {
		gen, err := r.next.Generate(ctx, system, user, opts)
		if err == nil {
			return gen, nil
		}
		var pErr *llmclient.PermanentError
		if errors.As(err, &pErr) {
			return llmclient.Generation{}, err
		}
		last = err
		select {
		case <-ctx.Done():
			return llmclient.Generation{}, ctx.Err()
		default:
		}
		time.Sleep(r.base * time.Duration(1<<i))
	}
	return llmclient.Generation{}, last
}

// -------- Logging --------

// WithLogging logs request sizes and errors per stage. The prompt text itself
// is never logged; it carries child-identifiable content.
func WithLogging(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.NewNop()
	}
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &logging{next: next, log: log}
	}
}

type logging struct {
	next llmclient.LLMClient
	log  *logger.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	start := time.Now()
	gen, err := l.next.Generate(ctx, system, user, opts)
	if err != nil {
		l.log.Warn("llm call failed",
			"stage", StageFrom(ctx),
			"prompt_bytes", len(system)+len(user),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err)
		return gen, err
	}
	l.log.Debug("llm call ok",
		"stage", StageFrom(ctx),
		"prompt_bytes", len(system)+len(user),
		"output_bytes", len(gen.Text),
		"tokens", gen.TokensUsed,
		"elapsed_ms", time.Since(start).Milliseconds())
	return gen, nil
}
