package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"planify/internal/llmclient"
)

// countingClient fails the first failures calls, then succeeds.
type countingClient struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
}

func (c *countingClient) Name() string { return "counting" }
func (c *countingClient) Close() error { return nil }

func (c *countingClient) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		return llmclient.Generation{}, c.err
	}
	return llmclient.Generation{Text: "ok", TokensUsed: 1}, nil
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	inner := &countingClient{failures: 2, err: errors.New("429 too many requests")}
	client := Wrap(inner, Retry(3, time.Millisecond))

	gen, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", gen.Text)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	boom := errors.New("503 unavailable")
	inner := &countingClient{failures: 10, err: boom}
	client := Wrap(inner, Retry(2, time.Millisecond))

	_, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, inner.calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	perm := llmclient.NewPermanentError(errors.New("400 bad request"))
	inner := &countingClient{failures: 10, err: perm}
	client := Wrap(inner, Retry(5, time.Millisecond))

	_, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
	var pErr *llmclient.PermanentError
	require.True(t, errors.As(err, &pErr))
	assert.Equal(t, 1, inner.calls, "permanent errors must not be retried")
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	inner := &countingClient{failures: 10, err: errors.New("flaky")}
	client := Wrap(inner, Retry(5, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

type acquireCounter struct {
	mu sync.Mutex
	n  int
}

func (l *acquireCounter) Acquire(context.Context) error {
	l.mu.Lock()
	l.n++
	l.mu.Unlock()
	return nil
}

func TestRateLimitEnforcesBurst(t *testing.T) {
	inner := &countingClient{}
	client := Wrap(inner, RateLimit(1, 2))
	defer client.Close()

	for i := 0; i < 2; i++ {
		_, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
		require.NoError(t, err, "call %d within burst", i)
	}

	// Bucket drained; at 1 rps no token returns before the context dies.
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(canceled, "sys", "user", llmclient.GenerateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, inner.calls)
}

func TestRateLimitRefillsBucket(t *testing.T) {
	client := Wrap(&countingClient{}, RateLimit(100, 1))
	defer client.Close()

	_, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)

	// The burst is spent; the second call must wait for a refill tick.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = client.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)
}

func TestRateLimitPrefersReservedCredits(t *testing.T) {
	inner := &countingClient{}
	client := Wrap(inner, RateLimit(1, 1))
	defer client.Close()

	_, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)

	// Bucket empty, but a reserved credit bypasses it.
	ctx := WithCredits(context.Background(), 1)
	_, err = client.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestRateLimitFromEnv(t *testing.T) {
	t.Setenv("PLAN_RPS", "1")
	t.Setenv("PLAN_BURST", "1")

	inner := &countingClient{}
	client := Wrap(inner, RateLimitFromEnv("ABSENT", "PLAN"))
	defer client.Close()

	_, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = client.Generate(canceled, "sys", "user", llmclient.GenerateOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, inner.calls)
}

func TestRateLimitFromEnvUnsetIsUnlimited(t *testing.T) {
	inner := &countingClient{}
	client := Wrap(inner, RateLimitFromEnv("NOT_CONFIGURED"))
	defer client.Close()

	for i := 0; i < 10; i++ {
		_, err := client.Generate(context.Background(), "sys", "user", llmclient.GenerateOptions{})
		require.NoError(t, err)
	}
	assert.Equal(t, 10, inner.calls)
}

func TestRateLimitWithPrefersReservedCredits(t *testing.T) {
	rl := &acquireCounter{}
	inner := &countingClient{}
	client := Wrap(inner, RateLimitWith(rl))

	// A reserved credit bypasses the limiter entirely.
	ctx := WithCredits(context.Background(), 1)
	_, err := client.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)
	assert.Zero(t, rl.n)

	// With credits spent, the shared limiter is consulted.
	_, err = client.Generate(ctx, "sys", "user", llmclient.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rl.n)
}

func TestWrapAppliesMiddlewareLeftToRight(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next llmclient.LLMClient) llmclient.LLMClient {
			return generateFunc(func(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
				order = append(order, name)
				return next.Generate(ctx, system, user, opts)
			})
		}
	}
	client := Wrap(&countingClient{}, tag("outer"), tag("inner"))

	_, err := client.Generate(context.Background(), "", "", llmclient.GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

// generateFunc adapts a function to LLMClient for middleware tests.
type generateFunc func(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error)

func (f generateFunc) Name() string { return "func" }
func (f generateFunc) Close() error { return nil }
func (f generateFunc) Generate(ctx context.Context, system, user string, opts llmclient.GenerateOptions) (llmclient.Generation, error) {
	return f(ctx, system, user, opts)
}
