package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimiterFromEnv(t *testing.T) {
	t.Setenv("GEN_RPS", "1")
	t.Setenv("GEN_BURST", "2")

	rl := NewLimiterFromEnv("GEN")
	for i := 0; i < 2; i++ {
		require.NoError(t, rl.Acquire(context.Background()), "burst token %d", i)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rl.Acquire(canceled), context.Canceled)
}

func TestNewLimiterFromEnvPrefixPriority(t *testing.T) {
	t.Setenv("FIRST_RPS", "0")
	t.Setenv("SECOND_RPS", "5")

	// FIRST wins: rps 0 disables the limiter even with a canceled context.
	rl := NewLimiterFromEnv("FIRST", "SECOND")
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rl.Acquire(canceled))
}

func TestNewLimiterFromEnvUnsetIsNoOp(t *testing.T) {
	rl := NewLimiterFromEnv("COMPLETELY_ABSENT")
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, rl.Acquire(canceled))
}
