package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	acquired int
	err      error
}

func (l *stubLimiter) Acquire(context.Context) error {
	if l.err != nil {
		return l.err
	}
	l.acquired++
	return nil
}

func TestBrokerReserveEmbedsCredits(t *testing.T) {
	rl := &stubLimiter{}
	lease, err := NewBroker(rl).Reserve(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, rl.acquired)

	ctx := lease.Context(context.Background())
	for i := 0; i < 3; i++ {
		assert.True(t, TakeCredit(ctx), "credit %d", i)
	}
	assert.False(t, TakeCredit(ctx))
}

func TestBrokerReserveZero(t *testing.T) {
	rl := &stubLimiter{}
	lease, err := NewBroker(rl).Reserve(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, rl.acquired)
	assert.False(t, TakeCredit(lease.Context(context.Background())))
}

func TestBrokerReservePropagatesLimiterError(t *testing.T) {
	boom := errors.New("limiter stopped")
	_, err := NewBroker(&stubLimiter{err: boom}).Reserve(context.Background(), 2)
	assert.ErrorIs(t, err, boom)
}

func TestNilLimiterIsNoOp(t *testing.T) {
	rl := NewLimiter(0, 0)
	assert.NoError(t, rl.Acquire(context.Background()))
}
