package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, classes ...Class) *Limiter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLimiter(client, classes...)
}

func TestAllowWithinBudget(t *testing.T) {
	limiter := newTestLimiter(t, Class{Name: "ticket_write", Max: 3, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "user-1", "ticket_write")
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.Equal(t, 2-i, decision.Remaining)
	}
}

func TestDeniesAboveBudgetWithRetryAfter(t *testing.T) {
	limiter := newTestLimiter(t, Class{Name: "ticket_write", Max: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Allow(ctx, "user-1", "ticket_write")
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.Allow(ctx, "user-1", "ticket_write")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 0, decision.Remaining)
	assert.Greater(t, decision.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, decision.RetryAfter, time.Minute)
}

func TestWindowSlidesOpen(t *testing.T) {
	limiter := newTestLimiter(t, Class{Name: "ticket_write", Max: 1, Window: 30 * time.Millisecond})
	ctx := context.Background()

	decision, err := limiter.Allow(ctx, "user-1", "ticket_write")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	decision, err = limiter.Allow(ctx, "user-1", "ticket_write")
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	time.Sleep(40 * time.Millisecond)

	decision, err = limiter.Allow(ctx, "user-1", "ticket_write")
	require.NoError(t, err)
	assert.True(t, decision.Allowed, "window elapsed, submission allowed again")
}

func TestWindowsArePerUserAndClass(t *testing.T) {
	limiter := newTestLimiter(t,
		Class{Name: "ticket_submit", Max: 1, Window: time.Minute},
		Class{Name: "ticket_write", Max: 1, Window: time.Minute},
	)
	ctx := context.Background()

	decision, err := limiter.Allow(ctx, "user-1", "ticket_submit")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// Same user, different class: separate window.
	decision, err = limiter.Allow(ctx, "user-1", "ticket_write")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Different user, same class: separate window.
	decision, err = limiter.Allow(ctx, "user-2", "ticket_submit")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)

	// Original pair is exhausted.
	decision, err = limiter.Allow(ctx, "user-1", "ticket_submit")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestUnknownClassIsUnlimited(t *testing.T) {
	limiter := newTestLimiter(t)
	decision, err := limiter.Allow(context.Background(), "user-1", "unconfigured")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
