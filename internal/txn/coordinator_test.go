package txn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/observability"
	"github.com/atlasdesk/ticketd/internal/repository"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

// fakeTxManager runs the function directly and records commit/rollback
// outcomes per attempt.
type fakeTxManager struct {
	attempts  int
	rollbacks int
	commits   int
}

func (m *fakeTxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.attempts++
	if err := fn(ctx); err != nil {
		m.rollbacks++
		return err
	}
	m.commits++
	return nil
}

func newTestCoordinator(tm repository.TxManager, maxAttempts int) *Coordinator {
	return NewCoordinator(tm, zap.NewNop(), observability.NewMetrics(), maxAttempts, time.Millisecond)
}

func TestExecuteCommitsOnFirstSuccess(t *testing.T) {
	tm := &fakeTxManager{}
	c := newTestCoordinator(tm, 3)

	err := c.Execute(context.Background(), "ticket", "ticket.update_status", func(ctx context.Context) error {
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, tm.attempts)
	assert.Equal(t, 1, tm.commits)
	assert.Equal(t, 0, tm.rollbacks)
}

func TestExecuteRetriesOnVersionConflict(t *testing.T) {
	tm := &fakeTxManager{}
	c := newTestCoordinator(tm, 3)

	calls := 0
	err := c.Execute(context.Background(), "ticket", "ticket.update_status", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return repository.ErrVersionConflict
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, tm.attempts)
	assert.Equal(t, 1, tm.commits)
	assert.Equal(t, 1, tm.rollbacks)
}

func TestExecuteSurfacesConflictAfterExhaustion(t *testing.T) {
	tm := &fakeTxManager{}
	c := newTestCoordinator(tm, 3)

	err := c.Execute(context.Background(), "ticket", "ticket.update_status", func(ctx context.Context) error {
		return repository.ErrVersionConflict
	})

	require.Error(t, err)
	assert.Equal(t, 3, tm.attempts)
	assert.True(t, apperrors.IsCode(err, "CONCURRENCY_CONFLICT"))

	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, 409, domainErr.HTTPStatus)
}

func TestExecuteDoesNotRetryFatalErrors(t *testing.T) {
	tm := &fakeTxManager{}
	c := newTestCoordinator(tm, 3)

	fatal := errors.New("connection reset")
	err := c.Execute(context.Background(), "ticket", "ticket.create", func(ctx context.Context) error {
		return fatal
	})

	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, tm.attempts, "non-conflict errors must not be retried")
}

func TestExecuteDoesNotRetryWrappedDomainErrors(t *testing.T) {
	tm := &fakeTxManager{}
	c := newTestCoordinator(tm, 3)

	err := c.Execute(context.Background(), "ticket", "ticket.update_status", func(ctx context.Context) error {
		return apperrors.NewForbidden("not your ticket")
	})

	require.Error(t, err)
	assert.Equal(t, 1, tm.attempts)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestExecuteHonorsCancellationDuringBackoff(t *testing.T) {
	tm := &fakeTxManager{}
	c := NewCoordinator(tm, zap.NewNop(), observability.NewMetrics(), 3, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := c.Execute(ctx, "ticket", "ticket.update_status", func(ctx context.Context) error {
		return repository.ErrVersionConflict
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, tm.attempts)
}

func TestExecuteBackoffGrowsExponentially(t *testing.T) {
	tm := &fakeTxManager{}
	base := 5 * time.Millisecond
	c := NewCoordinator(tm, zap.NewNop(), observability.NewMetrics(), 3, base)

	start := time.Now()
	_ = c.Execute(context.Background(), "ticket", "ticket.update_status", func(ctx context.Context) error {
		return repository.ErrVersionConflict
	})
	elapsed := time.Since(start)

	// Two waits: base and 2*base.
	assert.GreaterOrEqual(t, elapsed, 3*base)
}
