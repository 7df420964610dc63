package txn

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/observability"
	"github.com/atlasdesk/ticketd/internal/repository"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

// Coordinator executes a command's business function inside a store
// transaction. A version conflict rolls the transaction back and retries the
// whole function with exponential backoff, up to MaxAttempts; every other
// error propagates immediately. Retrying on anything but the conflict
// sentinel would silently duplicate non-idempotent effects, so the decision
// is made on errors.Is against repository.ErrVersionConflict and nothing
// else.
type Coordinator struct {
	tm          repository.TxManager
	logger      *zap.Logger
	metrics     *observability.Metrics
	maxAttempts int
	baseDelay   time.Duration
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(tm repository.TxManager, logger *zap.Logger, metrics *observability.Metrics, maxAttempts int, baseDelay time.Duration) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 50 * time.Millisecond
	}
	return &Coordinator{
		tm:          tm,
		logger:      logger,
		metrics:     metrics,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
	}
}

// Execute runs fn transactionally with conflict retries. resource names the
// aggregate for the surfaced conflict error; commandType labels log entries
// and metrics.
func (c *Coordinator) Execute(ctx context.Context, resource, commandType string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := c.tm.WithinTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		if attempt >= c.maxAttempts {
			c.logger.Warn("concurrency retries exhausted",
				zap.String("command_type", commandType),
				zap.Int("attempts", attempt))
			return apperrors.NewConcurrencyConflict(resource, attempt)
		}

		c.metrics.RecordConflictRetry(commandType)
		delay := c.baseDelay << (attempt - 1)
		c.logger.Debug("version conflict, retrying",
			zap.String("command_type", commandType),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
