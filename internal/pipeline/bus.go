package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/cache"
	"github.com/atlasdesk/ticketd/internal/observability"
	"github.com/atlasdesk/ticketd/internal/outbox"
	"github.com/atlasdesk/ticketd/internal/ratelimit"
	"github.com/atlasdesk/ticketd/internal/repository"
	"github.com/atlasdesk/ticketd/internal/txn"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

// Exec advances a request to the next stage.
type Exec func(ctx context.Context, req *Request) (*Result, error)

// Stage wraps the downstream chain with one cross-cutting concern.
type Stage func(next Exec) Exec

// BusDeps bundles the collaborators the stage chain needs.
type BusDeps struct {
	Logger      *zap.Logger
	Metrics     *observability.Metrics
	Coordinator *txn.Coordinator
	Outbox      outbox.Store
	Idempotency repository.IdempotencyRepository
	Limiter     *ratelimit.Limiter
	Cache       *cache.TicketCache
	Config      Config
}

// Bus dispatches commands through the fixed ordered stage chain:
// logging → idempotency-check → rate-limit-check → input-validation →
// authorization → transactional-execution → cache-invalidation. The order is
// assembled once at construction and no stage can bypass another; anything
// after authorization sees a validated, authorized caller.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	chain    Exec
	logger   *zap.Logger
}

// NewBus builds the dispatcher with its stage chain.
func NewBus(deps BusDeps) *Bus {
	b := &Bus{
		handlers: make(map[string]Handler),
		logger:   deps.Logger,
	}

	chain := b.executeStage(deps)
	for _, stage := range []Stage{
		cacheInvalidationStage(deps),
		authorizationStage(),
		validationStage(),
		rateLimitStage(deps),
		idempotencyStage(deps),
		loggingStage(deps),
	} {
		chain = stage(chain)
	}
	b.chain = chain
	return b
}

// Register binds a handler to a command type. Submitting an unregistered
// type is a programming error surfaced as an internal failure.
func (b *Bus) Register(commandType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[commandType] = handler
}

// Submit runs the request through the pipeline.
func (b *Bus) Submit(ctx context.Context, req *Request) (*Result, error) {
	if req == nil || req.Command == nil {
		return nil, apperrors.NewValidationError("missing command", nil)
	}
	return b.chain(ctx, req)
}

func (b *Bus) handlerFor(commandType string) (Handler, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handler, ok := b.handlers[commandType]
	if !ok {
		return nil, apperrors.NewInternalError(fmt.Errorf("no handler registered for %q", commandType))
	}
	return handler, nil
}
