package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/domain"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

// Config carries stage tunables.
type Config struct {
	IdempotencyTTL time.Duration
}

// loggingStage brackets the whole execution with structured entries and
// elapsed time. Errors pass through with a single layer of context wrapping;
// the taxonomy error underneath stays reachable via errors.As.
func loggingStage(deps BusDeps) Stage {
	return func(next Exec) Exec {
		return func(ctx context.Context, req *Request) (*Result, error) {
			start := time.Now()
			deps.Logger.Info("command accepted",
				zap.String("command_type", req.Command.Type()),
				zap.String("caller_id", req.Caller.ID))

			result, err := next(ctx, req)
			elapsed := time.Since(start)

			if err != nil {
				deps.Metrics.RecordCommand(req.Command.Type(), "error", elapsed)
				deps.Logger.Warn("command failed",
					zap.String("command_type", req.Command.Type()),
					zap.String("caller_id", req.Caller.ID),
					zap.Duration("elapsed", elapsed),
					zap.Error(err))
				return nil, fmt.Errorf("command %s: %w", req.Command.Type(), err)
			}

			deps.Metrics.RecordCommand(req.Command.Type(), "ok", elapsed)
			deps.Logger.Info("command completed",
				zap.String("command_type", req.Command.Type()),
				zap.String("caller_id", req.Caller.ID),
				zap.Bool("replayed", result.Replayed),
				zap.Duration("elapsed", elapsed))
			return result, nil
		}
	}
}

// idempotencyStage short-circuits repeated submissions bearing the same key,
// returning the stored result of the first successful execution. Only
// successful results are stored, so a failed submission may be retried. Store
// failures are swallowed and logged: idempotency is a best-effort
// optimization, not a correctness requirement.
func idempotencyStage(deps BusDeps) Stage {
	return func(next Exec) Exec {
		return func(ctx context.Context, req *Request) (*Result, error) {
			if req.IdempotencyKey == "" {
				return next(ctx, req)
			}

			entry, err := deps.Idempotency.Get(ctx, req.Command.Type(), req.IdempotencyKey)
			if err != nil {
				deps.Logger.Warn("idempotency lookup failed",
					zap.String("command_type", req.Command.Type()),
					zap.Error(err))
			} else if entry != nil {
				deps.Metrics.RecordIdempotentReplay()
				return &Result{Value: json.RawMessage(entry.ResultPayload), Replayed: true}, nil
			}

			result, err := next(ctx, req)
			if err != nil {
				return nil, err
			}

			payload, marshalErr := json.Marshal(result.Value)
			if marshalErr != nil {
				deps.Logger.Warn("idempotency result not serializable",
					zap.String("command_type", req.Command.Type()),
					zap.Error(marshalErr))
				return result, nil
			}
			if putErr := deps.Idempotency.Put(ctx, req.Command.Type(), req.IdempotencyKey, payload, deps.Config.IdempotencyTTL); putErr != nil {
				deps.Logger.Warn("idempotency store failed",
					zap.String("command_type", req.Command.Type()),
					zap.Error(putErr))
			}
			return result, nil
		}
	}
}

// rateLimitStage applies the sliding-window limiter per (caller, operation
// class). Limiter store failures fail open: losing rate limiting briefly is
// preferable to failing valid commands.
func rateLimitStage(deps BusDeps) Stage {
	return func(next Exec) Exec {
		return func(ctx context.Context, req *Request) (*Result, error) {
			decision, err := deps.Limiter.Allow(ctx, req.Caller.ID, req.Command.Class())
			if err != nil {
				deps.Logger.Warn("rate limiter unavailable",
					zap.String("class", req.Command.Class()),
					zap.Error(err))
				return next(ctx, req)
			}
			if !decision.Allowed {
				deps.Metrics.RecordRateLimited()
				return nil, apperrors.NewRateLimited(decision.RetryAfter)
			}
			return next(ctx, req)
		}
	}
}

func validationStage() Stage {
	return func(next Exec) Exec {
		return func(ctx context.Context, req *Request) (*Result, error) {
			if err := req.Command.Validate(); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

func authorizationStage() Stage {
	return func(next Exec) Exec {
		return func(ctx context.Context, req *Request) (*Result, error) {
			if err := req.Command.Authorize(req.Caller); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

// cacheInvalidationStage evicts the touched ticket's detail entry as soon as
// the transaction commits, ahead of the relay-driven eviction. Best-effort.
func cacheInvalidationStage(deps BusDeps) Stage {
	return func(next Exec) Exec {
		return func(ctx context.Context, req *Request) (*Result, error) {
			result, err := next(ctx, req)
			if err != nil {
				return nil, err
			}

			var ticketID string
			switch v := result.Value.(type) {
			case *domain.Ticket:
				ticketID = v.ID
			case *domain.TicketMessage:
				ticketID = v.TicketID
			}
			if ticketID != "" {
				if evictErr := deps.Cache.Invalidate(ctx, ticketID); evictErr != nil {
					deps.Logger.Warn("post-commit cache eviction failed",
						zap.String("ticket_id", ticketID),
						zap.Error(evictErr))
				}
			}
			return result, nil
		}
	}
}

// executeStage is the terminal stage: it resolves the handler and runs it
// under the concurrency coordinator. Events the handler returns are
// serialized into the outbox inside the same transaction as the mutation, so
// a rollback takes the event records with it.
func (b *Bus) executeStage(deps BusDeps) Exec {
	return func(ctx context.Context, req *Request) (*Result, error) {
		handler, err := b.handlerFor(req.Command.Type())
		if err != nil {
			return nil, err
		}

		var value any
		err = deps.Coordinator.Execute(ctx, "ticket", req.Command.Type(), func(txCtx context.Context) error {
			v, evts, handleErr := handler.Handle(txCtx, req.Caller, req.Command)
			if handleErr != nil {
				return handleErr
			}
			for i := range evts {
				if evts[i].ID == "" {
					evts[i].ID = uuid.New().String()
				}
				if evts[i].Timestamp.IsZero() {
					evts[i].Timestamp = time.Now().UTC()
				}
				payload, marshalErr := json.Marshal(evts[i])
				if marshalErr != nil {
					return marshalErr
				}
				if insertErr := deps.Outbox.Insert(txCtx, string(evts[i].Type), payload); insertErr != nil {
					return insertErr
				}
			}
			value = v
			return nil
		})
		if err != nil {
			return nil, err
		}
		return &Result{Value: value}, nil
	}
}
