package pipeline

import (
	"context"

	"github.com/atlasdesk/ticketd/internal/domain"
	"github.com/atlasdesk/ticketd/internal/events"
)

// Command is a write operation submitted through the pipeline. Validate
// inspects only the payload; Authorize checks the caller's role capability.
// Ownership checks that need store reads belong in the handler, inside the
// transaction.
type Command interface {
	// Type uniquely identifies the command, e.g. "ticket.update_status".
	Type() string
	// Class names the rate-limit operation class the command counts against.
	Class() string
	Validate() error
	Authorize(caller domain.Caller) error
}

// Request is the submission contract: a command plus caller identity and the
// optional caller-supplied idempotency key. Cancellation travels in the
// context.
type Request struct {
	Command        Command
	Caller         domain.Caller
	IdempotencyKey string
}

// Result is a completed command's outcome. Replayed marks results answered
// from the idempotency store without re-execution; their Value is the stored
// serialized payload (json.RawMessage).
type Result struct {
	Value    any
	Replayed bool
}

// Handler executes a command's business logic inside the transaction the
// execution stage opened. Domain events are returned as values; the stage
// flushes them to the outbox in the same transaction.
type Handler interface {
	Handle(ctx context.Context, caller domain.Caller, cmd Command) (any, []events.Event, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, caller domain.Caller, cmd Command) (any, []events.Event, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, caller domain.Caller, cmd Command) (any, []events.Event, error) {
	return f(ctx, caller, cmd)
}
