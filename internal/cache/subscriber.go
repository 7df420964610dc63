package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/events"
)

// InvalidationSubscriber evicts stale read-cache entries when ticket events
// arrive from the outbox relay. Eviction is idempotent (deleting an absent
// key is a no-op), so at-least-once redelivery is safe, and best-effort: a
// failed eviction is logged and the entry ages out on its TTL instead.
type InvalidationSubscriber struct {
	cache  *TicketCache
	logger *zap.Logger
}

// NewInvalidationSubscriber constructs the subscriber.
func NewInvalidationSubscriber(cache *TicketCache, logger *zap.Logger) *InvalidationSubscriber {
	return &InvalidationSubscriber{cache: cache, logger: logger}
}

// RegisterHandlers subscribes to every event type that mutates a ticket.
func (s *InvalidationSubscriber) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketPriorityChanged,
		events.EventTicketAssigned,
		events.EventTicketMessageAdded,
	} {
		dispatcher.Subscribe(eventType, s.handle)
	}
}

func (s *InvalidationSubscriber) handle(ctx context.Context, event events.Event) error {
	if err := s.cache.Invalidate(ctx, event.TicketID); err != nil {
		s.logger.Warn("cache eviction failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
	return nil
}
