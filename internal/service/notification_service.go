package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/events"
)

// NotificationService reacts to relayed domain events with notification
// stubs. Handlers only log, which makes them trivially idempotent under the
// relay's at-least-once delivery.
type NotificationService struct {
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	return &NotificationService{logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, n.handleEvent)
	dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleEvent)
	dispatcher.Subscribe(events.EventTicketAssigned, n.handleEvent)
	dispatcher.Subscribe(events.EventTicketMessageAdded, n.handleEvent)
}

func (n *NotificationService) handleEvent(ctx context.Context, event events.Event) error {
	n.logger.Info("notification",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.Actor.UserID))
	return nil
}
