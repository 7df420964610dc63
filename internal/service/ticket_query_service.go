package service

import (
	"context"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/atlasdesk/ticketd/internal/cache"
	"github.com/atlasdesk/ticketd/internal/domain"
	"github.com/atlasdesk/ticketd/internal/repository"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

// TicketQueryService serves the read side. Detail reads go through the redis
// cache; the cache is fed here on miss and evicted by the invalidation
// subscriber when events arrive.
type TicketQueryService struct {
	tickets  repository.TicketRepository
	messages repository.TicketMessageRepository
	cache    *cache.TicketCache
	logger   *zap.Logger
}

// NewTicketQueryService constructs the service.
func NewTicketQueryService(tickets repository.TicketRepository, messages repository.TicketMessageRepository, ticketCache *cache.TicketCache, logger *zap.Logger) *TicketQueryService {
	return &TicketQueryService{tickets: tickets, messages: messages, cache: ticketCache, logger: logger}
}

// GetTicket returns the ticket detail for the caller, cache-first.
func (s *TicketQueryService) GetTicket(ctx context.Context, caller domain.Caller, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.cache.Get(ctx, ticketID)
	if err != nil {
		s.logger.Warn("ticket cache read failed", zap.String("ticket_id", ticketID), zap.Error(err))
		ticket = nil
	}
	if ticket == nil {
		ticket, err = s.tickets.GetByID(ctx, ticketID)
		if err != nil {
			if err == pgx.ErrNoRows {
				return nil, nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
			}
			return nil, nil, err
		}
		if cacheErr := s.cache.Set(ctx, ticket); cacheErr != nil {
			s.logger.Warn("ticket cache write failed", zap.String("ticket_id", ticketID), zap.Error(cacheErr))
		}
	}

	if !caller.Role.Staff() && ticket.RequesterID != caller.ID {
		return nil, nil, apperrors.NewForbidden("not your ticket")
	}

	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, msgs, nil
}

// ListTickets returns tickets visible to the caller. End users see their own;
// staff may filter freely.
func (s *TicketQueryService) ListTickets(ctx context.Context, caller domain.Caller, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if !caller.Role.Staff() {
		filter.RequesterID = &caller.ID
		filter.AssigneeID = nil
	}
	return s.tickets.ListWithFilter(ctx, filter)
}
