package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/atlasdesk/ticketd/internal/domain"
	"github.com/atlasdesk/ticketd/internal/events"
	"github.com/atlasdesk/ticketd/internal/pipeline"
	"github.com/atlasdesk/ticketd/internal/repository"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

// TicketCommandService holds the business handlers the pipeline executes.
// Handlers run inside the coordinator's transaction: every repository call
// below joins it through the context. Version conflicts from the repository
// propagate untouched so the coordinator can recognize and retry them.
type TicketCommandService struct {
	tickets  repository.TicketRepository
	messages repository.TicketMessageRepository
}

// NewTicketCommandService constructs the service.
func NewTicketCommandService(tickets repository.TicketRepository, messages repository.TicketMessageRepository) *TicketCommandService {
	return &TicketCommandService{tickets: tickets, messages: messages}
}

// RegisterHandlers binds every ticket command to the bus.
func (s *TicketCommandService) RegisterHandlers(bus *pipeline.Bus) {
	bus.Register(CommandCreateTicket, pipeline.HandlerFunc(s.handleCreate))
	bus.Register(CommandUpdateTicketStatus, pipeline.HandlerFunc(s.handleUpdateStatus))
	bus.Register(CommandChangeTicketPriority, pipeline.HandlerFunc(s.handleChangePriority))
	bus.Register(CommandAssignTicket, pipeline.HandlerFunc(s.handleAssign))
	bus.Register(CommandAddTicketMessage, pipeline.HandlerFunc(s.handleAddMessage))
}

func (s *TicketCommandService) handleCreate(ctx context.Context, caller domain.Caller, cmd pipeline.Command) (any, []events.Event, error) {
	c := cmd.(*CreateTicketCommand)

	ticket := &domain.Ticket{
		ExternalKey: generateTicketKey(),
		RequesterID: caller.ID,
		Title:       strings.TrimSpace(c.Title),
		Description: strings.TrimSpace(c.Description),
		Status:      domain.TicketStatusOpen,
		Priority:    c.Priority,
		Tags:        c.Tags,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, nil, err
	}

	return ticket, []events.Event{{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor(caller),
		Payload: events.TicketCreatedPayload{
			Priority: ticket.Priority,
			Title:    ticket.Title,
		},
	}}, nil
}

func (s *TicketCommandService) handleUpdateStatus(ctx context.Context, caller domain.Caller, cmd pipeline.Command) (any, []events.Event, error) {
	c := cmd.(*UpdateTicketStatusCommand)

	ticket, err := s.loadForCaller(ctx, caller, c.TicketID)
	if err != nil {
		return nil, nil, err
	}
	if !isValidTransition(ticket.Status, c.NewStatus) {
		return nil, nil, apperrors.NewValidationError("invalid status transition", map[string]any{
			"from": ticket.Status,
			"to":   c.NewStatus,
		})
	}

	oldStatus := ticket.Status
	ticket.Status = c.NewStatus
	if c.NewStatus == domain.TicketStatusClosed || c.NewStatus == domain.TicketStatusCancelled {
		now := time.Now()
		ticket.ClosedAt = &now
	} else {
		ticket.ClosedAt = nil
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, nil, err
	}

	return ticket, []events.Event{{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    actor(caller),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: c.NewStatus,
			Comment:   c.Comment,
		},
	}}, nil
}

func (s *TicketCommandService) handleChangePriority(ctx context.Context, caller domain.Caller, cmd pipeline.Command) (any, []events.Event, error) {
	c := cmd.(*ChangeTicketPriorityCommand)

	ticket, err := s.loadForCaller(ctx, caller, c.TicketID)
	if err != nil {
		return nil, nil, err
	}
	if ticket.Priority == c.NewPriority {
		return ticket, nil, nil
	}

	oldPriority := ticket.Priority
	ticket.Priority = c.NewPriority
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, nil, err
	}

	return ticket, []events.Event{{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		Actor:    actor(caller),
		Payload: events.TicketPriorityChangedPayload{
			OldPriority: oldPriority,
			NewPriority: c.NewPriority,
		},
	}}, nil
}

func (s *TicketCommandService) handleAssign(ctx context.Context, caller domain.Caller, cmd pipeline.Command) (any, []events.Event, error) {
	c := cmd.(*AssignTicketCommand)

	ticket, err := s.loadForCaller(ctx, caller, c.TicketID)
	if err != nil {
		return nil, nil, err
	}

	ticket.AssigneeID = c.AssigneeID
	if ticket.Status == domain.TicketStatusOpen && c.AssigneeID != nil {
		ticket.Status = domain.TicketStatusInProgress
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, nil, err
	}

	return ticket, []events.Event{{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    actor(caller),
		Payload: events.TicketAssignedPayload{
			AssigneeID: c.AssigneeID,
		},
	}}, nil
}

func (s *TicketCommandService) handleAddMessage(ctx context.Context, caller domain.Caller, cmd pipeline.Command) (any, []events.Event, error) {
	c := cmd.(*AddTicketMessageCommand)

	ticket, err := s.loadForCaller(ctx, caller, c.TicketID)
	if err != nil {
		return nil, nil, err
	}
	if ticket.Status == domain.TicketStatusClosed || ticket.Status == domain.TicketStatusCancelled {
		return nil, nil, apperrors.NewValidationError("ticket is closed", nil)
	}

	authorType := domain.MessageAuthorUser
	if caller.Role.Staff() {
		authorType = domain.MessageAuthorStaff
	}
	msg := &domain.TicketMessage{
		TicketID:   ticket.ID,
		AuthorType: authorType,
		AuthorID:   caller.ID,
		Body:       strings.TrimSpace(c.Body),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, nil, err
	}

	// A staff reply hands the ticket back to the requester; the version-checked
	// touch also serializes concurrent replies against status changes.
	if authorType == domain.MessageAuthorStaff && ticket.Status == domain.TicketStatusInProgress {
		ticket.Status = domain.TicketStatusPendingUser
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, nil, err
	}

	return msg, []events.Event{{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    actor(caller),
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			AuthorType:  msg.AuthorType,
			AuthorID:    msg.AuthorID,
			BodyPreview: preview(msg.Body),
		},
	}}, nil
}

// loadForCaller fetches the ticket and enforces ownership: end users only
// reach their own tickets, staff reach all.
func (s *TicketCommandService) loadForCaller(ctx context.Context, caller domain.Caller, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	if !caller.Role.Staff() && ticket.RequesterID != caller.ID {
		return nil, apperrors.NewForbidden("not your ticket")
	}
	return ticket, nil
}

func actor(caller domain.Caller) events.Actor {
	return events.Actor{UserID: caller.ID, Role: caller.Role}
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func preview(body string) string {
	if len(body) <= 120 {
		return body
	}
	return body[:120]
}

var allowedTransitions = map[domain.TicketStatus][]domain.TicketStatus{
	domain.TicketStatusOpen:        {domain.TicketStatusInProgress, domain.TicketStatusCancelled},
	domain.TicketStatusInProgress:  {domain.TicketStatusPendingUser, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusPendingUser: {domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusCancelled},
	domain.TicketStatusResolved:    {domain.TicketStatusClosed, domain.TicketStatusInProgress},
	domain.TicketStatusClosed:      {},
	domain.TicketStatusCancelled:   {},
}

func isValidTransition(current, next domain.TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
