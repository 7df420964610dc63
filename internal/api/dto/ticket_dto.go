package dto

import (
	"time"

	"github.com/atlasdesk/ticketd/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Priority    domain.TicketPriority `json:"priority,omitempty"`
	Tags        []string              `json:"tags,omitempty"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status  domain.TicketStatus `json:"status"`
	Comment string              `json:"comment,omitempty"`
}

// ChangePriorityRequest payload.
type ChangePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// AssignTicketRequest payload.
type AssignTicketRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body string `json:"body"`
}

// TicketSummary is the list-view projection.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Title       string                `json:"title"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Version     int64                 `json:"version"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetail is the detail-view projection.
type TicketDetail struct {
	TicketSummary
	RequesterID string          `json:"requester_id"`
	Description string          `json:"description"`
	Tags        []string        `json:"tags,omitempty"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
	Messages    []TicketMessage `json:"messages"`
}

// TicketMessage is a conversation entry.
type TicketMessage struct {
	ID         string                   `json:"id"`
	AuthorType domain.MessageAuthorType `json:"author_type"`
	AuthorID   string                   `json:"author_id"`
	Body       string                   `json:"body"`
	CreatedAt  time.Time                `json:"created_at"`
}

// NewTicketSummary maps a domain ticket.
func NewTicketSummary(ticket *domain.Ticket) TicketSummary {
	return TicketSummary{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Title:       ticket.Title,
		Status:      ticket.Status,
		Priority:    ticket.Priority,
		AssigneeID:  ticket.AssigneeID,
		Version:     ticket.Version,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

// NewTicketDetail maps a domain ticket and its messages.
func NewTicketDetail(ticket *domain.Ticket, msgs []domain.TicketMessage) TicketDetail {
	out := TicketDetail{
		TicketSummary: NewTicketSummary(ticket),
		RequesterID:   ticket.RequesterID,
		Description:   ticket.Description,
		Tags:          ticket.Tags,
		ClosedAt:      ticket.ClosedAt,
		Messages:      make([]TicketMessage, 0, len(msgs)),
	}
	for _, msg := range msgs {
		out.Messages = append(out.Messages, TicketMessage{
			ID:         msg.ID,
			AuthorType: msg.AuthorType,
			AuthorID:   msg.AuthorID,
			Body:       msg.Body,
			CreatedAt:  msg.CreatedAt,
		})
	}
	return out
}
