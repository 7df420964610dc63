package service

import (
	"strings"

	"github.com/atlasdesk/ticketd/internal/domain"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

// Command type identifiers.
const (
	CommandCreateTicket         = "ticket.create"
	CommandUpdateTicketStatus   = "ticket.update_status"
	CommandChangeTicketPriority = "ticket.change_priority"
	CommandAssignTicket         = "ticket.assign"
	CommandAddTicketMessage     = "ticket.add_message"
)

// Rate-limit operation classes. Creation is budgeted separately from other
// writes since it is the abuse-prone path.
const (
	ClassTicketSubmit = "ticket_submit"
	ClassTicketWrite  = "ticket_write"
)

// CreateTicketCommand opens a new ticket for the caller.
type CreateTicketCommand struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Tags        []string
}

func (c *CreateTicketCommand) Type() string  { return CommandCreateTicket }
func (c *CreateTicketCommand) Class() string { return ClassTicketSubmit }

func (c *CreateTicketCommand) Validate() error {
	if strings.TrimSpace(c.Title) == "" || strings.TrimSpace(c.Description) == "" {
		return apperrors.NewValidationError("title and description required", nil)
	}
	if c.Priority != "" && !domain.ValidPriority(c.Priority) {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": c.Priority})
	}
	return nil
}

func (c *CreateTicketCommand) Authorize(caller domain.Caller) error {
	return nil
}

// UpdateTicketStatusCommand moves a ticket through its lifecycle.
type UpdateTicketStatusCommand struct {
	TicketID  string
	NewStatus domain.TicketStatus
	Comment   string
}

func (c *UpdateTicketStatusCommand) Type() string  { return CommandUpdateTicketStatus }
func (c *UpdateTicketStatusCommand) Class() string { return ClassTicketWrite }

func (c *UpdateTicketStatusCommand) Validate() error {
	if c.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	if !domain.ValidStatus(c.NewStatus) {
		return apperrors.NewValidationError("invalid status", map[string]any{"status": c.NewStatus})
	}
	return nil
}

func (c *UpdateTicketStatusCommand) Authorize(caller domain.Caller) error {
	// End users may only cancel; everything else needs staff.
	if !caller.Role.Staff() && c.NewStatus != domain.TicketStatusCancelled {
		return apperrors.NewForbidden("staff role required")
	}
	return nil
}

// ChangeTicketPriorityCommand reclassifies SLA urgency.
type ChangeTicketPriorityCommand struct {
	TicketID    string
	NewPriority domain.TicketPriority
}

func (c *ChangeTicketPriorityCommand) Type() string  { return CommandChangeTicketPriority }
func (c *ChangeTicketPriorityCommand) Class() string { return ClassTicketWrite }

func (c *ChangeTicketPriorityCommand) Validate() error {
	if c.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	if !domain.ValidPriority(c.NewPriority) {
		return apperrors.NewValidationError("invalid priority", map[string]any{"priority": c.NewPriority})
	}
	return nil
}

func (c *ChangeTicketPriorityCommand) Authorize(caller domain.Caller) error {
	if !caller.Role.Staff() {
		return apperrors.NewForbidden("staff role required")
	}
	return nil
}

// AssignTicketCommand sets or clears the assignee.
type AssignTicketCommand struct {
	TicketID   string
	AssigneeID *string
}

func (c *AssignTicketCommand) Type() string  { return CommandAssignTicket }
func (c *AssignTicketCommand) Class() string { return ClassTicketWrite }

func (c *AssignTicketCommand) Validate() error {
	if c.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	if c.AssigneeID != nil && *c.AssigneeID == "" {
		return apperrors.NewValidationError("assignee_id must be set or omitted", nil)
	}
	return nil
}

func (c *AssignTicketCommand) Authorize(caller domain.Caller) error {
	if !caller.Role.Staff() {
		return apperrors.NewForbidden("staff role required")
	}
	return nil
}

// AddTicketMessageCommand appends a reply to the conversation.
type AddTicketMessageCommand struct {
	TicketID string
	Body     string
}

func (c *AddTicketMessageCommand) Type() string  { return CommandAddTicketMessage }
func (c *AddTicketMessageCommand) Class() string { return ClassTicketWrite }

func (c *AddTicketMessageCommand) Validate() error {
	if c.TicketID == "" {
		return apperrors.NewValidationError("ticket_id required", nil)
	}
	if strings.TrimSpace(c.Body) == "" {
		return apperrors.NewValidationError("body required", nil)
	}
	return nil
}

func (c *AddTicketMessageCommand) Authorize(caller domain.Caller) error {
	return nil
}
