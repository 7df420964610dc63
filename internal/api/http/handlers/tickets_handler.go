package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/atlasdesk/ticketd/internal/api/dto"
	"github.com/atlasdesk/ticketd/internal/auth"
	"github.com/atlasdesk/ticketd/internal/domain"
	"github.com/atlasdesk/ticketd/internal/pipeline"
	"github.com/atlasdesk/ticketd/internal/repository"
	"github.com/atlasdesk/ticketd/internal/service"
	apperrors "github.com/atlasdesk/ticketd/pkg/util"
)

const idempotencyKeyHeader = "Idempotency-Key"

// TicketsHandler submits ticket commands to the pipeline and serves reads
// through the query service.
type TicketsHandler struct {
	bus     *pipeline.Bus
	queries *service.TicketQueryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(bus *pipeline.Bus, queries *service.TicketQueryService) *TicketsHandler {
	return &TicketsHandler{bus: bus, queries: queries}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.submit(c, caller, &service.CreateTicketCommand{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Tags:        req.Tags,
	})
	if err != nil {
		return err
	}
	ticket, err := ticketFromResult(result)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// UpdateStatus PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.submit(c, caller, &service.UpdateTicketStatusCommand{
		TicketID:  c.Params("id"),
		NewStatus: req.Status,
		Comment:   req.Comment,
	})
	if err != nil {
		return err
	}
	ticket, err := ticketFromResult(result)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// ChangePriority PATCH /tickets/:id/priority.
func (h *TicketsHandler) ChangePriority(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.ChangePriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.submit(c, caller, &service.ChangeTicketPriorityCommand{
		TicketID:    c.Params("id"),
		NewPriority: req.Priority,
	})
	if err != nil {
		return err
	}
	ticket, err := ticketFromResult(result)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// AssignTicket PATCH /tickets/:id/assignee.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AssignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.submit(c, caller, &service.AssignTicketCommand{
		TicketID:   c.Params("id"),
		AssigneeID: req.AssigneeID,
	})
	if err != nil {
		return err
	}
	ticket, err := ticketFromResult(result)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketSummary(ticket)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.submit(c, caller, &service.AddTicketMessageCommand{
		TicketID: c.Params("id"),
		Body:     req.Body,
	})
	if err != nil {
		return err
	}
	msg, err := messageFromResult(result)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.TicketMessage{
		ID:         msg.ID,
		AuthorType: msg.AuthorType,
		AuthorID:   msg.AuthorID,
		Body:       msg.Body,
		CreatedAt:  msg.CreatedAt,
	}})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	tickets, err := h.queries.ListTickets(c.UserContext(), caller, parseTicketQuery(c))
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	caller, ok := auth.CallerFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, msgs, err := h.queries.GetTicket(c.UserContext(), caller, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetail(ticket, msgs)})
}

func (h *TicketsHandler) submit(c *fiber.Ctx, caller domain.Caller, cmd pipeline.Command) (*pipeline.Result, error) {
	return h.bus.Submit(c.UserContext(), &pipeline.Request{
		Command:        cmd,
		Caller:         caller,
		IdempotencyKey: strings.TrimSpace(c.Get(idempotencyKeyHeader)),
	})
}

// ticketFromResult recovers the ticket from a pipeline result. Replayed
// results carry the stored serialized payload instead of a live ticket.
func ticketFromResult(result *pipeline.Result) (*domain.Ticket, error) {
	switch v := result.Value.(type) {
	case *domain.Ticket:
		return v, nil
	case json.RawMessage:
		var ticket domain.Ticket
		if err := json.Unmarshal(v, &ticket); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		return &ticket, nil
	}
	return nil, apperrors.NewInternalError(nil)
}

func messageFromResult(result *pipeline.Result) (*domain.TicketMessage, error) {
	switch v := result.Value.(type) {
	case *domain.TicketMessage:
		return v, nil
	case json.RawMessage:
		var msg domain.TicketMessage
		if err := json.Unmarshal(v, &msg); err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		return &msg, nil
	}
	return nil, apperrors.NewInternalError(nil)
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{
		Limit:  parseIntQuery(c, "limit", 20),
		Offset: parseIntQuery(c, "offset", 0),
	}
	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if priorities := c.Query("priority"); priorities != "" {
		for _, p := range strings.Split(priorities, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.ToUpper(strings.TrimSpace(p))))
		}
	}
	if assignee := c.Query("assignee_id"); assignee != "" {
		filter.AssigneeID = &assignee
	}
	return filter
}

func parseIntQuery(c *fiber.Ctx, name string, fallback int) int {
	val := c.Query(name)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}
