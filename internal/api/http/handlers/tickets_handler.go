package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-engine/internal/api/dto"
	"github.com/spec-kit/crm-engine/internal/auth"
	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/repository"
	"github.com/spec-kit/crm-engine/internal/service"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	tickets    *service.TicketService
	assignment *service.AssignmentService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignment *service.AssignmentService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, assignment: assignment}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.QueueID == "" || strings.TrimSpace(req.Subject) == "" {
		return apperrors.NewValidationError("queue_id and subject required", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.UserContext(), service.TicketCreateInput{
		QueueID:      req.QueueID,
		Type:         req.Type,
		Priority:     req.Priority,
		RequesterRef: req.RequesterRef,
		Subject:      req.Subject,
		Description:  req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	tickets, err := h.tickets.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, msgs, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	risk, err := h.tickets.GetSLAStatus(c.UserContext(), ticket.ID, time.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, msgs, string(risk))})
}

// AssignTicket POST /tickets/:id/assign.
func (h *TicketsHandler) AssignTicket(c *fiber.Ctx) error {
	agentID, err := h.assignment.AssignTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.AssignmentResponse{
		TicketID: c.Params("id"),
		AgentID:  agentID,
	}})
}

// AdvanceStatus POST /tickets/:id/status.
func (h *TicketsHandler) AdvanceStatus(c *fiber.Ctx) error {
	var req dto.AdvanceStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Event == "" {
		return apperrors.NewValidationError("event required", nil)
	}

	var actorID *string
	if principal, ok := auth.PrincipalFromContext(c); ok {
		actorID = &principal.Agent.ID
	}
	ticket, err := h.tickets.AdvanceStatus(c.UserContext(), actorID, c.Params("id"), req.Event, req.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddMessage POST /tickets/:id/messages.
func (h *TicketsHandler) AddMessage(c *fiber.Ctx) error {
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("agent required")
	}
	messageType := domain.MessageTypePublicReply
	if req.MessageType != nil {
		messageType = *req.MessageType
	}

	msg, err := h.tickets.AddMessage(c.UserContext(), domain.AuthorTypeAgent, &principal.Agent.ID, c.Params("id"), messageType, req.Body)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": ticketMessageResponse(msg)})
}

// GetSLAStatus GET /tickets/:id/sla.
func (h *TicketsHandler) GetSLAStatus(c *fiber.Ctx) error {
	ticket, _, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	risk, err := h.tickets.GetSLAStatus(c.UserContext(), ticket.ID, time.Now())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaStatusResponse(ticket, string(risk))})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if queueID := c.Query("queue_id"); queueID != "" {
		filter.QueueID = &queueID
	}
	if agentID := c.Query("agent_id"); agentID != "" {
		filter.AgentID = &agentID
	}
	if typeStr := c.Query("type"); typeStr != "" {
		for _, part := range strings.Split(typeStr, ",") {
			filter.Types = append(filter.Types, domain.TicketType(strings.TrimSpace(part)))
		}
	}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:          ticket.ID,
		ExternalKey: ticket.ExternalKey,
		Type:        ticket.Type,
		Priority:    ticket.Priority,
		Status:      ticket.Status,
		QueueID:     ticket.QueueID,
		AgentID:     ticket.AgentID,
		Subject:     ticket.Subject,
		SLABreached: ticket.SLABreached,
		CreatedAt:   ticket.CreatedAt,
		UpdatedAt:   ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, messages []domain.TicketMessage, risk string) dto.TicketDetailResponse {
	msgs := make([]dto.TicketMessageResponse, 0, len(messages))
	for i := range messages {
		msgs = append(msgs, ticketMessageResponse(&messages[i]))
	}
	return dto.TicketDetailResponse{
		ID:           ticket.ID,
		ExternalKey:  ticket.ExternalKey,
		Type:         ticket.Type,
		Priority:     ticket.Priority,
		Status:       ticket.Status,
		QueueID:      ticket.QueueID,
		AgentID:      ticket.AgentID,
		RequesterRef: ticket.RequesterRef,
		Subject:      ticket.Subject,
		Description:  ticket.Description,
		SLA:          slaStatusResponse(ticket, risk),
		Collection:   collectionDetails(ticket),
		ResolvedAt:   ticket.ResolvedAt,
		ClosedAt:     ticket.ClosedAt,
		CreatedAt:    ticket.CreatedAt,
		UpdatedAt:    ticket.UpdatedAt,
		Messages:     msgs,
	}
}

func slaStatusResponse(ticket *domain.Ticket, risk string) dto.SLAStatusResponse {
	return dto.SLAStatusResponse{
		Risk:                  risk,
		FirstResponseDeadline: ticket.SLAFirstResponseDeadline,
		ResolutionDeadline:    ticket.SLAResolutionDeadline,
		FirstResponseAt:       ticket.FirstResponseAt,
		FirstResponseMet:      ticket.SLAFirstResponseMet,
		Breached:              ticket.SLABreached,
	}
}

func collectionDetails(ticket *domain.Ticket) *dto.CollectionDetailsResponse {
	if ticket.Collection == nil {
		return nil
	}
	actions := ticket.Collection.Actions
	if actions == nil {
		actions = []domain.CollectionAction{}
	}
	return &dto.CollectionDetailsResponse{
		AgreementValue:         ticket.Collection.AgreementValue,
		AgreementInstallments:  ticket.Collection.AgreementInstallments,
		AgreementPaymentMethod: ticket.Collection.AgreementPaymentMethod,
		AgreementDate:          ticket.Collection.AgreementDate,
		AgreementRegisteredBy:  ticket.Collection.AgreementRegisteredBy,
		Actions:                actions,
	}
}

func ticketMessageResponse(msg *domain.TicketMessage) dto.TicketMessageResponse {
	return dto.TicketMessageResponse{
		ID:          msg.ID,
		MessageType: msg.MessageType,
		AuthorType:  msg.AuthorType,
		AuthorID:    msg.AuthorID,
		Body:        msg.Body,
		CreatedAt:   msg.CreatedAt,
	}
}
