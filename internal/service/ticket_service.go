package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/events"
	"github.com/spec-kit/crm-engine/internal/observability"
	"github.com/spec-kit/crm-engine/internal/repository"
	"github.com/spec-kit/crm-engine/internal/sla"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// TicketService coordinates ticket intake, status changes and SLA
// bookkeeping.
type TicketService struct {
	tickets    repository.TicketRepository
	queues     repository.QueueRepository
	policies   repository.SLAPolicyRepository
	messages   repository.TicketMessageRepository
	history    repository.TicketHistoryRepository
	assignment *AssignmentService
	calculator *sla.Calculator
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	QueueRepo   repository.QueueRepository
	PolicyRepo  repository.SLAPolicyRepository
	MessageRepo repository.TicketMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	Assignment  *AssignmentService
	Calculator  *sla.Calculator
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	QueueID      string
	Type         domain.TicketType
	Priority     domain.TicketPriority
	RequesterRef string
	Subject      string
	Description  string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TicketService{
		tickets:    deps.TicketRepo,
		queues:     deps.QueueRepo,
		policies:   deps.PolicyRepo,
		messages:   deps.MessageRepo,
		history:    deps.HistoryRepo,
		assignment: deps.Assignment,
		calculator: deps.Calculator,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateTicket creates a ticket, stamps its SLA deadlines and, when the
// queue's rule enables auto-assignment, tries to assign it. A failed
// assignment attempt (no agents, manual queue) leaves the ticket in NEW
// and is not an intake error.
func (s *TicketService) CreateTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	queue, err := s.queues.GetByID(ctx, input.QueueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("queue", map[string]any{"queue_id": input.QueueID})
		}
		return nil, apperrors.NewGatewayError(err)
	}
	if !queue.Active {
		return nil, apperrors.NewValidationError("queue inactive", map[string]any{"queue_id": queue.ID})
	}

	ticket := &domain.Ticket{
		ExternalKey:  generateTicketKey(),
		Type:         input.Type,
		Priority:     input.Priority,
		Status:       domain.TicketStatusNew,
		QueueID:      queue.ID,
		RequesterRef: strings.TrimSpace(input.RequesterRef),
		Subject:      strings.TrimSpace(input.Subject),
		Description:  strings.TrimSpace(input.Description),
	}
	if ticket.Type == "" {
		ticket.Type = domain.TicketTypeSupport
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityP3
	}
	if ticket.Type == domain.TicketTypeCollection {
		ticket.Collection = &domain.CollectionDetails{Actions: []domain.CollectionAction{}}
	}

	createdAt := s.now()
	s.stampDeadlines(ctx, ticket, createdAt)

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, apperrors.NewGatewayError(err)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{Type: domain.AuthorTypeSystem},
		Payload: events.TicketCreatedPayload{
			QueueID:  ticket.QueueID,
			Type:     ticket.Type,
			Priority: ticket.Priority,
			Subject:  ticket.Subject,
		},
	})

	s.tryAutoAssign(ctx, ticket)
	return ticket, nil
}

// stampDeadlines fills both SLA deadlines, falling back to the
// configured default budgets when no policy covers the priority.
func (s *TicketService) stampDeadlines(ctx context.Context, ticket *domain.Ticket, createdAt time.Time) {
	var policy *domain.SLAPolicy
	if s.policies != nil {
		loaded, err := s.policies.GetByPriority(ctx, ticket.Priority)
		switch {
		case err == nil:
			policy = loaded
		case errors.Is(err, pgx.ErrNoRows):
			// handled by the calculator's policy check below
		default:
			s.logger.Warn("sla policy lookup failed", zap.Error(err), zap.String("priority", string(ticket.Priority)))
		}
	}

	firstResponse, resolution, err := s.calculator.ComputeDeadlines(ticket.Priority, createdAt, policy)
	if err != nil {
		s.logger.Warn("no sla policy for priority, using default budgets",
			zap.String("priority", string(ticket.Priority)))
		firstResponse, resolution = s.calculator.FallbackDeadlines(ticket.Priority, createdAt)
	}
	ticket.SLAFirstResponseDeadline = firstResponse
	ticket.SLAResolutionDeadline = resolution
}

// tryAutoAssign attempts distribution right after intake. Expected
// outcomes (manual queue, nobody eligible) are logged, not surfaced.
func (s *TicketService) tryAutoAssign(ctx context.Context, ticket *domain.Ticket) {
	if s.assignment == nil {
		return
	}
	rule, err := s.assignment.rules.GetByQueue(ctx, ticket.QueueID)
	if err != nil || !rule.AutoAssign {
		return
	}
	agentID, err := s.assignment.AssignTicket(ctx, ticket.ID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNoEligibleAgent) || apperrors.IsCode(err, apperrors.CodeManualAssignmentRequired) {
			s.logger.Info("ticket left unassigned",
				zap.String("ticket_id", ticket.ID),
				zap.String("reason", apperrors.ToDomainError(err).Code))
			return
		}
		s.logger.Error("auto assignment failed", zap.Error(err), zap.String("ticket_id", ticket.ID))
		return
	}
	ticket.AgentID = &agentID
	ticket.Status = domain.TicketStatusAssigned
}

// GetTicket fetches a ticket with its timeline.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, []domain.TicketMessage, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, apperrors.NewGatewayError(err)
	}
	return ticket, msgs, nil
}

// ListTickets returns tickets matching the filter.
func (s *TicketService) ListTickets(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListWithFilter(ctx, filter)
	if err != nil {
		return nil, apperrors.NewGatewayError(err)
	}
	return tickets, nil
}

// AdvanceStatus applies a lifecycle event to the ticket. Invalid
// transitions are rejected, never coerced.
func (s *TicketService) AdvanceStatus(ctx context.Context, actorID *string, ticketID string, event domain.StatusEvent, comment string) (*domain.Ticket, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	next, ok := domain.NextStatus(ticket.Status, event)
	if !ok {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), string(event))
	}

	oldStatus := ticket.Status
	ticket.Status = next
	now := s.now()
	switch next {
	case domain.TicketStatusResolved:
		ticket.ResolvedAt = &now
	case domain.TicketStatusClosed:
		ticket.ClosedAt = &now
		if ticket.ResolvedAt == nil {
			ticket.ResolvedAt = &now
		}
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, apperrors.NewConflict("ticket changed concurrently", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewGatewayError(err)
	}

	s.recordStatusChange(ctx, actorID, ticket.ID, oldStatus, next, comment)
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    agentActor(actorID),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: next,
			Event:     event,
			Comment:   comment,
		},
	})
	return ticket, nil
}

// AddMessage appends a timeline entry. The first public agent reply is
// the SLA first response: it stamps first_response_at and moves the
// ticket to IN_PROGRESS in the same update.
func (s *TicketService) AddMessage(ctx context.Context, authorType domain.MessageAuthorType, authorID *string, ticketID string, messageType domain.TicketMessageType, body string) (*domain.TicketMessage, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperrors.NewValidationError("message body required", nil)
	}
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	msg := &domain.TicketMessage{
		TicketID:    ticket.ID,
		AuthorType:  authorType,
		AuthorID:    authorID,
		MessageType: messageType,
		Body:        strings.TrimSpace(body),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.NewGatewayError(err)
	}

	if authorType == domain.AuthorTypeAgent && messageType == domain.MessageTypePublicReply {
		s.markFirstResponse(ctx, ticket, authorID)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		Actor:    events.Actor{Type: authorType, AgentID: authorID},
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			MessageType: msg.MessageType,
			AuthorType:  msg.AuthorType,
		},
	})
	return msg, nil
}

// markFirstResponse stamps the first response and the matching status
// transition together. Idempotent across duplicate replies.
func (s *TicketService) markFirstResponse(ctx context.Context, ticket *domain.Ticket, actorID *string) {
	now := s.now()
	if !s.calculator.MarkFirstResponse(ticket, now) {
		return
	}
	oldStatus := ticket.Status
	if next, ok := domain.NextStatus(ticket.Status, domain.EventStartProgress); ok {
		ticket.Status = next
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		s.logger.Error("failed to persist first response", zap.Error(err), zap.String("ticket_id", ticket.ID))
		return
	}
	if oldStatus != ticket.Status {
		s.recordStatusChange(ctx, actorID, ticket.ID, oldStatus, ticket.Status, "first agent reply")
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventFirstResponseRecorded,
		TicketID: ticket.ID,
		Actor:    agentActor(actorID),
		Payload: events.FirstResponseRecordedPayload{
			RespondedAt: now,
			Deadline:    ticket.SLAFirstResponseDeadline,
			Met:         ticket.SLAFirstResponseMet,
		},
	})
}

// GetSLAStatus classifies the ticket at the given instant. The first
// observation of a breach persists the sticky flag so the
// classification stays monotonic even if deadlines are later edited.
func (s *TicketService) GetSLAStatus(ctx context.Context, ticketID string, now time.Time) (sla.Risk, error) {
	ticket, err := s.loadTicket(ctx, ticketID)
	if err != nil {
		return "", err
	}
	risk := s.calculator.ClassifyRisk(ticket, now)
	s.metrics.RecordSLAState(string(risk))

	if risk == sla.RiskBreached && !ticket.SLABreached {
		ticket.SLABreached = true
		if err := s.tickets.Update(ctx, ticket); err != nil {
			// Best effort; the next read recomputes from the deadline.
			s.logger.Warn("failed to persist breach flag", zap.Error(err), zap.String("ticket_id", ticket.ID))
		} else {
			publishEvent(ctx, s.dispatcher, events.Event{
				Type:     events.EventSLABreachDetected,
				TicketID: ticket.ID,
				Actor:    events.Actor{Type: domain.AuthorTypeSystem},
				Payload: events.SLABreachDetectedPayload{
					Deadline:   ticket.SLAResolutionDeadline,
					DetectedAt: now,
				},
			})
		}
	}
	return risk, nil
}

func (s *TicketService) loadTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewGatewayError(err)
	}
	return ticket, nil
}

func (s *TicketService) recordStatusChange(ctx context.Context, actorID *string, ticketID string, oldStatus, newStatus domain.TicketStatus, comment string) {
	if s.history == nil {
		return
	}
	actorType := domain.AuthorTypeSystem
	if actorID != nil {
		actorType = domain.AuthorTypeAgent
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actorType,
		ChangedByID:   actorID,
		ChangeType:    domain.ChangeTypeStatus,
		OldValue:      map[string]any{"status": oldStatus},
		NewValue:      map[string]any{"status": newStatus, "comment": comment},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record status history", zap.Error(err), zap.String("ticket_id", ticketID))
	}
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func agentActor(agentID *string) events.Actor {
	if agentID == nil {
		return events.Actor{Type: domain.AuthorTypeSystem}
	}
	return events.Actor{Type: domain.AuthorTypeAgent, AgentID: agentID}
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}
