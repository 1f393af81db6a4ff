package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/spec-kit/crm-engine/internal/config"
	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/events"
	"github.com/spec-kit/crm-engine/internal/repository"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// CollectionService implements the collection workflow: contact actions,
// agreement registration and effectivation.
type CollectionService struct {
	tickets    repository.TicketRepository
	queues     repository.QueueRepository
	messages   repository.TicketMessageRepository
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.CollectionConfig
	now        func() time.Time
}

// CollectionDependencies bundles collaborators for the collection service.
type CollectionDependencies struct {
	TicketRepo  repository.TicketRepository
	QueueRepo   repository.QueueRepository
	MessageRepo repository.TicketMessageRepository
	HistoryRepo repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewCollectionService constructs the service.
func NewCollectionService(cfg config.CollectionConfig, deps CollectionDependencies) *CollectionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CollectionService{
		tickets:    deps.TicketRepo,
		queues:     deps.QueueRepo,
		messages:   deps.MessageRepo,
		history:    deps.HistoryRepo,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// RegisterAction appends a contact action to a collection ticket. The
// first action moves a NEW or ASSIGNED ticket to IN_PROGRESS; actions
// that schedule a follow-up park the ticket in WAITING_CUSTOMER. Once an
// agreement exists the contact history is frozen.
func (s *CollectionService) RegisterAction(ctx context.Context, actorID, ticketID string, action domain.CollectionAction) (*domain.Ticket, error) {
	ticket, err := s.loadCollectionTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.HasAgreement() {
		return nil, apperrors.NewTicketAlreadyHasAgreement(ticketID)
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), "register_action")
	}

	action.ActorID = actorID
	action.RecordedAt = s.now()
	if err := action.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"action_type": action.Type})
	}

	oldStatus := ticket.Status
	ticket.Collection.Actions = append(ticket.Collection.Actions, action)
	// Any registered action pulls a fresh ticket into progress before the
	// follow-up transition, so a callback or promise as the very first
	// action still leaves NEW behind.
	if ticket.Status == domain.TicketStatusNew || ticket.Status == domain.TicketStatusAssigned {
		if next, ok := domain.NextStatus(ticket.Status, domain.EventStartProgress); ok {
			ticket.Status = next
		}
	}
	if action.Type.ExpectsFollowUp() {
		if next, ok := domain.NextStatus(ticket.Status, domain.EventWaitCustomer); ok {
			ticket.Status = next
		}
	}

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			// Re-read to distinguish a concurrent agreement from a
			// plain write race.
			fresh, readErr := s.tickets.GetByID(ctx, ticketID)
			if readErr == nil && fresh.HasAgreement() {
				return nil, apperrors.NewTicketAlreadyHasAgreement(ticketID)
			}
			return nil, apperrors.NewConflict("ticket changed concurrently", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewGatewayError(err)
	}

	s.addSystemNote(ctx, ticket.ID, describeAction(action))
	s.recordHistory(ctx, actorID, ticket.ID, domain.ChangeTypeAction,
		map[string]any{"status": oldStatus},
		map[string]any{"status": ticket.Status, "action_type": action.Type, "result": action.Result})
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventCollectionAction,
		TicketID: ticket.ID,
		Actor:    agentActor(&actorID),
		Payload: events.CollectionActionPayload{
			ActionType: action.Type,
			Result:     action.Result,
		},
	})
	return ticket, nil
}

// RegisterAgreement stores the agreement on the ticket and routes it to
// the effectivation queue, keeping the agent who closed the deal. A
// ticket carries at most one agreement; the version check makes the
// guard hold under concurrent registration.
func (s *CollectionService) RegisterAgreement(ctx context.Context, actorID, ticketID string, agreement domain.Agreement) (*domain.Ticket, error) {
	ticket, err := s.loadCollectionTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.HasAgreement() {
		return nil, apperrors.NewTicketAlreadyHasAgreement(ticketID)
	}
	if ticket.Status.IsTerminal() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), "register_agreement")
	}
	if err := agreement.Validate(); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	target, err := s.findEffectivationQueue(ctx)
	if err != nil {
		return nil, err
	}

	oldQueueID := ticket.QueueID
	oldStatus := ticket.Status
	value := agreement.Value
	installments := agreement.Installments
	method := agreement.PaymentMethod
	date := agreement.Date
	if date.IsZero() {
		date = s.now()
	}
	ticket.Collection.AgreementValue = &value
	ticket.Collection.AgreementInstallments = &installments
	ticket.Collection.AgreementPaymentMethod = &method
	ticket.Collection.AgreementDate = &date
	ticket.Collection.AgreementRegisteredBy = &actorID
	ticket.QueueID = target.ID
	ticket.Status = domain.TicketStatusAssigned

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			fresh, readErr := s.tickets.GetByID(ctx, ticketID)
			if readErr == nil && fresh.HasAgreement() {
				return nil, apperrors.NewTicketAlreadyHasAgreement(ticketID)
			}
			return nil, apperrors.NewConflict("ticket changed concurrently", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewGatewayError(err)
	}

	s.addSystemNote(ctx, ticket.ID, fmt.Sprintf(
		"agreement registered: %s in %d installment(s) via %s, moved to queue %q",
		value.StringFixed(2), installments, method, target.Name))
	s.recordHistory(ctx, actorID, ticket.ID, domain.ChangeTypeAgreement,
		map[string]any{"queue_id": oldQueueID, "status": oldStatus},
		map[string]any{"queue_id": target.ID, "status": ticket.Status, "value": value.String()})
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventAgreementRegistered,
		TicketID: ticket.ID,
		Actor:    agentActor(&actorID),
		Payload: events.AgreementRegisteredPayload{
			Value:         value,
			Installments:  installments,
			PaymentMethod: method,
			TargetQueueID: target.ID,
		},
	})
	return ticket, nil
}

// EffectivateAgreement confirms the registered agreement and resolves
// the ticket. Only tickets sitting in the effectivation queue with an
// agreement qualify.
func (s *CollectionService) EffectivateAgreement(ctx context.Context, actorID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.loadCollectionTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !ticket.HasAgreement() {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), "effectivate")
	}
	target, err := s.findEffectivationQueue(ctx)
	if err != nil {
		return nil, err
	}
	if ticket.QueueID != target.ID {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), "effectivate")
	}
	if ticket.Status != domain.TicketStatusAssigned {
		return nil, apperrors.NewInvalidTransition(string(ticket.Status), "effectivate")
	}

	oldStatus := ticket.Status
	now := s.now()
	ticket.Status = domain.TicketStatusResolved
	ticket.ResolvedAt = &now

	if err := s.tickets.Update(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return nil, apperrors.NewConflict("ticket changed concurrently", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewGatewayError(err)
	}

	s.addSystemNote(ctx, ticket.ID, "agreement effectivated")
	s.recordHistory(ctx, actorID, ticket.ID, domain.ChangeTypeEffectivation,
		map[string]any{"status": oldStatus},
		map[string]any{"status": ticket.Status, "effectivated_at": now})
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventAgreementEffectivated,
		TicketID: ticket.ID,
		Actor:    agentActor(&actorID),
		Payload:  events.AgreementEffectivatedPayload{EffectivatedAt: now},
	})
	return ticket, nil
}

// findEffectivationQueue prefers the explicit queue role; when no queue
// carries it, falls back to an accent-insensitive name match so legacy
// names like "Efetivação" still resolve.
func (s *CollectionService) findEffectivationQueue(ctx context.Context) (*domain.Queue, error) {
	queues, err := s.queues.List(ctx, true)
	if err != nil {
		return nil, apperrors.NewGatewayError(err)
	}
	for i := range queues {
		if queues[i].Role == domain.QueueRoleEffectivation {
			return &queues[i], nil
		}
	}
	needle := foldQueueName(s.cfg.EffectivationQueueMatch)
	for i := range queues {
		if strings.Contains(foldQueueName(queues[i].Name), needle) {
			return &queues[i], nil
		}
	}
	return nil, apperrors.NewEffectivationQueueNotFound()
}

func (s *CollectionService) loadCollectionTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewGatewayError(err)
	}
	if ticket.Type != domain.TicketTypeCollection {
		return nil, apperrors.NewValidationError("not a collection ticket", map[string]any{
			"ticket_id": ticketID,
			"type":      ticket.Type,
		})
	}
	if ticket.Collection == nil {
		ticket.Collection = &domain.CollectionDetails{Actions: []domain.CollectionAction{}}
	}
	return ticket, nil
}

func (s *CollectionService) addSystemNote(ctx context.Context, ticketID, body string) {
	if s.messages == nil {
		return
	}
	msg := &domain.TicketMessage{
		TicketID:    ticketID,
		AuthorType:  domain.AuthorTypeSystem,
		MessageType: domain.MessageTypeSystemEvent,
		Body:        body,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		s.logger.Warn("failed to add system note", zap.Error(err), zap.String("ticket_id", ticketID))
	}
}

func (s *CollectionService) recordHistory(ctx context.Context, actorID, ticketID string, changeType domain.TicketChangeType, oldValue, newValue map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: domain.AuthorTypeAgent,
		ChangedByID:   &actorID,
		ChangeType:    changeType,
		OldValue:      oldValue,
		NewValue:      newValue,
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record history", zap.Error(err), zap.String("ticket_id", ticketID))
	}
}

func describeAction(action domain.CollectionAction) string {
	var b strings.Builder
	b.WriteString("contact action: ")
	b.WriteString(strings.ToLower(string(action.Type)))
	if action.Result != "" {
		b.WriteString(" (")
		b.WriteString(strings.ToLower(string(action.Result)))
		b.WriteString(")")
	}
	if action.PromisedFor != nil {
		b.WriteString(", follow-up ")
		b.WriteString(action.PromisedFor.Format(time.RFC3339))
	}
	if action.PromisedAmount != nil {
		b.WriteString(", promised ")
		b.WriteString(action.PromisedAmount.StringFixed(2))
	}
	return b.String()
}

var queueNameFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldQueueName lowercases and strips combining marks so "Efetivação"
// and "efetivacao" compare equal.
func foldQueueName(name string) string {
	folded, _, err := transform.String(queueNameFolder, name)
	if err != nil {
		folded = name
	}
	return strings.ToLower(strings.TrimSpace(folded))
}
