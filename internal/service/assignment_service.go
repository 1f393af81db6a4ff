package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-engine/internal/config"
	"github.com/spec-kit/crm-engine/internal/distribution"
	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/events"
	"github.com/spec-kit/crm-engine/internal/observability"
	"github.com/spec-kit/crm-engine/internal/repository"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// AssignmentService drives automatic ticket distribution. All cursor
// mutation funnels through here: the resolver decides, the store commits
// ticket and cursor in one transaction, and a per-queue lock keeps
// concurrent decisions ordered.
type AssignmentService struct {
	tickets repository.TicketRepository
	agents  repository.AgentRepository
	rules   repository.DistributionRuleRepository
	store   repository.AssignmentStore
	history repository.TicketHistoryRepository

	locker     QueueLocker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.DistributionConfig
	now        func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	TicketRepo  repository.TicketRepository
	AgentRepo   repository.AgentRepository
	RuleRepo    repository.DistributionRuleRepository
	Store       repository.AssignmentStore
	HistoryRepo repository.TicketHistoryRepository
	Locker      QueueLocker
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(cfg config.DistributionConfig, deps AssignmentDependencies) *AssignmentService {
	locker := deps.Locker
	if locker == nil {
		locker = NewLocalQueueLocker()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		tickets:    deps.TicketRepo,
		agents:     deps.AgentRepo,
		rules:      deps.RuleRepo,
		store:      deps.Store,
		history:    deps.HistoryRepo,
		locker:     locker,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// AssignTicket selects an assignee for the ticket under its queue's
// rule. On resource-exhaustion outcomes (no eligible agent, manual
// queue) the ticket is left unassigned in status NEW.
func (s *AssignmentService) AssignTicket(ctx context.Context, ticketID string) (string, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return "", apperrors.NewGatewayError(err)
	}
	if ticket.AgentID != nil {
		return "", apperrors.NewConflict("ticket already assigned", map[string]any{"ticket_id": ticketID})
	}
	if !domain.CanTransition(ticket.Status, domain.EventAssign) {
		return "", apperrors.NewInvalidTransition(string(ticket.Status), string(domain.EventAssign))
	}

	rule, err := s.rules.GetByQueue(ctx, ticket.QueueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No enabled rule means nobody configured distribution for
			// this queue; a human has to assign.
			return "", apperrors.NewManualAssignmentRequired(ticket.QueueID)
		}
		return "", apperrors.NewGatewayError(err)
	}
	if rule.WorkingHoursOnly && !s.withinWorkingHours(s.now()) {
		return "", apperrors.NewNoEligibleAgent(ticket.QueueID)
	}

	release, err := s.locker.Lock(ctx, ticket.QueueID)
	if err != nil {
		return "", err
	}
	defer release()

	agentID, err := s.resolveAndCommit(ctx, ticket, rule)
	if err != nil {
		return "", err
	}

	s.metrics.RecordAssignment(string(rule.Type))
	s.recordAssignment(ctx, ticket, agentID)
	s.publishAssigned(ctx, ticket, agentID, rule.Type)
	return agentID, nil
}

// resolveAndCommit runs under the queue lock. The rule is re-read after
// acquiring the lock so the cursor reflects the latest committed
// assignment.
func (s *AssignmentService) resolveAndCommit(ctx context.Context, ticket *domain.Ticket, rule *domain.DistributionRule) (string, error) {
	fresh, err := s.rules.GetByQueue(ctx, rule.QueueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.NewManualAssignmentRequired(rule.QueueID)
		}
		return "", apperrors.NewGatewayError(err)
	}

	agents, err := s.agents.ListByQueue(ctx, ticket.QueueID, true)
	if err != nil {
		return "", apperrors.NewGatewayError(err)
	}
	openCounts, err := s.tickets.CountOpenByAgent(ctx, ticket.QueueID)
	if err != nil {
		return "", apperrors.NewGatewayError(err)
	}

	eligible := distribution.FilterEligible(fresh, agents, openCounts)
	agentID, updated, err := distribution.SelectAssignee(*fresh, eligible, openCounts)
	if err != nil {
		return "", err
	}

	ticket.AgentID = &agentID
	ticket.Status = domain.TicketStatusAssigned
	if err := s.store.CommitAssignment(ctx, ticket, &updated); err != nil {
		if errors.Is(err, repository.ErrStaleVersion) {
			return "", apperrors.NewConflict("assignment lost a concurrent update", map[string]any{
				"ticket_id": ticket.ID,
			})
		}
		return "", apperrors.NewGatewayError(err)
	}
	return agentID, nil
}

func (s *AssignmentService) withinWorkingHours(now time.Time) bool {
	hour := now.Hour()
	return hour >= s.cfg.WorkingHoursStart && hour < s.cfg.WorkingHoursEnd
}

func (s *AssignmentService) recordAssignment(ctx context.Context, ticket *domain.Ticket, agentID string) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:      ticket.ID,
		ChangedByType: domain.AuthorTypeSystem,
		ChangeType:    domain.ChangeTypeAssignee,
		OldValue:      map[string]any{"agent_id": nil},
		NewValue:      map[string]any{"agent_id": agentID},
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record assignment history", zap.Error(err), zap.String("ticket_id", ticket.ID))
	}
}

func (s *AssignmentService) publishAssigned(ctx context.Context, ticket *domain.Ticket, agentID string, strategy domain.DistributionType) {
	if s.dispatcher == nil {
		return
	}
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		Actor:    events.Actor{Type: domain.AuthorTypeSystem},
		Payload: events.TicketAssignedPayload{
			AgentID:  agentID,
			QueueID:  ticket.QueueID,
			Strategy: strategy,
		},
	})
}
