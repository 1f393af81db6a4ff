package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/repository"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// DistributionAdminService manages per-queue rule configuration.
type DistributionAdminService struct {
	queues repository.QueueRepository
	agents repository.AgentRepository
	rules  repository.DistributionRuleRepository
	logger *zap.Logger
}

// NewDistributionAdminService constructs the service.
func NewDistributionAdminService(queues repository.QueueRepository, agents repository.AgentRepository, rules repository.DistributionRuleRepository, logger *zap.Logger) *DistributionAdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributionAdminService{queues: queues, agents: agents, rules: rules, logger: logger}
}

// RuleInput carries the editable rule fields. The agent sequence is not
// part of the input; it is recomputed from the active agents serving the
// queue at save time.
type RuleInput struct {
	Enabled              bool
	Type                 domain.DistributionType
	ConsiderCapacity     bool
	ConsiderOnlineStatus bool
	AutoAssign           bool
	WorkingHoursOnly     bool
}

// ListQueues returns all queues.
func (s *DistributionAdminService) ListQueues(ctx context.Context, activeOnly bool) ([]domain.Queue, error) {
	queues, err := s.queues.List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.NewGatewayError(err)
	}
	return queues, nil
}

// GetRule returns the enabled rule of a queue.
func (s *DistributionAdminService) GetRule(ctx context.Context, queueID string) (*domain.DistributionRule, error) {
	if _, err := s.loadQueue(ctx, queueID); err != nil {
		return nil, err
	}
	rule, err := s.rules.GetByQueue(ctx, queueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("distribution rule", map[string]any{"queue_id": queueID})
		}
		return nil, apperrors.NewGatewayError(err)
	}
	return rule, nil
}

// SaveRule upserts the queue's rule, rebuilding the agent sequence from
// the active agents currently serving the queue. A cursor pointing at an
// agent no longer in the sequence is reset by the repository.
func (s *DistributionAdminService) SaveRule(ctx context.Context, queueID string, input RuleInput) (*domain.DistributionRule, error) {
	if _, err := s.loadQueue(ctx, queueID); err != nil {
		return nil, err
	}
	switch input.Type {
	case domain.DistributionRoundRobin, domain.DistributionLeastActive, domain.DistributionManual:
	default:
		return nil, apperrors.NewValidationError("unknown distribution type", map[string]any{"type": input.Type})
	}

	agents, err := s.agents.ListByQueue(ctx, queueID, true)
	if err != nil {
		return nil, apperrors.NewGatewayError(err)
	}
	sequence := make([]string, 0, len(agents))
	for _, agent := range agents {
		sequence = append(sequence, agent.ID)
	}

	rule := &domain.DistributionRule{
		QueueID:              queueID,
		Enabled:              input.Enabled,
		Type:                 input.Type,
		ConsiderCapacity:     input.ConsiderCapacity,
		ConsiderOnlineStatus: input.ConsiderOnlineStatus,
		AutoAssign:           input.AutoAssign,
		WorkingHoursOnly:     input.WorkingHoursOnly,
		AgentSequence:        sequence,
	}
	if existing, err := s.rules.GetByQueue(ctx, queueID); err == nil {
		rule.LastAssignedAgentID = existing.LastAssignedAgentID
	}

	if err := s.rules.Save(ctx, rule); err != nil {
		return nil, apperrors.NewGatewayError(err)
	}
	s.logger.Info("distribution rule saved",
		zap.String("queue_id", queueID),
		zap.String("type", string(rule.Type)),
		zap.Int("sequence_len", len(sequence)))
	return rule, nil
}

func (s *DistributionAdminService) loadQueue(ctx context.Context, queueID string) (*domain.Queue, error) {
	queue, err := s.queues.GetByID(ctx, queueID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("queue", map[string]any{"queue_id": queueID})
		}
		return nil, apperrors.NewGatewayError(err)
	}
	return queue, nil
}
