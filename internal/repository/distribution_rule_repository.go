package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// DistributionRuleRepository manages per-queue assignment configuration.
// Only Save is exposed for writes; the fairness cursor itself is
// persisted exclusively through the AssignmentStore transaction.
type DistributionRuleRepository interface {
	GetByQueue(ctx context.Context, queueID string) (*domain.DistributionRule, error)
	Save(ctx context.Context, rule *domain.DistributionRule) error
}

type distributionRuleRepository struct {
	pool *pgxpool.Pool
}

// NewDistributionRuleRepository constructs repository.
func NewDistributionRuleRepository(pool *pgxpool.Pool) DistributionRuleRepository {
	return &distributionRuleRepository{pool: pool}
}

func (r *distributionRuleRepository) GetByQueue(ctx context.Context, queueID string) (*domain.DistributionRule, error) {
	const query = `
        SELECT id, queue_id, enabled, distribution_type, consider_capacity,
               consider_online_status, auto_assign, working_hours_only,
               agent_sequence::text[], last_assigned_agent_id, created_at, updated_at, version
        FROM distribution_rules
        WHERE queue_id=$1 AND enabled`
	var rule domain.DistributionRule
	if err := r.pool.QueryRow(ctx, query, queueID).Scan(
		&rule.ID,
		&rule.QueueID,
		&rule.Enabled,
		&rule.Type,
		&rule.ConsiderCapacity,
		&rule.ConsiderOnlineStatus,
		&rule.AutoAssign,
		&rule.WorkingHoursOnly,
		&rule.AgentSequence,
		&rule.LastAssignedAgentID,
		&rule.CreatedAt,
		&rule.UpdatedAt,
		&rule.Version,
	); err != nil {
		return nil, err
	}
	return &rule, nil
}

// Save upserts the rule for its queue, resetting the cursor when the
// saved sequence no longer contains it.
func (r *distributionRuleRepository) Save(ctx context.Context, rule *domain.DistributionRule) error {
	if rule.LastAssignedAgentID != nil && rule.SequenceIndex(*rule.LastAssignedAgentID) < 0 {
		rule.LastAssignedAgentID = nil
	}
	const query = `
        INSERT INTO distribution_rules
            (queue_id, enabled, distribution_type, consider_capacity, consider_online_status,
             auto_assign, working_hours_only, agent_sequence, last_assigned_agent_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8::uuid[],$9)
        ON CONFLICT (queue_id) WHERE enabled DO UPDATE SET
            enabled=EXCLUDED.enabled,
            distribution_type=EXCLUDED.distribution_type,
            consider_capacity=EXCLUDED.consider_capacity,
            consider_online_status=EXCLUDED.consider_online_status,
            auto_assign=EXCLUDED.auto_assign,
            working_hours_only=EXCLUDED.working_hours_only,
            agent_sequence=EXCLUDED.agent_sequence,
            last_assigned_agent_id=EXCLUDED.last_assigned_agent_id,
            updated_at=NOW(),
            version=distribution_rules.version+1
        RETURNING id, created_at, updated_at, version`
	return r.pool.QueryRow(ctx, query,
		rule.QueueID,
		rule.Enabled,
		rule.Type,
		rule.ConsiderCapacity,
		rule.ConsiderOnlineStatus,
		rule.AutoAssign,
		rule.WorkingHoursOnly,
		rule.AgentSequence,
		rule.LastAssignedAgentID,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt, &rule.Version)
}
