package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// AssignmentStore commits a distribution decision: the ticket's new
// assignee/status and the rule's advanced cursor land in one
// transaction, so a crash can neither duplicate nor skip an assignee.
type AssignmentStore interface {
	CommitAssignment(ctx context.Context, ticket *domain.Ticket, rule *domain.DistributionRule) error
}

type assignmentStore struct {
	pool *pgxpool.Pool
}

// NewAssignmentStore constructs the store.
func NewAssignmentStore(pool *pgxpool.Pool) AssignmentStore {
	return &assignmentStore{pool: pool}
}

func (s *assignmentStore) CommitAssignment(ctx context.Context, ticket *domain.Ticket, rule *domain.DistributionRule) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const ruleQuery = `
        UPDATE distribution_rules SET last_assigned_agent_id=$1, updated_at=NOW(), version=version+1
        WHERE id=$2 AND version=$3`
	cmd, err := tx.Exec(ctx, ruleQuery, rule.LastAssignedAgentID, rule.ID, rule.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleVersion
	}

	const ticketQuery = `
        UPDATE tickets SET agent_id=$1, status=$2, updated_at=NOW(), version=version+1
        WHERE id=$3 AND version=$4`
	cmd, err = tx.Exec(ctx, ticketQuery, ticket.AgentID, ticket.Status, ticket.ID, ticket.Version)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleVersion
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	rule.Version++
	ticket.Version++
	return nil
}
