package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// AgentRepository manages persistence for agents.
type AgentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Agent, error)
	ListByQueue(ctx context.Context, queueID string, activeOnly bool) ([]domain.Agent, error)
}

type agentRepository struct {
	pool *pgxpool.Pool
}

// NewAgentRepository constructs repository.
func NewAgentRepository(pool *pgxpool.Pool) AgentRepository {
	return &agentRepository{pool: pool}
}

func (r *agentRepository) GetByID(ctx context.Context, id string) (*domain.Agent, error) {
	const query = `
        SELECT a.id, a.name, a.email, a.role, a.active, a.online, a.max_open_tickets,
               COALESCE(ARRAY_AGG(aq.queue_id::text) FILTER (WHERE aq.queue_id IS NOT NULL), '{}'),
               a.created_at, a.updated_at
        FROM agents a
        LEFT JOIN agent_queues aq ON aq.agent_id = a.id
        WHERE a.id = $1
        GROUP BY a.id`
	var agent domain.Agent
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&agent.ID,
		&agent.Name,
		&agent.Email,
		&agent.Role,
		&agent.Active,
		&agent.Online,
		&agent.MaxOpenTickets,
		&agent.QueueIDs,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &agent, nil
}

func (r *agentRepository) ListByQueue(ctx context.Context, queueID string, activeOnly bool) ([]domain.Agent, error) {
	query := `
        SELECT a.id, a.name, a.email, a.role, a.active, a.online, a.max_open_tickets,
               COALESCE(ARRAY_AGG(aq2.queue_id::text) FILTER (WHERE aq2.queue_id IS NOT NULL), '{}'),
               a.created_at, a.updated_at
        FROM agents a
        JOIN agent_queues aq ON aq.agent_id = a.id AND aq.queue_id = $1
        LEFT JOIN agent_queues aq2 ON aq2.agent_id = a.id`
	if activeOnly {
		query += `
        WHERE a.active`
	}
	query += `
        GROUP BY a.id
        ORDER BY a.created_at`

	rows, err := r.pool.Query(ctx, query, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAgents(rows)
}

func scanAgents(rows pgx.Rows) ([]domain.Agent, error) {
	var result []domain.Agent
	for rows.Next() {
		var agent domain.Agent
		if err := rows.Scan(
			&agent.ID,
			&agent.Name,
			&agent.Email,
			&agent.Role,
			&agent.Active,
			&agent.Online,
			&agent.MaxOpenTickets,
			&agent.QueueIDs,
			&agent.CreatedAt,
			&agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, agent)
	}
	return result, rows.Err()
}
