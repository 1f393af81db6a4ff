package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// QueueRepository manages persistence for queues.
type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	GetByID(ctx context.Context, id string) (*domain.Queue, error)
	List(ctx context.Context, activeOnly bool) ([]domain.Queue, error)
}

type queueRepository struct {
	pool *pgxpool.Pool
}

// NewQueueRepository constructs repository.
func NewQueueRepository(pool *pgxpool.Pool) QueueRepository {
	return &queueRepository{pool: pool}
}

func (r *queueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	const query = `
        INSERT INTO queues (name, role, active)
        VALUES ($1,$2,$3)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		queue.Name,
		queue.Role,
		queue.Active,
	).Scan(&queue.ID, &queue.CreatedAt, &queue.UpdatedAt)
}

func (r *queueRepository) GetByID(ctx context.Context, id string) (*domain.Queue, error) {
	const query = `
        SELECT id, name, role, active, created_at, updated_at
        FROM queues WHERE id=$1`
	var queue domain.Queue
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&queue.ID,
		&queue.Name,
		&queue.Role,
		&queue.Active,
		&queue.CreatedAt,
		&queue.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (r *queueRepository) List(ctx context.Context, activeOnly bool) ([]domain.Queue, error) {
	query := `SELECT id, name, role, active, created_at, updated_at FROM queues`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanQueues(rows)
}

func scanQueues(rows pgx.Rows) ([]domain.Queue, error) {
	var result []domain.Queue
	for rows.Next() {
		var queue domain.Queue
		if err := rows.Scan(
			&queue.ID,
			&queue.Name,
			&queue.Role,
			&queue.Active,
			&queue.CreatedAt,
			&queue.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, queue)
	}
	return result, rows.Err()
}
