package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// SLAPolicyRepository looks up time budgets by priority.
type SLAPolicyRepository interface {
	GetByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error)
}

type slaPolicyRepository struct {
	pool *pgxpool.Pool
}

// NewSLAPolicyRepository constructs repository.
func NewSLAPolicyRepository(pool *pgxpool.Pool) SLAPolicyRepository {
	return &slaPolicyRepository{pool: pool}
}

func (r *slaPolicyRepository) GetByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, priority, first_response_minutes, resolution_minutes, created_at, updated_at
        FROM sla_policies WHERE priority=$1`
	var policy domain.SLAPolicy
	var firstResponseMinutes, resolutionMinutes int
	if err := r.pool.QueryRow(ctx, query, priority).Scan(
		&policy.ID,
		&policy.Priority,
		&firstResponseMinutes,
		&resolutionMinutes,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	policy.FirstResponse = time.Duration(firstResponseMinutes) * time.Minute
	policy.Resolution = time.Duration(resolutionMinutes) * time.Minute
	return &policy, nil
}

type cachedPolicy struct {
	ID            string                `json:"id"`
	Priority      domain.TicketPriority `json:"priority"`
	FirstResponse time.Duration         `json:"first_response"`
	Resolution    time.Duration         `json:"resolution"`
}

// cachedSLAPolicyRepository layers a redis read-through cache over the
// database lookup. Policies change rarely and are read on every ticket
// creation. Cache failures degrade to the inner repository.
type cachedSLAPolicyRepository struct {
	inner  SLAPolicyRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSLAPolicyRepository wraps inner with a redis cache. A nil
// client returns inner unchanged.
func NewCachedSLAPolicyRepository(inner SLAPolicyRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) SLAPolicyRepository {
	if client == nil {
		return inner
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cachedSLAPolicyRepository{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (r *cachedSLAPolicyRepository) GetByPriority(ctx context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	key := "sla_policy:" + string(priority)

	if raw, err := r.client.Get(ctx, key).Bytes(); err == nil {
		var cached cachedPolicy
		if err := json.Unmarshal(raw, &cached); err == nil {
			return &domain.SLAPolicy{
				ID:            cached.ID,
				Priority:      cached.Priority,
				FirstResponse: cached.FirstResponse,
				Resolution:    cached.Resolution,
			}, nil
		}
	} else if err != redis.Nil {
		r.logger.Warn("sla policy cache read failed", zap.Error(err))
	}

	policy, err := r.inner.GetByPriority(ctx, priority)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(cachedPolicy{
		ID:            policy.ID,
		Priority:      policy.Priority,
		FirstResponse: policy.FirstResponse,
		Resolution:    policy.Resolution,
	})
	if err == nil {
		if err := r.client.Set(ctx, key, raw, r.ttl).Err(); err != nil {
			r.logger.Warn("sla policy cache write failed", zap.Error(err))
		}
	}
	return policy, nil
}
