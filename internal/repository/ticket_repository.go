package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	QueueID     *string
	AgentID     *string
	Types       []domain.TicketType
	Statuses    []domain.TicketStatus
	Priorities  []domain.TicketPriority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// TicketRepository encapsulates ticket persistence. Update applies an
// optimistic version check and returns ErrStaleVersion when the row
// changed under the caller.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	ListBreachCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
	CountOpenByAgent(ctx context.Context, queueID string) (map[string]int, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, external_key, ticket_type, priority, status, queue_id, agent_id,
               requester_ref, subject, description,
               first_response_at, sla_first_response_deadline, sla_resolution_deadline,
               sla_first_response_met, sla_breached,
               collection_agreement_value, collection_installments, collection_payment_method,
               collection_agreement_date, collection_agreement_registered_by, collection_actions,
               resolved_at, closed_at, created_at, updated_at, version`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_key, ticket_type, priority, status, queue_id, agent_id,
            requester_ref, subject, description,
            sla_first_response_deadline, sla_resolution_deadline, collection_actions)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        RETURNING id, created_at, updated_at, version`
	actions := []domain.CollectionAction{}
	if ticket.Collection != nil {
		actions = ticket.Collection.Actions
	}
	return r.pool.QueryRow(ctx, query,
		ticket.ExternalKey,
		ticket.Type,
		ticket.Priority,
		ticket.Status,
		ticket.QueueID,
		ticket.AgentID,
		ticket.RequesterRef,
		ticket.Subject,
		ticket.Description,
		ticket.SLAFirstResponseDeadline,
		ticket.SLAResolutionDeadline,
		actions,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt, &ticket.Version)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET queue_id=$1, agent_id=$2, status=$3, priority=$4,
            first_response_at=$5, sla_first_response_met=$6, sla_breached=$7,
            collection_agreement_value=$8, collection_installments=$9,
            collection_payment_method=$10, collection_agreement_date=$11,
            collection_agreement_registered_by=$12, collection_actions=$13,
            resolved_at=$14, closed_at=$15, updated_at=NOW(), version=version+1
        WHERE id=$16 AND version=$17`
	collection := ticket.Collection
	if collection == nil {
		collection = &domain.CollectionDetails{}
	}
	actions := collection.Actions
	if actions == nil {
		actions = []domain.CollectionAction{}
	}
	cmd, err := r.pool.Exec(ctx, query,
		ticket.QueueID,
		ticket.AgentID,
		ticket.Status,
		ticket.Priority,
		ticket.FirstResponseAt,
		ticket.SLAFirstResponseMet,
		ticket.SLABreached,
		collection.AgreementValue,
		collection.AgreementInstallments,
		collection.AgreementPaymentMethod,
		collection.AgreementDate,
		collection.AgreementRegisteredBy,
		actions,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
		ticket.Version,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStaleVersion
	}
	ticket.Version++
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE external_key=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, key)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.QueueID != nil {
		args = append(args, *filter.QueueID)
		clauses = append(clauses, fmt.Sprintf("queue_id=$%d", len(args)))
	}
	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			args = append(args, t)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("ticket_type IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

// ListBreachCandidates returns open tickets whose resolution deadline
// has passed but whose breach flag is still unset.
func (r *ticketRepository) ListBreachCandidates(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE sla_breached=FALSE AND status NOT IN ('RESOLVED','CLOSED')
          AND sla_resolution_deadline < $1
        ORDER BY sla_resolution_deadline ASC
        LIMIT %d`, ticketColumns, limit)
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) CountOpenByAgent(ctx context.Context, queueID string) (map[string]int, error) {
	const query = `
        SELECT agent_id, COUNT(*) FROM tickets
        WHERE queue_id=$1 AND agent_id IS NOT NULL AND status NOT IN ('RESOLVED','CLOSED')
        GROUP BY agent_id`
	rows, err := r.pool.Query(ctx, query, queueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var agentID string
		var count int
		if err := rows.Scan(&agentID, &count); err != nil {
			return nil, err
		}
		counts[agentID] = count
	}
	return counts, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var collection domain.CollectionDetails
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.Type,
		&ticket.Priority,
		&ticket.Status,
		&ticket.QueueID,
		&ticket.AgentID,
		&ticket.RequesterRef,
		&ticket.Subject,
		&ticket.Description,
		&ticket.FirstResponseAt,
		&ticket.SLAFirstResponseDeadline,
		&ticket.SLAResolutionDeadline,
		&ticket.SLAFirstResponseMet,
		&ticket.SLABreached,
		&collection.AgreementValue,
		&collection.AgreementInstallments,
		&collection.AgreementPaymentMethod,
		&collection.AgreementDate,
		&collection.AgreementRegisteredBy,
		&collection.Actions,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	if ticket.Type == domain.TicketTypeCollection {
		ticket.Collection = &collection
	}
	return &ticket, nil
}
