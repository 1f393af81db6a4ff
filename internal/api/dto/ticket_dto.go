package dto

import (
	"time"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	QueueID      string                `json:"queue_id"`
	Type         domain.TicketType     `json:"type"`
	Priority     domain.TicketPriority `json:"priority"`
	RequesterRef string                `json:"requester_ref"`
	Subject      string                `json:"subject"`
	Description  string                `json:"description"`
}

// AdvanceStatusRequest payload.
type AdvanceStatusRequest struct {
	Event   domain.StatusEvent `json:"event"`
	Comment string             `json:"comment,omitempty"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Body        string                    `json:"body"`
	MessageType *domain.TicketMessageType `json:"message_type,omitempty"`
}

// TicketSummary response.
type TicketSummary struct {
	ID          string                `json:"id"`
	ExternalKey string                `json:"external_key"`
	Type        domain.TicketType     `json:"type"`
	Priority    domain.TicketPriority `json:"priority"`
	Status      domain.TicketStatus   `json:"status"`
	QueueID     string                `json:"queue_id"`
	AgentID     *string               `json:"agent_id"`
	Subject     string                `json:"subject"`
	SLABreached bool                  `json:"sla_breached"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	ID           string                     `json:"id"`
	ExternalKey  string                     `json:"external_key"`
	Type         domain.TicketType          `json:"type"`
	Priority     domain.TicketPriority      `json:"priority"`
	Status       domain.TicketStatus        `json:"status"`
	QueueID      string                     `json:"queue_id"`
	AgentID      *string                    `json:"agent_id"`
	RequesterRef string                     `json:"requester_ref"`
	Subject      string                     `json:"subject"`
	Description  string                     `json:"description"`
	SLA          SLAStatusResponse          `json:"sla"`
	Collection   *CollectionDetailsResponse `json:"collection,omitempty"`
	ResolvedAt   *time.Time                 `json:"resolved_at"`
	ClosedAt     *time.Time                 `json:"closed_at"`
	CreatedAt    time.Time                  `json:"created_at"`
	UpdatedAt    time.Time                  `json:"updated_at"`
	Messages     []TicketMessageResponse    `json:"messages"`
}

// SLAStatusResponse reports deadline state for one ticket.
type SLAStatusResponse struct {
	Risk                  string     `json:"risk"`
	FirstResponseDeadline time.Time  `json:"first_response_deadline"`
	ResolutionDeadline    time.Time  `json:"resolution_deadline"`
	FirstResponseAt       *time.Time `json:"first_response_at"`
	FirstResponseMet      bool       `json:"first_response_met"`
	Breached              bool       `json:"breached"`
}

// TicketMessageResponse represents one timeline entry.
type TicketMessageResponse struct {
	ID          string                   `json:"id"`
	MessageType domain.TicketMessageType `json:"message_type"`
	AuthorType  domain.MessageAuthorType `json:"author_type"`
	AuthorID    *string                  `json:"author_id"`
	Body        string                   `json:"body"`
	CreatedAt   time.Time                `json:"created_at"`
}

// AssignmentResponse reports the outcome of an assignment.
type AssignmentResponse struct {
	TicketID string `json:"ticket_id"`
	AgentID  string `json:"agent_id"`
}
