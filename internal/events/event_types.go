package events

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated          EventType = "ticket_created"
	EventTicketAssigned         EventType = "ticket_assigned"
	EventTicketStatusChanged    EventType = "ticket_status_changed"
	EventFirstResponseRecorded  EventType = "first_response_recorded"
	EventSLABreachDetected      EventType = "sla_breach_detected"
	EventCollectionAction       EventType = "collection_action_registered"
	EventAgreementRegistered    EventType = "agreement_registered"
	EventAgreementEffectivated  EventType = "agreement_effectivated"
	EventTicketMessageAdded     EventType = "ticket_message_added"
)

// Actor encapsulates actor metadata for an event. System events carry a
// nil agent id.
type Actor struct {
	Type    domain.MessageAuthorType `json:"type"`
	AgentID *string                  `json:"agent_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	QueueID  string                `json:"queue_id"`
	Type     domain.TicketType     `json:"ticket_type"`
	Priority domain.TicketPriority `json:"priority"`
	Subject  string                `json:"subject"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AgentID  string                  `json:"agent_id"`
	QueueID  string                  `json:"queue_id"`
	Strategy domain.DistributionType `json:"strategy"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Event     domain.StatusEvent  `json:"event"`
	Comment   string              `json:"comment,omitempty"`
}

// FirstResponseRecordedPayload payload.
type FirstResponseRecordedPayload struct {
	RespondedAt time.Time `json:"responded_at"`
	Deadline    time.Time `json:"deadline"`
	Met         bool      `json:"met"`
}

// SLABreachDetectedPayload payload.
type SLABreachDetectedPayload struct {
	Deadline   time.Time `json:"deadline"`
	DetectedAt time.Time `json:"detected_at"`
}

// CollectionActionPayload payload.
type CollectionActionPayload struct {
	ActionType domain.CollectionActionType   `json:"action_type"`
	Result     domain.CollectionActionResult `json:"result,omitempty"`
}

// AgreementRegisteredPayload payload.
type AgreementRegisteredPayload struct {
	Value         decimal.Decimal `json:"value"`
	Installments  int             `json:"installments"`
	PaymentMethod string          `json:"payment_method"`
	TargetQueueID string          `json:"target_queue_id"`
}

// AgreementEffectivatedPayload payload.
type AgreementEffectivatedPayload struct {
	EffectivatedAt time.Time `json:"effectivated_at"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string                   `json:"message_id"`
	MessageType domain.TicketMessageType `json:"message_type"`
	AuthorType  domain.MessageAuthorType `json:"author_type"`
}
