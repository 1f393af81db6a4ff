package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeStatus        TicketChangeType = "STATUS_CHANGE"
	ChangeTypeAssignee      TicketChangeType = "ASSIGNEE_CHANGE"
	ChangeTypeQueue         TicketChangeType = "QUEUE_CHANGE"
	ChangeTypeAgreement     TicketChangeType = "AGREEMENT_REGISTERED"
	ChangeTypeEffectivation TicketChangeType = "AGREEMENT_EFFECTIVATED"
	ChangeTypeAction        TicketChangeType = "COLLECTION_ACTION"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType MessageAuthorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
