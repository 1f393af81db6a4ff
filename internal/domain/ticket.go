package domain

import "time"

// TicketType distinguishes the business flavor of a ticket.
type TicketType string

const (
	TicketTypeSupport    TicketType = "SUPPORT"
	TicketTypeSales      TicketType = "SALES"
	TicketTypeCollection TicketType = "COLLECTION"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew               TicketStatus = "NEW"
	TicketStatusAssigned          TicketStatus = "ASSIGNED"
	TicketStatusInProgress        TicketStatus = "IN_PROGRESS"
	TicketStatusWaitingCustomer   TicketStatus = "WAITING_CUSTOMER"
	TicketStatusWaitingThirdParty TicketStatus = "WAITING_THIRD_PARTY"
	TicketStatusResolved          TicketStatus = "RESOLVED"
	TicketStatusClosed            TicketStatus = "CLOSED"
)

// IsTerminal reports whether no further transitions are possible.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusClosed
}

// IsOpen reports whether the ticket still counts against agent load.
func (s TicketStatus) IsOpen() bool {
	return s != TicketStatusResolved && s != TicketStatusClosed
}

// TicketPriority enumerates SLA urgency, P1 being the most urgent.
type TicketPriority string

const (
	TicketPriorityP1 TicketPriority = "P1"
	TicketPriorityP2 TicketPriority = "P2"
	TicketPriorityP3 TicketPriority = "P3"
	TicketPriorityP4 TicketPriority = "P4"
)

// Priorities lists all priorities from most to least urgent.
func Priorities() []TicketPriority {
	return []TicketPriority{TicketPriorityP1, TicketPriorityP2, TicketPriorityP3, TicketPriorityP4}
}

// Ticket is the aggregate for one unit of work: a support case, a sales
// lead or a collection case. Collection is non-nil only for collection
// tickets.
type Ticket struct {
	ID           string
	ExternalKey  string
	Type         TicketType
	Priority     TicketPriority
	Status       TicketStatus
	QueueID      string
	AgentID      *string
	RequesterRef string
	Subject      string
	Description  string

	FirstResponseAt          *time.Time
	SLAFirstResponseDeadline time.Time
	SLAResolutionDeadline    time.Time
	SLAFirstResponseMet      bool
	SLABreached              bool

	Collection *CollectionDetails

	ResolvedAt *time.Time
	ClosedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Version guards optimistic concurrency on updates.
	Version int64
}

// HasAgreement reports whether a payment agreement has been registered.
func (t *Ticket) HasAgreement() bool {
	return t.Collection != nil && t.Collection.AgreementDate != nil
}
