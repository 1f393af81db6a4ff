package domain

import "time"

// MessageAuthorType indicates who authored a timeline entry.
type MessageAuthorType string

const (
	AuthorTypeCustomer MessageAuthorType = "CUSTOMER"
	AuthorTypeAgent    MessageAuthorType = "AGENT"
	AuthorTypeSystem   MessageAuthorType = "SYSTEM"
)

// TicketMessageType differentiates replies, notes and system entries.
type TicketMessageType string

const (
	MessageTypePublicReply  TicketMessageType = "PUBLIC_REPLY"
	MessageTypeInternalNote TicketMessageType = "INTERNAL_NOTE"
	MessageTypeSystemEvent  TicketMessageType = "SYSTEM_EVENT"
)

// TicketMessage captures one entry in a ticket's timeline. The first
// public reply by an agent doubles as the SLA first response.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorType  MessageAuthorType
	AuthorID    *string
	MessageType TicketMessageType
	Body        string
	CreatedAt   time.Time
}
