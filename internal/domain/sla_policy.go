package domain

import "time"

// SLAPolicy maps a priority to its first-response and resolution time
// budgets. Read-only from the engine's perspective.
type SLAPolicy struct {
	ID            string
	Priority      TicketPriority
	FirstResponse time.Duration
	Resolution    time.Duration
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
