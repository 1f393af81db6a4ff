package domain

import "time"

// AgentRole enumerates operator roles.
type AgentRole string

const (
	AgentRoleAgent      AgentRole = "AGENT"
	AgentRoleSupervisor AgentRole = "SUPERVISOR"
)

// Agent models a work-unit performer. MaxOpenTickets of zero means
// unlimited capacity.
type Agent struct {
	ID             string
	Name           string
	Email          string
	Role           AgentRole
	Active         bool
	Online         bool
	MaxOpenTickets int
	QueueIDs       []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ServesQueue reports whether the agent is configured for the queue.
func (a *Agent) ServesQueue(queueID string) bool {
	for _, id := range a.QueueIDs {
		if id == queueID {
			return true
		}
	}
	return false
}
