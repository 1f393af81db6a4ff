package domain

import "time"

// QueueRole marks queues that play a fixed part in the collection
// workflow. Most queues carry no role.
type QueueRole string

const (
	QueueRoleNone          QueueRole = "NONE"
	QueueRoleContact       QueueRole = "CONTACT"
	QueueRoleEffectivation QueueRole = "EFFECTIVATION"
)

// Queue is a named bucket of tickets awaiting work by eligible agents.
type Queue struct {
	ID        string
	Name      string
	Role      QueueRole
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
