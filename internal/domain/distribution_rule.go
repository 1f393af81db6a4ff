package domain

import "time"

// DistributionType enumerates assignment strategies for a queue.
type DistributionType string

const (
	DistributionRoundRobin  DistributionType = "ROUND_ROBIN"
	DistributionLeastActive DistributionType = "LEAST_ACTIVE"
	DistributionManual      DistributionType = "MANUAL"
)

// DistributionRule is the per-queue assignment configuration. At most one
// enabled rule exists per queue. LastAssignedAgentID is the round-robin
// fairness cursor; it is mutated only through the distribution resolver.
type DistributionRule struct {
	ID                   string
	QueueID              string
	Enabled              bool
	Type                 DistributionType
	ConsiderCapacity     bool
	ConsiderOnlineStatus bool
	AutoAssign           bool
	WorkingHoursOnly     bool
	AgentSequence        []string
	LastAssignedAgentID  *string
	CreatedAt            time.Time
	UpdatedAt            time.Time

	// Version guards the cursor against concurrent advances.
	Version int64
}

// SequenceIndex returns the position of agentID in the configured
// sequence, or -1 when absent.
func (r *DistributionRule) SequenceIndex(agentID string) int {
	for i, id := range r.AgentSequence {
		if id == agentID {
			return i
		}
	}
	return -1
}
