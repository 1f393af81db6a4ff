package dto

import (
	"time"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// SaveDistributionRuleRequest payload. AgentSequence is recomputed
// server-side from the active agents serving the queue.
type SaveDistributionRuleRequest struct {
	Enabled              bool                    `json:"enabled"`
	Type                 domain.DistributionType `json:"type"`
	ConsiderCapacity     bool                    `json:"consider_capacity"`
	ConsiderOnlineStatus bool                    `json:"consider_online_status"`
	AutoAssign           bool                    `json:"auto_assign"`
	WorkingHoursOnly     bool                    `json:"working_hours_only"`
}

// DistributionRuleResponse response.
type DistributionRuleResponse struct {
	ID                   string                  `json:"id"`
	QueueID              string                  `json:"queue_id"`
	Enabled              bool                    `json:"enabled"`
	Type                 domain.DistributionType `json:"type"`
	ConsiderCapacity     bool                    `json:"consider_capacity"`
	ConsiderOnlineStatus bool                    `json:"consider_online_status"`
	AutoAssign           bool                    `json:"auto_assign"`
	WorkingHoursOnly     bool                    `json:"working_hours_only"`
	AgentSequence        []string                `json:"agent_sequence"`
	LastAssignedAgentID  *string                 `json:"last_assigned_agent_id"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

// QueueResponse response.
type QueueResponse struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Role      domain.QueueRole `json:"role"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`
}
