// Package distribution selects assignees for tickets under a queue's
// configured strategy. Selection is pure; persistence of the cursor and
// the assignment happens in one transaction at the caller.
package distribution

import (
	"sort"

	"github.com/spec-kit/crm-engine/internal/domain"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// FilterEligible narrows the queue's agents to those the rule allows:
// active agents serving the queue, online when the rule demands it, and
// under their open-ticket cap when capacity is considered.
func FilterEligible(rule *domain.DistributionRule, agents []domain.Agent, openCounts map[string]int) []domain.Agent {
	eligible := make([]domain.Agent, 0, len(agents))
	for _, agent := range agents {
		if !agent.Active || !agent.ServesQueue(rule.QueueID) {
			continue
		}
		if rule.ConsiderOnlineStatus && !agent.Online {
			continue
		}
		if rule.ConsiderCapacity && agent.MaxOpenTickets > 0 && openCounts[agent.ID] >= agent.MaxOpenTickets {
			continue
		}
		eligible = append(eligible, agent)
	}
	return eligible
}

// SelectAssignee picks the next agent under the rule's strategy and
// returns the rule with its fairness cursor advanced. The input rule is
// not mutated. openCounts maps agent id to currently open tickets in the
// queue and drives the least-active strategy.
func SelectAssignee(rule domain.DistributionRule, eligible []domain.Agent, openCounts map[string]int) (string, domain.DistributionRule, error) {
	switch rule.Type {
	case domain.DistributionManual:
		return "", rule, apperrors.NewManualAssignmentRequired(rule.QueueID)
	case domain.DistributionRoundRobin:
		return selectRoundRobin(rule, eligible)
	case domain.DistributionLeastActive:
		return selectLeastActive(rule, eligible, openCounts)
	default:
		return "", rule, apperrors.NewValidationError("unknown distribution type", map[string]any{
			"distribution_type": string(rule.Type),
		})
	}
}

// selectRoundRobin walks the configured sequence cyclically starting
// just after the cursor, taking the first eligible entry. Walking the
// full sequence rather than only eligible agents keeps turns fair for
// agents who are temporarily offline.
func selectRoundRobin(rule domain.DistributionRule, eligible []domain.Agent) (string, domain.DistributionRule, error) {
	if len(eligible) == 0 || len(rule.AgentSequence) == 0 {
		return "", rule, apperrors.NewNoEligibleAgent(rule.QueueID)
	}

	eligibleSet := make(map[string]struct{}, len(eligible))
	for _, agent := range eligible {
		eligibleSet[agent.ID] = struct{}{}
	}

	// A missing or unknown cursor resets the walk to the head of the
	// sequence.
	start := 0
	if rule.LastAssignedAgentID != nil {
		if idx := rule.SequenceIndex(*rule.LastAssignedAgentID); idx >= 0 {
			start = (idx + 1) % len(rule.AgentSequence)
		}
	}

	for offset := 0; offset < len(rule.AgentSequence); offset++ {
		candidate := rule.AgentSequence[(start+offset)%len(rule.AgentSequence)]
		if _, ok := eligibleSet[candidate]; !ok {
			continue
		}
		selected := candidate
		rule.LastAssignedAgentID = &selected
		return selected, rule, nil
	}
	return "", rule, apperrors.NewNoEligibleAgent(rule.QueueID)
}

// selectLeastActive picks the eligible agent with the fewest open
// tickets, breaking ties by agent id for determinism. The cursor is not
// touched by this strategy.
func selectLeastActive(rule domain.DistributionRule, eligible []domain.Agent, openCounts map[string]int) (string, domain.DistributionRule, error) {
	if len(eligible) == 0 {
		return "", rule, apperrors.NewNoEligibleAgent(rule.QueueID)
	}

	candidates := make([]domain.Agent, len(eligible))
	copy(candidates, eligible)
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := openCounts[candidates[i].ID], openCounts[candidates[j].ID]
		if ci != cj {
			return ci < cj
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0].ID, rule, nil
}
