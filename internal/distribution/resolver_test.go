package distribution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-engine/internal/domain"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

func queueAgent(id string, online bool, maxOpen int) domain.Agent {
	return domain.Agent{
		ID:             id,
		Name:           "agent " + id,
		Role:           domain.AgentRoleAgent,
		Active:         true,
		Online:         online,
		MaxOpenTickets: maxOpen,
		QueueIDs:       []string{"q1"},
	}
}

func roundRobinRule(sequence ...string) domain.DistributionRule {
	return domain.DistributionRule{
		ID:            "rule-1",
		QueueID:       "q1",
		Enabled:       true,
		Type:          domain.DistributionRoundRobin,
		AgentSequence: sequence,
	}
}

func TestFilterEligibleSkipsInactiveAndForeignAgents(t *testing.T) {
	rule := roundRobinRule("a", "b", "c")
	inactive := queueAgent("a", true, 0)
	inactive.Active = false
	foreign := queueAgent("b", true, 0)
	foreign.QueueIDs = []string{"q2"}
	ok := queueAgent("c", true, 0)

	eligible := FilterEligible(&rule, []domain.Agent{inactive, foreign, ok}, nil)
	require.Len(t, eligible, 1)
	assert.Equal(t, "c", eligible[0].ID)
}

func TestFilterEligibleOnlineAndCapacity(t *testing.T) {
	rule := roundRobinRule("a", "b", "c")
	rule.ConsiderOnlineStatus = true
	rule.ConsiderCapacity = true

	offline := queueAgent("a", false, 0)
	atCap := queueAgent("b", true, 2)
	unlimited := queueAgent("c", true, 0)

	eligible := FilterEligible(&rule, []domain.Agent{offline, atCap, unlimited}, map[string]int{"b": 2, "c": 50})
	require.Len(t, eligible, 1)
	assert.Equal(t, "c", eligible[0].ID)
}

func TestRoundRobinCyclesThroughSequence(t *testing.T) {
	rule := roundRobinRule("a", "b", "c")
	agents := []domain.Agent{queueAgent("a", true, 0), queueAgent("b", true, 0), queueAgent("c", true, 0)}

	var got []string
	for i := 0; i < 4; i++ {
		id, updated, err := SelectAssignee(rule, agents, nil)
		require.NoError(t, err)
		got = append(got, id)
		rule = updated
	}
	assert.Equal(t, []string{"a", "b", "c", "a"}, got)
}

func TestRoundRobinFairnessOverManyAssignments(t *testing.T) {
	rule := roundRobinRule("a", "b", "c")
	agents := []domain.Agent{queueAgent("a", true, 0), queueAgent("b", true, 0), queueAgent("c", true, 0)}

	counts := map[string]int{}
	const n = 100
	for i := 0; i < n; i++ {
		id, updated, err := SelectAssignee(rule, agents, nil)
		require.NoError(t, err)
		counts[id]++
		rule = updated
	}
	// 100 assignments over 3 agents: every agent gets 33 or 34.
	for id, count := range counts {
		assert.GreaterOrEqual(t, count, n/3, "agent %s under-assigned", id)
		assert.LessOrEqual(t, count, n/3+1, "agent %s over-assigned", id)
	}
}

func TestRoundRobinSkipsIneligibleWithoutLosingTheirTurn(t *testing.T) {
	rule := roundRobinRule("a", "b", "c")
	rule.ConsiderOnlineStatus = true
	online := []domain.Agent{queueAgent("a", true, 0), queueAgent("c", true, 0)}

	// b offline: a, c, a, ...
	id, updated, err := SelectAssignee(rule, FilterEligible(&rule, append(online, queueAgent("b", false, 0)), nil), nil)
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	id, updated, err = SelectAssignee(updated, online, nil)
	require.NoError(t, err)
	assert.Equal(t, "c", id)

	// b comes back online; the walk resumes after c and reaches a first,
	// then b takes its regular slot next cycle.
	all := []domain.Agent{queueAgent("a", true, 0), queueAgent("b", true, 0), queueAgent("c", true, 0)}
	id, updated, err = SelectAssignee(updated, all, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", id)

	id, _, err = SelectAssignee(updated, all, nil)
	require.NoError(t, err)
	assert.Equal(t, "b", id)
}

func TestRoundRobinResetsUnknownCursor(t *testing.T) {
	rule := roundRobinRule("a", "b")
	gone := "removed-agent"
	rule.LastAssignedAgentID = &gone

	id, updated, err := SelectAssignee(rule, []domain.Agent{queueAgent("a", true, 0), queueAgent("b", true, 0)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "a", id)
	require.NotNil(t, updated.LastAssignedAgentID)
	assert.Equal(t, "a", *updated.LastAssignedAgentID)
}

func TestRoundRobinNoEligibleAgent(t *testing.T) {
	rule := roundRobinRule("a", "b")
	_, updated, err := SelectAssignee(rule, nil, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNoEligibleAgent))
	assert.Nil(t, updated.LastAssignedAgentID)
}

func TestLeastActivePicksLowestLoad(t *testing.T) {
	rule := roundRobinRule("a", "b", "c")
	rule.Type = domain.DistributionLeastActive
	agents := []domain.Agent{queueAgent("a", true, 0), queueAgent("b", true, 0), queueAgent("c", true, 0)}

	id, updated, err := SelectAssignee(rule, agents, map[string]int{"a": 3, "b": 1, "c": 2})
	require.NoError(t, err)
	assert.Equal(t, "b", id)
	assert.Nil(t, updated.LastAssignedAgentID)
}

func TestLeastActiveTieBreaksByAgentID(t *testing.T) {
	rule := roundRobinRule("b", "a")
	rule.Type = domain.DistributionLeastActive
	agents := []domain.Agent{queueAgent("b", true, 0), queueAgent("a", true, 0)}

	id, _, err := SelectAssignee(rule, agents, map[string]int{"a": 2, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "a", id)
}

func TestManualAlwaysErrorsWithoutMutation(t *testing.T) {
	rule := roundRobinRule("a")
	rule.Type = domain.DistributionManual
	cursor := "a"
	rule.LastAssignedAgentID = &cursor

	id, updated, err := SelectAssignee(rule, []domain.Agent{queueAgent("a", true, 0)}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeManualAssignmentRequired))
	assert.Empty(t, id)
	require.NotNil(t, updated.LastAssignedAgentID)
	assert.Equal(t, "a", *updated.LastAssignedAgentID)
}
