package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/crm-engine/internal/domain"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func openTicket(priority domain.TicketPriority, resolutionDeadline time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:                       "t1",
		Type:                     domain.TicketTypeSupport,
		Priority:                 priority,
		Status:                   domain.TicketStatusInProgress,
		SLAFirstResponseDeadline: baseTime.Add(time.Hour),
		SLAResolutionDeadline:    resolutionDeadline,
		CreatedAt:                baseTime,
	}
}

func TestComputeDeadlinesFromPolicy(t *testing.T) {
	calc := NewCalculator(Config{})
	policy := &domain.SLAPolicy{
		Priority:      domain.TicketPriorityP2,
		FirstResponse: 2 * time.Hour,
		Resolution:    6 * time.Hour,
	}

	first, resolution, err := calc.ComputeDeadlines(domain.TicketPriorityP2, baseTime, policy)
	require.NoError(t, err)
	assert.Equal(t, baseTime.Add(2*time.Hour), first)
	assert.Equal(t, baseTime.Add(6*time.Hour), resolution)
}

func TestComputeDeadlinesRejectsMissingOrMismatchedPolicy(t *testing.T) {
	calc := NewCalculator(Config{})

	_, _, err := calc.ComputeDeadlines(domain.TicketPriorityP1, baseTime, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePolicyNotFound))

	wrong := &domain.SLAPolicy{Priority: domain.TicketPriorityP3, FirstResponse: time.Hour, Resolution: 2 * time.Hour}
	_, _, err = calc.ComputeDeadlines(domain.TicketPriorityP1, baseTime, wrong)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodePolicyNotFound))
}

func TestFallbackDeadlinesPerPriority(t *testing.T) {
	calc := NewCalculator(Config{})

	first, resolution := calc.FallbackDeadlines(domain.TicketPriorityP1, baseTime)
	assert.Equal(t, baseTime.Add(time.Hour), first)
	assert.Equal(t, baseTime.Add(4*time.Hour), resolution)

	first, resolution = calc.FallbackDeadlines(domain.TicketPriorityP4, baseTime)
	assert.Equal(t, baseTime.Add(24*time.Hour), first)
	assert.Equal(t, baseTime.Add(72*time.Hour), resolution)
}

func TestFallbackDeadlinesUnknownPriorityUsesMostLenient(t *testing.T) {
	calc := NewCalculator(Config{})
	first, resolution := calc.FallbackDeadlines(domain.TicketPriority("P9"), baseTime)
	assert.Equal(t, baseTime.Add(24*time.Hour), first)
	assert.Equal(t, baseTime.Add(72*time.Hour), resolution)
}

func TestFallbackBudgetOverrides(t *testing.T) {
	calc := NewCalculator(Config{
		FallbackBudgets: map[domain.TicketPriority]Budget{
			domain.TicketPriorityP1: {FirstResponse: 30 * time.Minute, Resolution: 2 * time.Hour},
		},
	})
	first, resolution := calc.FallbackDeadlines(domain.TicketPriorityP1, baseTime)
	assert.Equal(t, baseTime.Add(30*time.Minute), first)
	assert.Equal(t, baseTime.Add(2*time.Hour), resolution)

	// Other priorities keep the documented defaults.
	first, _ = calc.FallbackDeadlines(domain.TicketPriorityP2, baseTime)
	assert.Equal(t, baseTime.Add(4*time.Hour), first)
}

func TestClassifyRiskBands(t *testing.T) {
	calc := NewCalculator(Config{AtRiskWindow: 4 * time.Hour})
	ticket := openTicket(domain.TicketPriorityP3, baseTime.Add(24*time.Hour))

	assert.Equal(t, RiskOnTrack, calc.ClassifyRisk(ticket, baseTime))
	assert.Equal(t, RiskOnTrack, calc.ClassifyRisk(ticket, baseTime.Add(20*time.Hour)))
	assert.Equal(t, RiskAtRisk, calc.ClassifyRisk(ticket, baseTime.Add(21*time.Hour)))
	assert.Equal(t, RiskBreached, calc.ClassifyRisk(ticket, baseTime.Add(25*time.Hour)))
}

func TestClassifyRiskShortBudgetIsAtRiskImmediately(t *testing.T) {
	// A P1 with a 4h budget sits inside the 4h window from the start.
	calc := NewCalculator(Config{AtRiskWindow: 4 * time.Hour})
	ticket := openTicket(domain.TicketPriorityP1, baseTime.Add(4*time.Hour))

	assert.Equal(t, RiskAtRisk, calc.ClassifyRisk(ticket, baseTime.Add(time.Second)))
}

func TestClassifyRiskStickyBreachFlag(t *testing.T) {
	calc := NewCalculator(Config{})
	ticket := openTicket(domain.TicketPriorityP2, baseTime.Add(8*time.Hour))
	ticket.SLABreached = true

	// Flag wins even when the deadline was pushed out afterwards.
	ticket.SLAResolutionDeadline = baseTime.Add(100 * time.Hour)
	assert.Equal(t, RiskBreached, calc.ClassifyRisk(ticket, baseTime))
}

func TestClassifyRiskResolvedAndClosedNeverFlagged(t *testing.T) {
	calc := NewCalculator(Config{})
	ticket := openTicket(domain.TicketPriorityP1, baseTime.Add(time.Hour))

	ticket.Status = domain.TicketStatusResolved
	assert.Equal(t, RiskOnTrack, calc.ClassifyRisk(ticket, baseTime.Add(48*time.Hour)))

	ticket.Status = domain.TicketStatusClosed
	assert.Equal(t, RiskOnTrack, calc.ClassifyRisk(ticket, baseTime.Add(48*time.Hour)))
}

func TestMarkFirstResponseIdempotent(t *testing.T) {
	calc := NewCalculator(Config{})
	ticket := openTicket(domain.TicketPriorityP2, baseTime.Add(8*time.Hour))

	changed := calc.MarkFirstResponse(ticket, baseTime.Add(30*time.Minute))
	require.True(t, changed)
	require.NotNil(t, ticket.FirstResponseAt)
	assert.Equal(t, baseTime.Add(30*time.Minute), *ticket.FirstResponseAt)
	assert.True(t, ticket.SLAFirstResponseMet)

	// A second reply must not move the stamp.
	changed = calc.MarkFirstResponse(ticket, baseTime.Add(5*time.Hour))
	assert.False(t, changed)
	assert.Equal(t, baseTime.Add(30*time.Minute), *ticket.FirstResponseAt)
	assert.True(t, ticket.SLAFirstResponseMet)
}

func TestMarkFirstResponseLateMissesDeadline(t *testing.T) {
	calc := NewCalculator(Config{})
	ticket := openTicket(domain.TicketPriorityP2, baseTime.Add(8*time.Hour))

	changed := calc.MarkFirstResponse(ticket, baseTime.Add(2*time.Hour))
	require.True(t, changed)
	assert.False(t, ticket.SLAFirstResponseMet)
}
