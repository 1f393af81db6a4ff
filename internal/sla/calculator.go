// Package sla computes service-level deadlines and classifies tickets
// against them. All arithmetic is pure; callers inject the wall clock.
package sla

import (
	"time"

	"github.com/spec-kit/crm-engine/internal/domain"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

// Risk classifies a ticket's standing against its resolution deadline.
type Risk string

const (
	RiskOnTrack  Risk = "ON_TRACK"
	RiskAtRisk   Risk = "AT_RISK"
	RiskBreached Risk = "BREACHED"
)

// DefaultAtRiskWindow is the lookahead used when none is configured.
const DefaultAtRiskWindow = 4 * time.Hour

// Budget pairs the two time budgets of one priority.
type Budget struct {
	FirstResponse time.Duration
	Resolution    time.Duration
}

// DefaultBudgets are the documented fallback budgets applied when no
// policy row exists for a priority.
func DefaultBudgets() map[domain.TicketPriority]Budget {
	return map[domain.TicketPriority]Budget{
		domain.TicketPriorityP1: {FirstResponse: time.Hour, Resolution: 4 * time.Hour},
		domain.TicketPriorityP2: {FirstResponse: 4 * time.Hour, Resolution: 8 * time.Hour},
		domain.TicketPriorityP3: {FirstResponse: 8 * time.Hour, Resolution: 24 * time.Hour},
		domain.TicketPriorityP4: {FirstResponse: 24 * time.Hour, Resolution: 72 * time.Hour},
	}
}

// Config tunes the calculator.
type Config struct {
	// AtRiskWindow is how close to the resolution deadline a ticket is
	// flagged at risk. Applied uniformly across priorities.
	AtRiskWindow time.Duration
	// FallbackBudgets override the documented defaults per priority.
	FallbackBudgets map[domain.TicketPriority]Budget
}

// Calculator stamps and classifies SLA deadlines.
type Calculator struct {
	atRiskWindow time.Duration
	fallbacks    map[domain.TicketPriority]Budget
}

// NewCalculator builds a calculator, filling unset config from defaults.
func NewCalculator(cfg Config) *Calculator {
	window := cfg.AtRiskWindow
	if window <= 0 {
		window = DefaultAtRiskWindow
	}
	fallbacks := DefaultBudgets()
	for priority, budget := range cfg.FallbackBudgets {
		if budget.FirstResponse > 0 && budget.Resolution > 0 {
			fallbacks[priority] = budget
		}
	}
	return &Calculator{atRiskWindow: window, fallbacks: fallbacks}
}

// ComputeDeadlines derives both deadlines from the creation time and the
// applicable policy. A nil or mismatched policy yields a policy-not-found
// error; callers fall back to FallbackDeadlines.
func (c *Calculator) ComputeDeadlines(priority domain.TicketPriority, createdAt time.Time, policy *domain.SLAPolicy) (time.Time, time.Time, error) {
	if policy == nil || policy.Priority != priority || policy.FirstResponse <= 0 || policy.Resolution <= 0 {
		return time.Time{}, time.Time{}, apperrors.NewPolicyNotFound(string(priority))
	}
	return createdAt.Add(policy.FirstResponse), createdAt.Add(policy.Resolution), nil
}

// FallbackDeadlines derives deadlines from the configured default
// budgets. Unknown priorities get the most lenient budget.
func (c *Calculator) FallbackDeadlines(priority domain.TicketPriority, createdAt time.Time) (time.Time, time.Time) {
	budget, ok := c.fallbacks[priority]
	if !ok {
		budget = c.fallbacks[domain.TicketPriorityP4]
	}
	return createdAt.Add(budget.FirstResponse), createdAt.Add(budget.Resolution)
}

// ClassifyRisk derives the ticket's standing at the given instant.
// Resolved and closed tickets are never at risk or breached. The breach
// flag is sticky: once set on the ticket it wins over deadline math.
func (c *Calculator) ClassifyRisk(ticket *domain.Ticket, now time.Time) Risk {
	if !ticket.Status.IsOpen() {
		return RiskOnTrack
	}
	if ticket.SLABreached || now.After(ticket.SLAResolutionDeadline) {
		return RiskBreached
	}
	if remaining := ticket.SLAResolutionDeadline.Sub(now); remaining > 0 && remaining < c.atRiskWindow {
		return RiskAtRisk
	}
	return RiskOnTrack
}

// MarkFirstResponse stamps the first response time and whether it met
// the deadline. Idempotent: an existing stamp is never overwritten.
// Returns true when the ticket was mutated.
func (c *Calculator) MarkFirstResponse(ticket *domain.Ticket, now time.Time) bool {
	if ticket.FirstResponseAt != nil {
		return false
	}
	stamp := now
	ticket.FirstResponseAt = &stamp
	ticket.SLAFirstResponseMet = !now.After(ticket.SLAFirstResponseDeadline)
	return true
}
