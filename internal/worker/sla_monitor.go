package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/events"
	"github.com/spec-kit/crm-engine/internal/repository"
)

// SLAMonitor periodically scans for tickets past their resolution
// deadline and marks them breached. The flag is sticky; tickets already
// flagged are skipped by the query.
type SLAMonitor struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	interval   time.Duration
	batchSize  int
	now        func() time.Time
}

// NewSLAMonitor constructs the monitor. A non-positive interval falls
// back to one minute.
func NewSLAMonitor(tickets repository.TicketRepository, dispatcher events.Dispatcher, logger *zap.Logger, interval time.Duration) *SLAMonitor {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SLAMonitor{
		tickets:    tickets,
		dispatcher: dispatcher,
		logger:     logger,
		interval:   interval,
		batchSize:  100,
		now:        time.Now,
	}
}

// Run loops until the context is canceled.
func (m *SLAMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep performs one scan pass.
func (m *SLAMonitor) Sweep(ctx context.Context) {
	now := m.now()
	candidates, err := m.tickets.ListBreachCandidates(ctx, now, m.batchSize)
	if err != nil {
		m.logger.Error("breach scan failed", zap.Error(err))
		return
	}

	for i := range candidates {
		ticket := candidates[i]
		ticket.SLABreached = true
		if err := m.tickets.Update(ctx, &ticket); err != nil {
			if errors.Is(err, repository.ErrStaleVersion) {
				// Someone else touched the ticket; the next pass
				// picks it up if it is still unflagged.
				continue
			}
			m.logger.Error("failed to flag breach", zap.Error(err), zap.String("ticket_id", ticket.ID))
			continue
		}

		m.logger.Warn("sla breached",
			zap.String("ticket_id", ticket.ID),
			zap.String("priority", string(ticket.Priority)),
			zap.Time("deadline", ticket.SLAResolutionDeadline))
		if m.dispatcher != nil {
			_ = m.dispatcher.Publish(ctx, events.Event{
				ID:        uuid.NewString(),
				Type:      events.EventSLABreachDetected,
				TicketID:  ticket.ID,
				Actor:     events.Actor{Type: domain.AuthorTypeSystem},
				Timestamp: now,
				Payload: events.SLABreachDetectedPayload{
					Deadline:   ticket.SLAResolutionDeadline,
					DetectedAt: now,
				},
			})
		}
	}
}
