package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/crm-engine/internal/domain"
	"github.com/spec-kit/crm-engine/internal/repository"
)

// In-memory repository fakes. Writes hold a mutex and enforce the same
// version CAS semantics as the pgx implementations so concurrency
// guards can be exercised without a database.

type fakeTicketRepo struct {
	mu      sync.Mutex
	seq     int
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	clone := *t
	if t.Collection != nil {
		collection := *t.Collection
		collection.Actions = append([]domain.CollectionAction(nil), t.Collection.Actions...)
		clone.Collection = &collection
	}
	return &clone
}

func (r *fakeTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	ticket.ID = "ticket-" + strconv.Itoa(r.seq)
	ticket.CreatedAt = time.Now()
	ticket.UpdatedAt = ticket.CreatedAt
	ticket.Version = 1
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *fakeTicketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return repository.ErrStaleVersion
	}
	ticket.Version++
	ticket.UpdatedAt = time.Now()
	r.tickets[ticket.ID] = cloneTicket(ticket)
	return nil
}

func (r *fakeTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return cloneTicket(ticket), nil
}

func (r *fakeTicketRepo) GetByExternalKey(_ context.Context, key string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ticket := range r.tickets {
		if ticket.ExternalKey == key {
			return cloneTicket(ticket), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if filter.QueueID != nil && ticket.QueueID != *filter.QueueID {
			continue
		}
		if filter.AgentID != nil && (ticket.AgentID == nil || *ticket.AgentID != *filter.AgentID) {
			continue
		}
		result = append(result, *cloneTicket(ticket))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *fakeTicketRepo) ListBreachCandidates(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if ticket.SLABreached || !ticket.Status.IsOpen() {
			continue
		}
		if ticket.SLAResolutionDeadline.Before(now) {
			result = append(result, *cloneTicket(ticket))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SLAResolutionDeadline.Before(result[j].SLAResolutionDeadline)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeTicketRepo) CountOpenByAgent(_ context.Context, queueID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[string]int{}
	for _, ticket := range r.tickets {
		if ticket.QueueID == queueID && ticket.AgentID != nil && ticket.Status.IsOpen() {
			counts[*ticket.AgentID]++
		}
	}
	return counts, nil
}

type fakeQueueRepo struct {
	mu     sync.Mutex
	queues map[string]*domain.Queue
}

func newFakeQueueRepo(queues ...domain.Queue) *fakeQueueRepo {
	repo := &fakeQueueRepo{queues: map[string]*domain.Queue{}}
	for i := range queues {
		queue := queues[i]
		repo.queues[queue.ID] = &queue
	}
	return repo
}

func (r *fakeQueueRepo) Create(_ context.Context, queue *domain.Queue) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queues[queue.ID] = queue
	return nil
}

func (r *fakeQueueRepo) GetByID(_ context.Context, id string) (*domain.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue, ok := r.queues[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *queue
	return &clone, nil
}

func (r *fakeQueueRepo) List(_ context.Context, activeOnly bool) ([]domain.Queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Queue
	for _, queue := range r.queues {
		if activeOnly && !queue.Active {
			continue
		}
		result = append(result, *queue)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type fakeAgentRepo struct {
	agents []domain.Agent
}

func (r *fakeAgentRepo) GetByID(_ context.Context, id string) (*domain.Agent, error) {
	for i := range r.agents {
		if r.agents[i].ID == id {
			clone := r.agents[i]
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeAgentRepo) ListByQueue(_ context.Context, queueID string, activeOnly bool) ([]domain.Agent, error) {
	var result []domain.Agent
	for _, agent := range r.agents {
		if activeOnly && !agent.Active {
			continue
		}
		if !agent.ServesQueue(queueID) {
			continue
		}
		result = append(result, agent)
	}
	return result, nil
}

type fakeRuleRepo struct {
	mu    sync.Mutex
	rules map[string]*domain.DistributionRule
}

func newFakeRuleRepo(rules ...domain.DistributionRule) *fakeRuleRepo {
	repo := &fakeRuleRepo{rules: map[string]*domain.DistributionRule{}}
	for i := range rules {
		rule := rules[i]
		repo.rules[rule.QueueID] = &rule
	}
	return repo
}

func (r *fakeRuleRepo) GetByQueue(_ context.Context, queueID string) (*domain.DistributionRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[queueID]
	if !ok || !rule.Enabled {
		return nil, pgx.ErrNoRows
	}
	clone := *rule
	clone.AgentSequence = append([]string(nil), rule.AgentSequence...)
	return &clone, nil
}

func (r *fakeRuleRepo) Save(_ context.Context, rule *domain.DistributionRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rule.LastAssignedAgentID != nil && rule.SequenceIndex(*rule.LastAssignedAgentID) < 0 {
		rule.LastAssignedAgentID = nil
	}
	if existing, ok := r.rules[rule.QueueID]; ok {
		rule.ID = existing.ID
		rule.Version = existing.Version + 1
	} else {
		rule.ID = "rule-" + rule.QueueID
		rule.Version = 1
	}
	rule.UpdatedAt = time.Now()
	clone := *rule
	r.rules[rule.QueueID] = &clone
	return nil
}

// fakeAssignmentStore applies the same CAS the transactional store uses:
// both the rule cursor and the ticket row must still carry the versions
// the caller read, or nothing is committed.
type fakeAssignmentStore struct {
	tickets *fakeTicketRepo
	rules   *fakeRuleRepo
}

func (s *fakeAssignmentStore) CommitAssignment(ctx context.Context, ticket *domain.Ticket, rule *domain.DistributionRule) error {
	s.rules.mu.Lock()
	stored, ok := s.rules.rules[rule.QueueID]
	if !ok || stored.Version != rule.Version {
		s.rules.mu.Unlock()
		return repository.ErrStaleVersion
	}
	stored.LastAssignedAgentID = rule.LastAssignedAgentID
	stored.Version++
	rule.Version = stored.Version
	s.rules.mu.Unlock()

	return s.tickets.Update(ctx, ticket)
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	seq      int
	messages []domain.TicketMessage
}

func (r *fakeMessageRepo) Create(_ context.Context, msg *domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = "msg-" + strconv.Itoa(r.seq)
	msg.CreatedAt = time.Now()
	r.messages = append(r.messages, *msg)
	return nil
}

func (r *fakeMessageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketMessage
	for _, msg := range r.messages {
		if msg.TicketID == ticketID {
			result = append(result, msg)
		}
	}
	return result, nil
}

type fakeHistoryRepo struct {
	mu      sync.Mutex
	entries []domain.TicketHistory
}

func (r *fakeHistoryRepo) Create(_ context.Context, entry *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeHistoryRepo) ListByTicket(_ context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.TicketHistory
	for _, entry := range r.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type fakePolicyRepo struct {
	policies map[domain.TicketPriority]*domain.SLAPolicy
}

func (r *fakePolicyRepo) GetByPriority(_ context.Context, priority domain.TicketPriority) (*domain.SLAPolicy, error) {
	policy, ok := r.policies[priority]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *policy
	return &clone, nil
}
