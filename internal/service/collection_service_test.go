package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/crm-engine/internal/config"
	"github.com/spec-kit/crm-engine/internal/domain"
	apperrors "github.com/spec-kit/crm-engine/pkg/util"
)

type collectionFixture struct {
	tickets  *fakeTicketRepo
	queues   *fakeQueueRepo
	messages *fakeMessageRepo
	history  *fakeHistoryRepo
	service  *CollectionService
	now      time.Time
}

func newCollectionFixture(t *testing.T, queues ...domain.Queue) *collectionFixture {
	t.Helper()
	if len(queues) == 0 {
		queues = []domain.Queue{
			{ID: "q-contact", Name: "Cobrança - Contato", Role: domain.QueueRoleContact, Active: true},
			{ID: "q-eff", Name: "Cobrança - Efetivação", Role: domain.QueueRoleEffectivation, Active: true},
		}
	}
	fx := &collectionFixture{
		tickets:  newFakeTicketRepo(),
		queues:   newFakeQueueRepo(queues...),
		messages: &fakeMessageRepo{},
		history:  &fakeHistoryRepo{},
		now:      time.Date(2025, 7, 14, 15, 0, 0, 0, time.UTC),
	}
	fx.service = NewCollectionService(config.CollectionConfig{
		ContactQueueMatch:       "contato",
		EffectivationQueueMatch: "efetivacao",
	}, CollectionDependencies{
		TicketRepo:  fx.tickets,
		QueueRepo:   fx.queues,
		MessageRepo: fx.messages,
		HistoryRepo: fx.history,
		Logger:      zap.NewNop(),
	})
	fx.service.now = func() time.Time { return fx.now }
	return fx
}

func (fx *collectionFixture) newCollectionTicket(t *testing.T, status domain.TicketStatus) *domain.Ticket {
	t.Helper()
	agentID := "agent-1"
	ticket := &domain.Ticket{
		ExternalKey:  "TCK-COLL",
		Type:         domain.TicketTypeCollection,
		Priority:     domain.TicketPriorityP3,
		Status:       status,
		QueueID:      "q-contact",
		AgentID:      &agentID,
		RequesterRef: "debtor-9",
		Subject:      "overdue invoice",
		Collection:   &domain.CollectionDetails{Actions: []domain.CollectionAction{}},
	}
	if status == domain.TicketStatusNew {
		ticket.AgentID = nil
	}
	require.NoError(t, fx.tickets.Create(context.Background(), ticket))
	return ticket
}

func validAgreement() domain.Agreement {
	return domain.Agreement{
		Value:         decimal.NewFromFloat(980.40),
		Installments:  4,
		PaymentMethod: "boleto",
	}
}

func TestRegisterActionAppendsAndStartsProgress(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusAssigned)

	updated, err := fx.service.RegisterAction(context.Background(), "agent-1", ticket.ID, domain.CollectionAction{
		Type:   domain.ActionPhoneCall,
		Result: domain.ResultNoAnswer,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, updated.Status)
	require.Len(t, updated.Collection.Actions, 1)
	action := updated.Collection.Actions[0]
	assert.Equal(t, "agent-1", action.ActorID)
	assert.Equal(t, fx.now, action.RecordedAt)

	// A system note lands on the timeline.
	msgs, err := fx.messages.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.AuthorTypeSystem, msgs[0].AuthorType)
}

func TestRegisterActionWithFollowUpParksTicket(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusAssigned)

	// Move to in progress first so wait_customer is reachable.
	_, err := fx.service.RegisterAction(context.Background(), "agent-1", ticket.ID, domain.CollectionAction{
		Type:   domain.ActionPhoneCall,
		Result: domain.ResultAnswered,
	})
	require.NoError(t, err)

	promisedFor := fx.now.Add(48 * time.Hour)
	amount := decimal.NewFromInt(300)
	updated, err := fx.service.RegisterAction(context.Background(), "agent-1", ticket.ID, domain.CollectionAction{
		Type:           domain.ActionPaymentPromise,
		PromisedFor:    &promisedFor,
		PromisedAmount: &amount,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaitingCustomer, updated.Status)
	assert.Len(t, updated.Collection.Actions, 2)
}

func TestFirstActionWithFollowUpStillLeavesNew(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusNew)

	promisedFor := fx.now.Add(24 * time.Hour)
	amount := decimal.NewFromInt(150)
	updated, err := fx.service.RegisterAction(context.Background(), "agent-1", ticket.ID, domain.CollectionAction{
		Type:           domain.ActionPaymentPromise,
		PromisedFor:    &promisedFor,
		PromisedAmount: &amount,
	})
	require.NoError(t, err)
	assert.NotEqual(t, domain.TicketStatusNew, updated.Status)
	assert.Equal(t, domain.TicketStatusWaitingCustomer, updated.Status)
}

func TestRegisterActionValidatesVariantFields(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusAssigned)

	_, err := fx.service.RegisterAction(context.Background(), "agent-1", ticket.ID, domain.CollectionAction{
		Type: domain.ActionScheduleCallback,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
}

func TestRegisterActionRejectsNonCollectionTicket(t *testing.T) {
	fx := newCollectionFixture(t)
	support := &domain.Ticket{
		Type:    domain.TicketTypeSupport,
		Status:  domain.TicketStatusNew,
		QueueID: "q-contact",
		Subject: "not a debt",
	}
	require.NoError(t, fx.tickets.Create(context.Background(), support))

	_, err := fx.service.RegisterAction(context.Background(), "agent-1", support.ID, domain.CollectionAction{
		Type: domain.ActionEmail,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidationFailed))
}

func TestRegisterActionFrozenAfterAgreement(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	_, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.NoError(t, err)

	_, err = fx.service.RegisterAction(context.Background(), "agent-1", ticket.ID, domain.CollectionAction{
		Type: domain.ActionEmail,
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTicketAlreadyHasAgreement))
}

func TestRegisterAgreementMovesToEffectivationQueue(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	updated, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.NoError(t, err)

	assert.Equal(t, "q-eff", updated.QueueID)
	assert.Equal(t, domain.TicketStatusAssigned, updated.Status)
	// The agent who closed the deal stays on the ticket.
	require.NotNil(t, updated.AgentID)
	assert.Equal(t, "agent-1", *updated.AgentID)
	require.NotNil(t, updated.Collection.AgreementValue)
	assert.True(t, updated.Collection.AgreementValue.Equal(decimal.NewFromFloat(980.40)))
	require.NotNil(t, updated.Collection.AgreementRegisteredBy)
	assert.Equal(t, "agent-1", *updated.Collection.AgreementRegisteredBy)
	require.NotNil(t, updated.Collection.AgreementDate)
	assert.Equal(t, fx.now, *updated.Collection.AgreementDate)
}

func TestRegisterAgreementDiacriticNameFallback(t *testing.T) {
	fx := newCollectionFixture(t,
		domain.Queue{ID: "q-contact", Name: "Contato", Role: domain.QueueRoleNone, Active: true},
		domain.Queue{ID: "q-eff-legacy", Name: "Fila de Efetivação", Role: domain.QueueRoleNone, Active: true},
	)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	updated, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.NoError(t, err)
	assert.Equal(t, "q-eff-legacy", updated.QueueID)
}

func TestRegisterAgreementNoEffectivationQueue(t *testing.T) {
	fx := newCollectionFixture(t,
		domain.Queue{ID: "q-contact", Name: "Contato", Role: domain.QueueRoleContact, Active: true},
	)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	_, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEffectivationQueueNotFound))
}

func TestRegisterAgreementRejectsSecondAgreement(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	_, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.NoError(t, err)

	_, err = fx.service.RegisterAgreement(context.Background(), "agent-2", ticket.ID, validAgreement())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeTicketAlreadyHasAgreement))
}

func TestConcurrentAgreementRegistrationOnlyOneWins(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		ok := apperrors.IsCode(err, apperrors.CodeTicketAlreadyHasAgreement) ||
			apperrors.IsCode(err, apperrors.CodeConflict)
		assert.True(t, ok, "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasAgreement())
}

func TestEffectivateAgreementResolvesTicket(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	_, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.NoError(t, err)

	updated, err := fx.service.EffectivateAgreement(context.Background(), "agent-2", ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)
	require.NotNil(t, updated.ResolvedAt)
	assert.Equal(t, fx.now, *updated.ResolvedAt)
}

func TestEffectivateRequiresAgreement(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusAssigned)

	_, err := fx.service.EffectivateAgreement(context.Background(), "agent-1", ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
}

func TestEffectivateRequiresEffectivationQueue(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	// Agreement registered, then ticket manually dragged back to the
	// contact queue.
	_, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.NoError(t, err)
	stored, err := fx.tickets.GetByID(context.Background(), ticket.ID)
	require.NoError(t, err)
	stored.QueueID = "q-contact"
	require.NoError(t, fx.tickets.Update(context.Background(), stored))

	_, err = fx.service.EffectivateAgreement(context.Background(), "agent-1", ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
}

func TestEffectivateRejectsAlreadyResolved(t *testing.T) {
	fx := newCollectionFixture(t)
	ticket := fx.newCollectionTicket(t, domain.TicketStatusInProgress)

	_, err := fx.service.RegisterAgreement(context.Background(), "agent-1", ticket.ID, validAgreement())
	require.NoError(t, err)
	_, err = fx.service.EffectivateAgreement(context.Background(), "agent-1", ticket.ID)
	require.NoError(t, err)

	_, err = fx.service.EffectivateAgreement(context.Background(), "agent-1", ticket.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTransition))
}
