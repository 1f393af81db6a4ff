package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionActionValidation(t *testing.T) {
	when := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	amount := decimal.NewFromInt(250)
	zero := decimal.Zero

	cases := []struct {
		name    string
		action  CollectionAction
		wantErr bool
	}{
		{"phone call", CollectionAction{Type: ActionPhoneCall, Result: ResultAnswered}, false},
		{"whatsapp", CollectionAction{Type: ActionWhatsApp, Result: ResultNoAnswer}, false},
		{"email", CollectionAction{Type: ActionEmail}, false},
		{"unknown type", CollectionAction{Type: CollectionActionType("FAX")}, true},
		{"callback without time", CollectionAction{Type: ActionScheduleCallback}, true},
		{"callback with time", CollectionAction{Type: ActionScheduleCallback, PromisedFor: &when}, false},
		{"promise without amount", CollectionAction{Type: ActionPaymentPromise, PromisedFor: &when}, true},
		{"promise with zero amount", CollectionAction{Type: ActionPaymentPromise, PromisedFor: &when, PromisedAmount: &zero}, true},
		{"promise without time", CollectionAction{Type: ActionPaymentPromise, PromisedAmount: &amount}, true},
		{"full promise", CollectionAction{Type: ActionPaymentPromise, PromisedFor: &when, PromisedAmount: &amount}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.action.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActionExpectsFollowUp(t *testing.T) {
	assert.True(t, ActionScheduleCallback.ExpectsFollowUp())
	assert.True(t, ActionPaymentPromise.ExpectsFollowUp())
	assert.False(t, ActionPhoneCall.ExpectsFollowUp())
	assert.False(t, ActionWhatsApp.ExpectsFollowUp())
	assert.False(t, ActionEmail.ExpectsFollowUp())
}

func TestAgreementValidation(t *testing.T) {
	valid := Agreement{
		Value:         decimal.NewFromFloat(1200.50),
		Installments:  3,
		PaymentMethod: "pix",
	}
	require.NoError(t, valid.Validate())

	negative := valid
	negative.Value = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())

	zeroValue := valid
	zeroValue.Value = decimal.Zero
	assert.Error(t, zeroValue.Validate())

	noInstallments := valid
	noInstallments.Installments = 0
	assert.Error(t, noInstallments.Validate())

	noMethod := valid
	noMethod.PaymentMethod = ""
	assert.Error(t, noMethod.Validate())
}

func TestHasAgreement(t *testing.T) {
	ticket := &Ticket{Type: TicketTypeCollection}
	assert.False(t, ticket.HasAgreement())

	ticket.Collection = &CollectionDetails{}
	assert.False(t, ticket.HasAgreement())

	when := time.Now()
	ticket.Collection.AgreementDate = &when
	assert.True(t, ticket.HasAgreement())
}
