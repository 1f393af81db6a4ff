package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CollectionActionType tags the variant of a collection action.
type CollectionActionType string

const (
	ActionPhoneCall        CollectionActionType = "PHONE_CALL"
	ActionWhatsApp         CollectionActionType = "WHATSAPP"
	ActionEmail            CollectionActionType = "EMAIL"
	ActionScheduleCallback CollectionActionType = "SCHEDULE_CALLBACK"
	ActionPaymentPromise   CollectionActionType = "PAYMENT_PROMISE"
)

// ExpectsFollowUp reports whether the action leaves the ticket waiting on
// the customer (a scheduled callback or a payment promise).
func (t CollectionActionType) ExpectsFollowUp() bool {
	return t == ActionScheduleCallback || t == ActionPaymentPromise
}

func (t CollectionActionType) valid() bool {
	switch t {
	case ActionPhoneCall, ActionWhatsApp, ActionEmail, ActionScheduleCallback, ActionPaymentPromise:
		return true
	}
	return false
}

// CollectionActionResult records the outcome of a contact attempt.
type CollectionActionResult string

const (
	ResultAnswered    CollectionActionResult = "ANSWERED"
	ResultNoAnswer    CollectionActionResult = "NO_ANSWER"
	ResultWrongNumber CollectionActionResult = "WRONG_NUMBER"
	ResultRefused     CollectionActionResult = "REFUSED"
)

// CollectionAction is one entry in a collection ticket's pre-agreement
// history. Required fields depend on the action type and are validated
// before the action is appended.
type CollectionAction struct {
	Type           CollectionActionType   `json:"type"`
	Result         CollectionActionResult `json:"result,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
	PromisedFor    *time.Time             `json:"promised_for,omitempty"`
	PromisedAmount *decimal.Decimal       `json:"promised_amount,omitempty"`
	ActorID        string                 `json:"actor_id"`
	RecordedAt     time.Time              `json:"recorded_at"`
}

// Validate checks the per-variant required fields.
func (a *CollectionAction) Validate() error {
	if !a.Type.valid() {
		return errors.New("unknown action type")
	}
	switch a.Type {
	case ActionScheduleCallback:
		if a.PromisedFor == nil {
			return errors.New("schedule_callback requires promised_for")
		}
	case ActionPaymentPromise:
		if a.PromisedFor == nil {
			return errors.New("payment_promise requires promised_for")
		}
		if a.PromisedAmount == nil || a.PromisedAmount.LessThanOrEqual(decimal.Zero) {
			return errors.New("payment_promise requires a positive promised_amount")
		}
	}
	return nil
}

// CollectionDetails carries the collection-only extension of a ticket.
// Agreement fields stay nil until an agreement is registered.
type CollectionDetails struct {
	AgreementValue         *decimal.Decimal
	AgreementInstallments  *int
	AgreementPaymentMethod *string
	AgreementDate          *time.Time
	AgreementRegisteredBy  *string
	Actions                []CollectionAction
}

// Agreement is the payload for registering a payment agreement.
type Agreement struct {
	Value         decimal.Decimal
	Installments  int
	PaymentMethod string
	Date          time.Time
}

// Validate checks agreement payload invariants.
func (a *Agreement) Validate() error {
	if a.Value.LessThanOrEqual(decimal.Zero) {
		return errors.New("agreement value must be positive")
	}
	if a.Installments < 1 {
		return errors.New("agreement requires at least one installment")
	}
	if a.PaymentMethod == "" {
		return errors.New("agreement requires a payment method")
	}
	return nil
}
