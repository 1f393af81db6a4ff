package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/spec-kit/crm-engine/internal/domain"
)

// RegisterActionRequest payload.
type RegisterActionRequest struct {
	Type           domain.CollectionActionType   `json:"type"`
	Result         domain.CollectionActionResult `json:"result,omitempty"`
	Notes          string                        `json:"notes,omitempty"`
	PromisedFor    *time.Time                    `json:"promised_for,omitempty"`
	PromisedAmount *decimal.Decimal              `json:"promised_amount,omitempty"`
}

// RegisterAgreementRequest payload.
type RegisterAgreementRequest struct {
	Value         decimal.Decimal `json:"value"`
	Installments  int             `json:"installments"`
	PaymentMethod string          `json:"payment_method"`
	Date          *time.Time      `json:"date,omitempty"`
}

// CollectionDetailsResponse exposes the collection extension.
type CollectionDetailsResponse struct {
	AgreementValue         *decimal.Decimal          `json:"agreement_value"`
	AgreementInstallments  *int                      `json:"agreement_installments"`
	AgreementPaymentMethod *string                   `json:"agreement_payment_method"`
	AgreementDate          *time.Time                `json:"agreement_date"`
	AgreementRegisteredBy  *string                   `json:"agreement_registered_by"`
	Actions                []domain.CollectionAction `json:"actions"`
}
