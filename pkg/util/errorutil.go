package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for the engine's taxonomy. Kinds must stay distinguishable
// so callers can react differently to configuration, state and
// resource-exhaustion outcomes.
const (
	CodeValidationFailed           = "VALIDATION_FAILED"
	CodeNotFound                   = "NOT_FOUND"
	CodeUnauthorized               = "UNAUTHORIZED"
	CodeForbidden                  = "FORBIDDEN"
	CodeConflict                   = "CONFLICT"
	CodeInternal                   = "INTERNAL_ERROR"
	CodePolicyNotFound             = "SLA_POLICY_NOT_FOUND"
	CodeNoEligibleAgent            = "NO_ELIGIBLE_AGENT"
	CodeManualAssignmentRequired   = "MANUAL_ASSIGNMENT_REQUIRED"
	CodeInvalidTransition          = "INVALID_TRANSITION"
	CodeTicketAlreadyHasAgreement  = "TICKET_ALREADY_HAS_AGREEMENT"
	CodeEffectivationQueueNotFound = "EFFECTIVATION_QUEUE_NOT_FOUND"
	CodeGateway                    = "GATEWAY_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewPolicyNotFound flags a missing SLA policy for a priority. Callers
// fall back to the configured default budgets; the condition is still
// surfaced so misconfiguration is never silent.
func NewPolicyNotFound(priority string) error {
	return NewDomainError(CodePolicyNotFound,
		fmt.Sprintf("no SLA policy configured for priority %s", priority),
		http.StatusUnprocessableEntity,
		map[string]any{"priority": priority})
}

// NewNoEligibleAgent is the expected outcome when a queue has nobody to
// take a ticket; the ticket stays unassigned.
func NewNoEligibleAgent(queueID string) error {
	return NewDomainError(CodeNoEligibleAgent,
		"no eligible agent available for assignment",
		http.StatusConflict,
		map[string]any{"queue_id": queueID})
}

// NewManualAssignmentRequired signals that the queue is configured for
// human assignment only.
func NewManualAssignmentRequired(queueID string) error {
	return NewDomainError(CodeManualAssignmentRequired,
		"queue requires manual assignment",
		http.StatusConflict,
		map[string]any{"queue_id": queueID})
}

// NewInvalidTransition rejects an out-of-order status change.
func NewInvalidTransition(current, event string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot apply %s while ticket is %s", event, current),
		http.StatusConflict,
		map[string]any{"current_status": current, "event": event})
}

// NewTicketAlreadyHasAgreement guards against double agreement
// registration and post-agreement contact actions.
func NewTicketAlreadyHasAgreement(ticketID string) error {
	return NewDomainError(CodeTicketAlreadyHasAgreement,
		"ticket already has a registered agreement",
		http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewEffectivationQueueNotFound reports the missing-queue configuration
// error for the collection workflow.
func NewEffectivationQueueNotFound() error {
	return NewDomainError(CodeEffectivationQueueNotFound,
		"no effectivation queue is configured",
		http.StatusUnprocessableEntity, nil)
}

// NewGatewayError wraps a transport failure from the entity store
// unchanged; no retry is attempted at this layer.
func NewGatewayError(err error) error {
	return &DomainError{
		Code:       CodeGateway,
		Message:    "entity gateway failure",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// IsCode reports whether err is a DomainError carrying the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
