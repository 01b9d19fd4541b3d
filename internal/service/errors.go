package service

import (
	"errors"

	"paycore/internal/domain"
	"paycore/internal/repository"
)

// Error kinds. Every specific error below unwraps to exactly one of these so
// callers can branch with errors.Is on the kind alone.
var (
	// ErrValidation is a malformed or missing input. No state was created.
	ErrValidation = errors.New("validation failed")

	// ErrStageDisabled is returned when the operation's stage is switched off.
	ErrStageDisabled = errors.New("stage disabled")

	// ErrFraudRejected is returned when risk scoring fails the transaction.
	ErrFraudRejected = errors.New("fraud rejected")

	// ErrConflict is an operation that is not valid for the current state.
	ErrConflict = errors.New("conflict")

	// ErrGateway is a downstream gateway failure. It is retryable.
	ErrGateway = errors.New("gateway error")

	// ErrDeclined is returned when the gateway declines an authorization.
	ErrDeclined = errors.New("authorization declined")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

var (
	// ErrInvalidAmount is returned when an amount is not positive.
	ErrInvalidAmount = newError(ErrValidation, "amount must be positive")

	// ErrInvalidCustomerID is returned when customer ID is empty.
	ErrInvalidCustomerID = newError(ErrValidation, "customer id is required")

	// ErrInvalidPaymentMethod is returned when the payment method is absent or unknown.
	ErrInvalidPaymentMethod = newError(ErrValidation, "payment method is missing or unrecognized")

	// ErrInvalidCurrency is returned when a currency is not a three-letter code.
	ErrInvalidCurrency = newError(ErrValidation, "currency must be a three-letter code")

	// ErrInvalidTransactionID is returned when transaction ID is empty.
	ErrInvalidTransactionID = newError(ErrValidation, "transaction id is required")

	// ErrInvalidID is returned when a refund, dispute or schedule ID is empty.
	ErrInvalidID = newError(ErrValidation, "id is required")

	ErrInvalidRefundReason   = newError(ErrValidation, "unrecognized refund reason")
	ErrInvalidDisputeType    = newError(ErrValidation, "unrecognized dispute type")
	ErrInvalidDisputeOutcome = newError(ErrValidation, "dispute outcome must be WON or LOST")
	ErrEmptyEvidence         = newError(ErrValidation, "evidence description is required")
	ErrInvalidFrequency      = newError(ErrValidation, "unrecognized frequency")
	ErrInvalidSchedule       = newError(ErrValidation, "end date must be after start date")
	ErrInvalidInvoice        = newError(ErrValidation, "invoice id and customer id are required")
	ErrCurrencyMismatch      = newError(ErrValidation, "currency does not match")
)

var (
	// ErrNotRefundable is returned when the transaction has no capture to refund against.
	ErrNotRefundable = newError(ErrConflict, "transaction is not refundable in its current status")

	// ErrRefundExceedsBalance is returned when a refund exceeds the unrefunded amount.
	ErrRefundExceedsBalance = newError(ErrConflict, "refund amount exceeds refundable balance")

	ErrNotDisputable        = newError(ErrConflict, "transaction is not disputable in its current status")
	ErrDisputeResolved      = newError(ErrConflict, "dispute already resolved")
	ErrEvidenceWindowClosed = newError(ErrConflict, "dispute response window has closed")
	ErrRefundNotPending     = newError(ErrConflict, "refund is not pending")
	ErrRefundNotProcessing  = newError(ErrConflict, "refund is not processing")
	ErrRefundInFlight       = newError(ErrConflict, "refund is awaiting the gateway")
	ErrRecurringNotActive   = newError(ErrConflict, "recurring payment is not active")
	ErrNotSettled           = newError(ErrConflict, "transaction has no settlement")

	// ErrAuthorizationExpired is returned when capture finds the authorization void.
	ErrAuthorizationExpired = newError(ErrConflict, "authorization expired")

	// ErrEntityBusy is returned when the per-entity lock could not be acquired in time.
	ErrEntityBusy = newError(ErrConflict, "entity is busy, retry later")
)

var (
	ErrTransactionProcessingDisabled = newError(ErrStageDisabled, "transaction processing is disabled")
	ErrSettlementDisabled            = newError(ErrStageDisabled, "settlement is disabled")
	ErrDisputeHandlingDisabled       = newError(ErrStageDisabled, "dispute handling is disabled")
	ErrChargebackDefenseDisabled     = newError(ErrStageDisabled, "chargeback defense is disabled")
	ErrReconciliationDisabled        = newError(ErrStageDisabled, "reconciliation is disabled")
	ErrRecurringDisabled             = newError(ErrStageDisabled, "recurring payments are disabled")
	ErrPartialRefundDisabled         = newError(ErrStageDisabled, "partial refunds are disabled")
	ErrFullRefundDisabled            = newError(ErrStageDisabled, "full refunds are disabled")
)

// IsConflict reports whether err is a state conflict, including an invalid
// status transition or a lost optimistic update.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, repository.ErrVersionConflict) ||
		errors.Is(err, repository.ErrDuplicate)
}
