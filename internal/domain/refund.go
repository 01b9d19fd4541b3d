package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus represents the current status of a refund.
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "PENDING"
	RefundStatusProcessing RefundStatus = "PROCESSING"
	RefundStatusCompleted  RefundStatus = "COMPLETED"
	RefundStatusFailed     RefundStatus = "FAILED"
	RefundStatusCancelled  RefundStatus = "CANCELLED"
	RefundStatusReversed   RefundStatus = "REVERSED"
)

// RefundReason enumerates why money is being returned.
type RefundReason string

const (
	RefundReasonDuplicateCharge    RefundReason = "DUPLICATE_CHARGE"
	RefundReasonUnauthorized       RefundReason = "UNAUTHORIZED"
	RefundReasonServiceNotProvided RefundReason = "SERVICE_NOT_PROVIDED"
	RefundReasonCustomerRequest    RefundReason = "CUSTOMER_REQUEST"
	RefundReasonBillingError       RefundReason = "BILLING_ERROR"
	RefundReasonChargeback         RefundReason = "CHARGEBACK"
	RefundReasonOther              RefundReason = "OTHER"
)

// Valid reports whether the reason is one of the known values.
func (r RefundReason) Valid() bool {
	switch r {
	case RefundReasonDuplicateCharge, RefundReasonUnauthorized, RefundReasonServiceNotProvided,
		RefundReasonCustomerRequest, RefundReasonBillingError, RefundReasonChargeback, RefundReasonOther:
		return true
	}
	return false
}

// Refund returns previously captured funds to the customer.
type Refund struct {
	ID               string
	TransactionID    string
	CustomerID       string
	Amount           decimal.Decimal
	Currency         string
	Status           RefundStatus
	Reason           RefundReason
	Notes            string
	ProcessingFee    decimal.Decimal
	RefundableAmount decimal.Decimal
	GatewayRef       string
	FailureReason    string
	Version          int64
	InitiatedAt      time.Time
	SubmittedAt      time.Time
	ProcessedAt      time.Time
	CompletedAt      time.Time
}

// Reserves reports whether the refund holds part of the transaction's refundable
// balance. Failed and cancelled refunds release their reservation.
func (r *Refund) Reserves() bool {
	switch r.Status {
	case RefundStatusPending, RefundStatusProcessing, RefundStatusCompleted:
		return true
	}
	return false
}

// InFlight reports whether the refund was sent to the gateway without an
// answer being recorded.
func (r *Refund) InFlight() bool {
	return r.Status == RefundStatusProcessing && r.GatewayRef == "" && !r.SubmittedAt.IsZero()
}

// Executed reports whether the money has left, or is leaving, the merchant.
func (r *Refund) Executed() bool {
	return r.Status == RefundStatusProcessing || r.Status == RefundStatusCompleted
}

// Clone returns a copy of the refund.
func (r *Refund) Clone() *Refund {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
