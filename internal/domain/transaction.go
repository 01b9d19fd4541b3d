package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents the current status of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending      TransactionStatus = "PENDING"
	TransactionStatusAuthorized   TransactionStatus = "AUTHORIZED"
	TransactionStatusAuthDeclined TransactionStatus = "AUTH_DECLINED"
	TransactionStatusCaptured     TransactionStatus = "CAPTURED"
	TransactionStatusSettled      TransactionStatus = "SETTLED"
	TransactionStatusFailed       TransactionStatus = "FAILED"
	TransactionStatusCancelled    TransactionStatus = "CANCELLED"
	TransactionStatusRefunded     TransactionStatus = "REFUNDED"
	TransactionStatusDisputed     TransactionStatus = "DISPUTED"
	TransactionStatusChargeback   TransactionStatus = "CHARGEBACK"
)

// RiskTier is the fraud risk classification of a transaction.
type RiskTier string

const (
	RiskTierLow    RiskTier = "LOW"
	RiskTierMedium RiskTier = "MEDIUM"
	RiskTierHigh   RiskTier = "HIGH"
)

// SettlementStatus represents the state of fund settlement for a capture.
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "PENDING"
	SettlementStatusProcessing SettlementStatus = "PROCESSING"
	SettlementStatusSettled    SettlementStatus = "SETTLED"
	SettlementStatusFailed     SettlementStatus = "FAILED"
	SettlementStatusReversed   SettlementStatus = "REVERSED"
)

// RefundState tells whether a transaction has been partially or fully refunded.
type RefundState string

const (
	RefundStateNone    RefundState = "NONE"
	RefundStatePartial RefundState = "PARTIAL"
	RefundStateFull    RefundState = "FULL"
)

// EventType names an entry in a transaction's event log.
type EventType string

const (
	EventCreated           EventType = "CREATED"
	EventRiskAssessed      EventType = "RISK_ASSESSED"
	EventRiskSkipped       EventType = "RISK_SKIPPED"
	EventManualReview      EventType = "MANUAL_REVIEW_FLAGGED"
	EventFraudRejected     EventType = "FRAUD_REJECTED"
	EventComplianceChecked EventType = "COMPLIANCE_CHECKED"
	EventComplianceSkipped EventType = "COMPLIANCE_SKIPPED"
	EventTokenized         EventType = "TOKENIZED"
	EventAuthorized        EventType = "AUTHORIZED"
	EventAuthDeclined      EventType = "AUTH_DECLINED"
	EventAuthError         EventType = "AUTH_ERROR"
	EventAuthExpired       EventType = "AUTH_EXPIRED"
	EventVoided            EventType = "VOIDED"
	EventCancelled         EventType = "CANCELLED"
	EventCaptured          EventType = "CAPTURED"
	EventCaptureFailed     EventType = "CAPTURE_FAILED"
	EventSettled           EventType = "SETTLED"
	EventSettlementFailed  EventType = "SETTLEMENT_FAILED"
	EventSettlementRetried EventType = "SETTLEMENT_RETRIED"
	EventSettlementSkipped EventType = "SETTLEMENT_SKIPPED"
	EventRefundRequested   EventType = "REFUND_REQUESTED"
	EventRefundApproved    EventType = "REFUND_APPROVED"
	EventRefundSubmitted   EventType = "REFUND_SUBMITTED"
	EventRefundFailed      EventType = "REFUND_FAILED"
	EventRefundCancelled   EventType = "REFUND_CANCELLED"
	EventPartiallyRefunded EventType = "PARTIALLY_REFUNDED"
	EventRefunded          EventType = "REFUNDED"
	EventDisputeOpened     EventType = "DISPUTE_OPENED"
	EventDisputeWon        EventType = "DISPUTE_WON"
	EventDisputeLost       EventType = "DISPUTE_LOST"
	EventChargeback        EventType = "CHARGEBACK"
)

// Transaction is a single payment attempt with its own lifecycle.
type Transaction struct {
	ID               string
	ReferenceNumber  string
	IdempotencyKey   string
	CustomerID       string
	BillingAccountID string
	OrderID          string
	InvoiceID        string
	Amount           decimal.Decimal
	Currency         string
	PaymentMethod    PaymentMethod
	Country          string
	Status           TransactionStatus
	Description      string
	PaymentDetails   *PaymentDetails
	Compliance       *ComplianceInfo
	Authorization    *AuthorizationInfo
	Settlement       *SettlementInfo
	RefundState      RefundState
	RefundedAmount   decimal.Decimal
	Events           []TransactionEvent
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PaymentDetails holds the non-sensitive remainder of a payment instrument.
// The raw instrument number is never stored.
type PaymentDetails struct {
	Last4     string
	Token     string
	Tokenized bool
	Brand     string
}

// ComplianceInfo carries the fraud and compliance verdicts for a transaction.
type ComplianceInfo struct {
	RiskTier      RiskTier
	Scores        map[string]float64
	OverallScore  float64
	FraudDetected bool
	ManualReview  bool
	Reason        string
	PCICompliant  bool
	AMLChecked    bool
	KYCValidated  bool
	CheckedAt     time.Time
}

// AuthorizationInfo describes the provisional approval of a transaction.
type AuthorizationInfo struct {
	Code             string
	Status           string
	AuthorizedAmount decimal.Decimal
	IssuedAt         time.Time
	ExpiresAt        time.Time
	ThreeDSecure     bool
	ChallengeID      string
	ResponseCode     string
	ResponseMessage  string
}

// Expired reports whether the authorization can no longer be captured at now.
func (a *AuthorizationInfo) Expired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && !now.Before(a.ExpiresAt)
}

// SettlementInfo tracks the movement of captured funds.
type SettlementInfo struct {
	ID            string
	Channel       string
	Status        SettlementStatus
	Amount        decimal.Decimal
	Currency      string
	ExchangeRate  decimal.Decimal
	ProjectedAt   time.Time
	SettledAt     time.Time
	RetryCount    int
	NextRetryAt   time.Time
	FailureReason string
	GatewayRef    string
}

// TransactionEvent is an entry of the append-only transaction log.
type TransactionEvent struct {
	Sequence    int
	Type        EventType
	Status      TransactionStatus
	Description string
	Actor       string
	OccurredAt  time.Time
}

// IsTerminal reports whether the status accepts no further regular transitions.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusFailed,
		TransactionStatusAuthDeclined,
		TransactionStatusCancelled,
		TransactionStatusRefunded,
		TransactionStatusChargeback:
		return true
	}
	return false
}

// Refundable reports whether refunds may be requested against the status.
func (s TransactionStatus) Refundable() bool {
	return s == TransactionStatusCaptured || s == TransactionStatusSettled
}

// Disputable reports whether a dispute may be opened against the status.
func (s TransactionStatus) Disputable() bool {
	return s == TransactionStatusCaptured || s == TransactionStatusSettled
}

// TransitionTo moves the transaction to next along an allowed edge.
func (t *Transaction) TransitionTo(next TransactionStatus, at time.Time) error {
	if !CanTransition(t.Status, next) {
		return &TransitionError{From: t.Status, To: next}
	}
	t.Status = next
	t.UpdatedAt = at
	return nil
}

// AppendEvent adds an entry to the event log, stamped with the current status.
func (t *Transaction) AppendEvent(eventType EventType, description, actor string, at time.Time) TransactionEvent {
	event := TransactionEvent{
		Sequence:    len(t.Events) + 1,
		Type:        eventType,
		Status:      t.Status,
		Description: description,
		Actor:       actor,
		OccurredAt:  at,
	}
	t.Events = append(t.Events, event)
	t.UpdatedAt = at
	return event
}

// HasEvent reports whether an event of the given type was recorded.
func (t *Transaction) HasEvent(eventType EventType) bool {
	for _, e := range t.Events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}

// RefundableRemaining is the amount that may still be refunded.
func (t *Transaction) RefundableRemaining() decimal.Decimal {
	remaining := t.Amount.Sub(t.RefundedAmount)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// Clone returns a deep copy so callers never share mutable state with the ledger.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	if t.PaymentDetails != nil {
		pd := *t.PaymentDetails
		c.PaymentDetails = &pd
	}
	if t.Compliance != nil {
		ci := *t.Compliance
		if t.Compliance.Scores != nil {
			ci.Scores = make(map[string]float64, len(t.Compliance.Scores))
			for k, v := range t.Compliance.Scores {
				ci.Scores[k] = v
			}
		}
		c.Compliance = &ci
	}
	if t.Authorization != nil {
		ai := *t.Authorization
		c.Authorization = &ai
	}
	if t.Settlement != nil {
		si := *t.Settlement
		c.Settlement = &si
	}
	if t.Events != nil {
		c.Events = make([]TransactionEvent, len(t.Events))
		copy(c.Events, t.Events)
	}
	return &c
}
