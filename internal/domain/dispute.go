package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DisputeType classifies the contest raised against a transaction.
type DisputeType string

const (
	DisputeTypeChargeback              DisputeType = "CHARGEBACK"
	DisputeTypeRefundRequest           DisputeType = "REFUND_REQUEST"
	DisputeTypeBillingDispute          DisputeType = "BILLING_DISPUTE"
	DisputeTypeFraudClaim              DisputeType = "FRAUD_CLAIM"
	DisputeTypeUnauthorizedTransaction DisputeType = "UNAUTHORIZED_TRANSACTION"
)

// Valid reports whether the dispute type is known.
func (t DisputeType) Valid() bool {
	switch t {
	case DisputeTypeChargeback, DisputeTypeRefundRequest, DisputeTypeBillingDispute,
		DisputeTypeFraudClaim, DisputeTypeUnauthorizedTransaction:
		return true
	}
	return false
}

// DisputeStatus represents the progress of a dispute.
type DisputeStatus string

const (
	DisputeStatusOpened            DisputeStatus = "OPENED"
	DisputeStatusEvidenceSubmitted DisputeStatus = "EVIDENCE_SUBMITTED"
	DisputeStatusWon               DisputeStatus = "WON"
	DisputeStatusLost              DisputeStatus = "LOST"
)

// IsResolved reports whether the dispute reached a final outcome.
func (s DisputeStatus) IsResolved() bool {
	return s == DisputeStatusWon || s == DisputeStatusLost
}

// DisputeOutcome is the verdict passed to resolution.
type DisputeOutcome string

const (
	DisputeOutcomeWon  DisputeOutcome = "WON"
	DisputeOutcomeLost DisputeOutcome = "LOST"
)

// Evidence is material submitted in defence of a transaction.
type Evidence struct {
	Description string
	Documents   []string
	SubmittedBy string
	SubmittedAt time.Time
}

// DisputeEvent is an entry of the dispute's append-only log.
type DisputeEvent struct {
	Sequence    int
	Status      DisputeStatus
	Description string
	OccurredAt  time.Time
}

// Dispute is a chargeback or contest against one transaction.
type Dispute struct {
	ID               string
	TransactionID    string
	CustomerID       string
	Type             DisputeType
	Reason           string
	Amount           decimal.Decimal
	Currency         string
	Status           DisputeStatus
	PreDisputeStatus TransactionStatus
	Evidence         []Evidence
	Events           []DisputeEvent
	ChargebackID     string
	Version          int64
	InitiatedAt      time.Time
	DueAt            time.Time
	ResolvedAt       time.Time
}

// AppendEvent records a dispute log entry at the current status.
func (d *Dispute) AppendEvent(description string, at time.Time) {
	d.Events = append(d.Events, DisputeEvent{
		Sequence:    len(d.Events) + 1,
		Status:      d.Status,
		Description: description,
		OccurredAt:  at,
	})
}

// Clone returns a deep copy of the dispute.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	c := *d
	if d.Evidence != nil {
		c.Evidence = make([]Evidence, len(d.Evidence))
		for i, e := range d.Evidence {
			e.Documents = append([]string(nil), e.Documents...)
			c.Evidence[i] = e
		}
	}
	if d.Events != nil {
		c.Events = make([]DisputeEvent, len(d.Events))
		copy(c.Events, d.Events)
	}
	return &c
}
