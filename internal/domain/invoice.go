package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRecord is one payment applied to an invoice.
type PaymentRecord struct {
	PaymentID       string
	AmountPaid      decimal.Decimal
	PaymentDate     time.Time
	PaymentMethod   PaymentMethod
	ReferenceNumber string
}

// Invoice is the billed amount a set of payments is matched against.
type Invoice struct {
	ID               string
	CustomerID       string
	BillingAccountID string
	AmountOwed       decimal.Decimal
	Currency         string
	Payments         []PaymentRecord
	LastReconciledAt time.Time
	Version          int64
	CreatedAt        time.Time
}

// HasPayment reports whether a record for paymentID was already applied.
func (i *Invoice) HasPayment(paymentID string) bool {
	for _, p := range i.Payments {
		if p.PaymentID == paymentID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the invoice.
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	if i.Payments != nil {
		c.Payments = make([]PaymentRecord, len(i.Payments))
		copy(c.Payments, i.Payments)
	}
	return &c
}

// ReconciliationStatus is the outcome of matching payments to an invoice.
type ReconciliationStatus string

const (
	ReconciliationMatched     ReconciliationStatus = "MATCHED"
	ReconciliationDiscrepancy ReconciliationStatus = "DISCREPANCY"
)

// ReconciliationReport summarizes an invoice reconciliation run.
type ReconciliationReport struct {
	InvoiceID    string
	AmountOwed   decimal.Decimal
	TotalPaid    decimal.Decimal
	Discrepancy  decimal.Decimal
	Tolerance    decimal.Decimal
	Status       ReconciliationStatus
	PaymentCount int
	ReconciledAt time.Time
}

// SettlementCheck is the outcome of verifying a settlement's currency conversion.
type SettlementCheck struct {
	TransactionID    string
	Amount           decimal.Decimal
	SettlementAmount decimal.Decimal
	ExchangeRate     decimal.Decimal
	Converted        decimal.Decimal
	Discrepancy      decimal.Decimal
	Status           ReconciliationStatus
}
