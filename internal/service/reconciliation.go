package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/repository"
)

const maxInvoiceWriteAttempts = 3

// ReconciliationService matches invoices against the payments recorded for them.
type ReconciliationService struct {
	*core
}

// RegisterInvoiceRequest contains the parameters for registering an invoice.
type RegisterInvoiceRequest struct {
	InvoiceID        string
	CustomerID       string
	BillingAccountID string
	AmountOwed       decimal.Decimal
	Currency         string
}

// RegisterInvoice stores an invoice issued by billing.
func (s *ReconciliationService) RegisterInvoice(ctx context.Context, req RegisterInvoiceRequest) (*domain.Invoice, error) {
	if strings.TrimSpace(req.InvoiceID) == "" || strings.TrimSpace(req.CustomerID) == "" {
		return nil, ErrInvalidInvoice
	}
	if req.AmountOwed.IsNegative() {
		return nil, ErrInvalidAmount
	}
	currency, err := normalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	invoice := &domain.Invoice{
		ID:               strings.TrimSpace(req.InvoiceID),
		CustomerID:       strings.TrimSpace(req.CustomerID),
		BillingAccountID: req.BillingAccountID,
		AmountOwed:       req.AmountOwed,
		Currency:         currency,
		CreatedAt:        s.now(),
	}
	if err := s.ledger.Invoices().Create(ctx, invoice); err != nil {
		return nil, err
	}
	return invoice, nil
}

// GetInvoice retrieves an invoice by ID.
func (s *ReconciliationService) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	if invoiceID == "" {
		return nil, ErrInvalidID
	}
	return s.ledger.Invoices().GetByID(ctx, invoiceID)
}

// RecordPaymentRequest contains the parameters for recording a payment made
// against an invoice outside the transaction pipeline.
type RecordPaymentRequest struct {
	PaymentID       string // Optional: generated when empty
	AmountPaid      decimal.Decimal
	PaymentMethod   domain.PaymentMethod
	ReferenceNumber string
}

// RecordInvoicePayment appends a payment record. Recording the same payment
// id twice is a no-op.
func (s *ReconciliationService) RecordInvoicePayment(ctx context.Context, invoiceID string, req RecordPaymentRequest) (*domain.Invoice, error) {
	if invoiceID == "" {
		return nil, ErrInvalidID
	}
	if !req.AmountPaid.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if req.PaymentID == "" {
		req.PaymentID = uuid.New().String()
	}

	return s.updateInvoice(ctx, invoiceID, func(invoice *domain.Invoice) bool {
		if invoice.HasPayment(req.PaymentID) {
			return false
		}
		invoice.Payments = append(invoice.Payments, domain.PaymentRecord{
			PaymentID:       req.PaymentID,
			AmountPaid:      req.AmountPaid,
			PaymentDate:     s.now(),
			PaymentMethod:   req.PaymentMethod,
			ReferenceNumber: req.ReferenceNumber,
		})
		return true
	})
}

// Reconcile compares total paid with the amount owed. The only write is the
// invoice's reconciliation timestamp, so repeated runs are safe.
func (s *ReconciliationService) Reconcile(ctx context.Context, invoiceID string) (*domain.ReconciliationReport, error) {
	defer segment(ctx, "ReconciliationService.Reconcile").End()

	if !s.features.Reconciliation {
		return nil, ErrReconciliationDisabled
	}
	if invoiceID == "" {
		return nil, ErrInvalidID
	}

	var report *domain.ReconciliationReport
	_, err := s.updateInvoice(ctx, invoiceID, func(invoice *domain.Invoice) bool {
		now := s.now()
		report = reconcileInvoice(invoice, s.policy.ReconciliationTolerance, now)
		invoice.LastReconciledAt = now
		return true
	})
	if err != nil {
		return nil, err
	}

	if report.Status == domain.ReconciliationDiscrepancy {
		s.logger.WarnContext(ctx, "invoice reconciliation discrepancy",
			"invoice_id", invoiceID,
			"amount_owed", report.AmountOwed.StringFixed(2),
			"total_paid", report.TotalPaid.StringFixed(2),
			"discrepancy", report.Discrepancy.StringFixed(2),
		)
	}
	return report, nil
}

// reconcileInvoice is the pure comparison behind Reconcile.
func reconcileInvoice(invoice *domain.Invoice, tolerance decimal.Decimal, at time.Time) *domain.ReconciliationReport {
	total := decimal.Zero
	for _, p := range invoice.Payments {
		total = total.Add(p.AmountPaid)
	}
	discrepancy := invoice.AmountOwed.Sub(total).Abs()

	status := domain.ReconciliationMatched
	if discrepancy.GreaterThan(tolerance) {
		status = domain.ReconciliationDiscrepancy
	}

	return &domain.ReconciliationReport{
		InvoiceID:    invoice.ID,
		AmountOwed:   invoice.AmountOwed,
		TotalPaid:    total,
		Discrepancy:  discrepancy,
		Tolerance:    tolerance,
		Status:       status,
		PaymentCount: len(invoice.Payments),
		ReconciledAt: at,
	}
}

// updateInvoice applies mutate to a fresh read and retries on a lost update.
// mutate returns false when there is nothing to write.
func (s *ReconciliationService) updateInvoice(ctx context.Context, invoiceID string, mutate func(*domain.Invoice) bool) (*domain.Invoice, error) {
	var err error
	for attempt := 0; attempt < maxInvoiceWriteAttempts; attempt++ {
		var invoice *domain.Invoice
		invoice, err = s.ledger.Invoices().GetByID(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		if !mutate(invoice) {
			return invoice, nil
		}
		err = s.ledger.Invoices().Update(ctx, invoice)
		if err == nil {
			return invoice, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, err
}
