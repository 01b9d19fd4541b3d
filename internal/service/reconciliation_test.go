package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/config"
	"paycore/internal/domain"
	"paycore/internal/repository"
)

func TestReconcileInvoice(t *testing.T) {
	t.Parallel()
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	invoice := func(owed string, paid ...string) *domain.Invoice {
		inv := &domain.Invoice{ID: "INV", AmountOwed: dec(owed)}
		for _, p := range paid {
			inv.Payments = append(inv.Payments, domain.PaymentRecord{AmountPaid: dec(p)})
		}
		return inv
	}

	testCases := []struct {
		name        string
		invoice     *domain.Invoice
		tolerance   decimal.Decimal
		status      domain.ReconciliationStatus
		discrepancy string
	}{
		{"exact match", invoice("100.00", "60.00", "40.00"), decimal.Zero, domain.ReconciliationMatched, "0.00"},
		{"underpaid", invoice("100.00", "99.99"), decimal.Zero, domain.ReconciliationDiscrepancy, "0.01"},
		{"overpaid", invoice("100.00", "100.50"), decimal.Zero, domain.ReconciliationDiscrepancy, "0.50"},
		{"within tolerance", invoice("100.00", "99.99"), dec("0.01"), domain.ReconciliationMatched, "0.01"},
		{"nothing paid", invoice("10.00"), dec("0.01"), domain.ReconciliationDiscrepancy, "10.00"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			report := reconcileInvoice(tc.invoice, tc.tolerance, at)
			assert.Equal(t, tc.status, report.Status)
			assert.Equal(t, tc.discrepancy, report.Discrepancy.StringFixed(2))
			assert.Equal(t, len(tc.invoice.Payments), report.PaymentCount)
			assert.Equal(t, at, report.ReconciledAt)
		})
	}
}

func TestReconcile_OnlyTouchesTimestamp(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Reconciliation.RegisterInvoice(ctx, RegisterInvoiceRequest{
		InvoiceID:  "INV-7",
		CustomerID: "C1",
		AmountOwed: dec("200.00"),
		Currency:   "usd",
	})
	require.NoError(t, err)

	_, err = h.engine.Reconciliation.RecordInvoicePayment(ctx, "INV-7", RecordPaymentRequest{
		PaymentID:     "P-1",
		AmountPaid:    dec("150.00"),
		PaymentMethod: domain.PaymentMethodBankTransfer,
	})
	require.NoError(t, err)

	// Recording the same payment twice is a no-op.
	invoice, err := h.engine.Reconciliation.RecordInvoicePayment(ctx, "INV-7", RecordPaymentRequest{
		PaymentID:  "P-1",
		AmountPaid: dec("150.00"),
	})
	require.NoError(t, err)
	require.Len(t, invoice.Payments, 1)

	first, err := h.engine.Reconciliation.Reconcile(ctx, "INV-7")
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationDiscrepancy, first.Status)
	assert.Equal(t, "50.00", first.Discrepancy.StringFixed(2))

	h.clock.Advance(time.Hour)
	second, err := h.engine.Reconciliation.Reconcile(ctx, "INV-7")
	require.NoError(t, err)
	assert.Equal(t, first.Status, second.Status)
	assert.True(t, first.Discrepancy.Equal(second.Discrepancy))

	invoice, err = h.engine.Reconciliation.GetInvoice(ctx, "INV-7")
	require.NoError(t, err)
	assert.Len(t, invoice.Payments, 1)
	assert.Equal(t, "USD", invoice.Currency)
	assert.Equal(t, h.clock.Now(), invoice.LastReconciledAt)
}

func TestReconcile_ConfigurableTolerance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withPolicy(func(p *config.Policy) { p.ReconciliationTolerance = dec("0.05") }))
	ctx := context.Background()

	_, err := h.engine.Reconciliation.RegisterInvoice(ctx, RegisterInvoiceRequest{InvoiceID: "INV-8", CustomerID: "C1", AmountOwed: dec("10.00")})
	require.NoError(t, err)
	_, err = h.engine.Reconciliation.RecordInvoicePayment(ctx, "INV-8", RecordPaymentRequest{AmountPaid: dec("9.96")})
	require.NoError(t, err)

	report, err := h.engine.Reconciliation.Reconcile(ctx, "INV-8")
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationMatched, report.Status)
}

func TestReconciliation_Rejections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Reconciliation.RegisterInvoice(ctx, RegisterInvoiceRequest{CustomerID: "C1", AmountOwed: dec("1")})
	assert.ErrorIs(t, err, ErrInvalidInvoice)

	_, err = h.engine.Reconciliation.RegisterInvoice(ctx, RegisterInvoiceRequest{InvoiceID: "INV-9", CustomerID: "C1", AmountOwed: dec("1")})
	require.NoError(t, err)
	_, err = h.engine.Reconciliation.RegisterInvoice(ctx, RegisterInvoiceRequest{InvoiceID: "INV-9", CustomerID: "C1", AmountOwed: dec("1")})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.True(t, IsConflict(err))

	_, err = h.engine.Reconciliation.RecordInvoicePayment(ctx, "INV-9", RecordPaymentRequest{AmountPaid: decimal.Zero})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = h.engine.Reconciliation.Reconcile(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	off := newHarness(t, withFeatures(func(f *config.Features) { f.Reconciliation = false }))
	_, err = off.engine.Reconciliation.Reconcile(ctx, "INV-9")
	assert.ErrorIs(t, err, ErrReconciliationDisabled)
}
