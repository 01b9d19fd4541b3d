package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/config"
	"paycore/internal/domain"
	"paycore/internal/service"
)

// ──────────────────────────────────────────────
// 1. PAYMENT SUBMISSION
// ──────────────────────────────────────────────

func TestLifecycle_CardPaymentWithFraudDetectionOffIsCaptured(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewFixture(func(cfg *config.Config) {
		cfg.Features.FraudDetection = false
	})

	intent := CardIntent("C1", "50.00")
	txn, err := f.Engine.Payments.SubmitPayment(ctx, intent)
	require.NoError(t, err)

	assert.Equal(t, domain.TransactionStatusCaptured, txn.Status)
	require.NotNil(t, txn.Authorization)
	assert.True(t, txn.Authorization.AuthorizedAmount.Equal(decimal.RequireFromString("50.00")))

	// AUTHORIZED is reached before CAPTURED and both are published.
	types := f.Sink.TypesFor(txn.ID)
	authAt, capAt := indexOf(types, domain.EventAuthorized), indexOf(types, domain.EventCaptured)
	require.GreaterOrEqual(t, authAt, 0, "no AUTHORIZED event in %v", types)
	assert.Greater(t, capAt, authAt)
	assert.Contains(t, types, domain.EventRiskSkipped)

	// Published sequences are strictly increasing from 1.
	seqs := f.Sink.SequencesFor(txn.ID)
	for i, s := range seqs {
		assert.Equal(t, i+1, s)
	}

	assert.EqualValues(t, 1, f.Gateway.AuthorizeCallCount)
	assert.EqualValues(t, 1, f.Gateway.CaptureCallCount)

	stored, err := f.Engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, txn.ReferenceNumber, stored.ReferenceNumber)
	assert.Len(t, stored.Events, len(types))
}

func TestLifecycle_HighRiskPaymentFailsWithoutAuthorization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewFixture(func(cfg *config.Config) {
		cfg.Policy.HighRiskCountries = []string{"XX"}
	})

	// 21 recent payments push the velocity sub-score to its maximum.
	for i := 0; i < 21; i++ {
		txn, err := f.Engine.Payments.SubmitPayment(ctx, CardIntent("C9", "10.00"))
		require.NoError(t, err)
		require.Equal(t, domain.TransactionStatusCaptured, txn.Status)
	}
	authorizeCalls := f.Gateway.AuthorizeCallCount

	// amount 0.7, cash 0.5, geography 1.0, velocity 1.0.
	txn, err := f.Engine.Payments.SubmitPayment(ctx, service.PaymentIntent{
		CustomerID:    "C9",
		Amount:        decimal.NewFromInt(20000),
		Currency:      "USD",
		PaymentMethod: "CASH",
		Country:       "XX",
	})
	require.ErrorIs(t, err, service.ErrFraudRejected)
	require.NotNil(t, txn)

	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
	assert.Nil(t, txn.Authorization)
	require.NotNil(t, txn.Compliance)
	assert.InDelta(t, 0.80, txn.Compliance.OverallScore, 1e-9)
	assert.Equal(t, domain.RiskTierHigh, txn.Compliance.RiskTier)
	assert.True(t, txn.Compliance.FraudDetected)

	assert.Equal(t, authorizeCalls, f.Gateway.AuthorizeCallCount, "gateway must not be called")
	assert.NotContains(t, f.Sink.TypesFor(txn.ID), domain.EventAuthorized)
	assert.Contains(t, f.Sink.TypesFor(txn.ID), domain.EventFraudRejected)

	stored, err := f.Engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Authorization)
}

func TestLifecycle_IdempotentResubmission(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFixture()

	intent := CardIntent("C1", "75.00")
	intent.IdempotencyKey = "order-42-attempt-1"

	var wg sync.WaitGroup
	ids := make([]string, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn, err := f.Engine.Payments.SubmitPayment(ctx, intent)
			if assert.NoError(t, err) {
				ids[i] = txn.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	list, err := f.Engine.Payments.ListTransactions(ctx, "C1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.EqualValues(t, 1, f.Gateway.AuthorizeCallCount)
}

// ──────────────────────────────────────────────
// 2. REFUNDS
// ──────────────────────────────────────────────

func TestLifecycle_AutoRefundPartialThenFull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewFixture(func(cfg *config.Config) {
		cfg.Features.AutoRefund = true
	})

	txn, err := f.Engine.Payments.SubmitPayment(ctx, CardIntent("C1", "50.00"))
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatusCaptured, txn.Status)

	first, err := f.Engine.Refunds.RequestRefund(ctx, service.RefundRequest{
		TransactionID: txn.ID,
		Amount:        decimal.RequireFromString("30.00"),
		Reason:        domain.RefundReasonCustomerRequest,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusProcessing, first.Status)

	txn, err = f.Engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCaptured, txn.Status)
	assert.Equal(t, domain.RefundStatePartial, txn.RefundState)
	assert.True(t, txn.RefundedAmount.Equal(decimal.NewFromInt(30)))

	second, err := f.Engine.Refunds.RequestRefund(ctx, service.RefundRequest{
		TransactionID: txn.ID,
		Amount:        decimal.RequireFromString("20.00"),
		Reason:        domain.RefundReasonCustomerRequest,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusProcessing, second.Status)

	txn, err = f.Engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, txn.Status)
	assert.Equal(t, domain.RefundStateFull, txn.RefundState)

	// Nothing is left to refund.
	_, err = f.Engine.Refunds.RequestRefund(ctx, service.RefundRequest{
		TransactionID: txn.ID,
		Amount:        decimal.RequireFromString("0.01"),
		Reason:        domain.RefundReasonCustomerRequest,
	})
	assert.Error(t, err)

	refunds, err := f.Engine.Refunds.ListRefunds(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, refunds, 2)
	assert.EqualValues(t, 2, f.Gateway.RefundCallCount)
}

func TestLifecycle_ConcurrentRefundsNeverExceedCapture(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := NewFixture(func(cfg *config.Config) {
		cfg.Features.AutoRefund = true
	})
	txn, err := f.Engine.Payments.SubmitPayment(ctx, CardIntent("C1", "100.00"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.Engine.Refunds.RequestRefund(ctx, service.RefundRequest{
				TransactionID: txn.ID,
				Amount:        decimal.RequireFromString("30.00"),
				Reason:        domain.RefundReasonDuplicateCharge,
			})
		}()
	}
	wg.Wait()

	txn, err = f.Engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, txn.RefundedAmount.Equal(decimal.NewFromInt(90)), "refunded %s", txn.RefundedAmount)
	assert.Zero(t, f.Locker.Held())
}

// ──────────────────────────────────────────────
// 3. SETTLEMENT, DISPUTES AND RECONCILIATION
// ──────────────────────────────────────────────

func TestLifecycle_DisputeOnSettledTransaction(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFixture()

	txn, err := f.Engine.Payments.SubmitPayment(ctx, CardIntent("C1", "120.00"))
	require.NoError(t, err)
	txn, err = f.Engine.Settlement.ConfirmSettlement(ctx, txn.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatusSettled, txn.Status)

	f.Clock.Advance(72 * time.Hour)
	dispute, err := f.Engine.Disputes.OpenDispute(ctx, service.OpenDisputeRequest{
		TransactionID: txn.ID,
		Type:          domain.DisputeTypeChargeback,
		Reason:        "item not received",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusOpened, dispute.Status)
	assert.True(t, dispute.DueAt.After(dispute.InitiatedAt))

	txn, err = f.Engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusDisputed, txn.Status)

	// Winning restores the status held before the dispute.
	dispute, err = f.Engine.Disputes.ResolveDispute(ctx, dispute.ID, domain.DisputeOutcomeWon)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusWon, dispute.Status)

	txn, err = f.Engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSettled, txn.Status)
}

func TestLifecycle_InvoiceSettlesAndReconciles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFixture()

	_, err := f.Engine.Reconciliation.RegisterInvoice(ctx, service.RegisterInvoiceRequest{
		InvoiceID:  "INV-100",
		CustomerID: "C1",
		AmountOwed: decimal.RequireFromString("80.00"),
		Currency:   "USD",
	})
	require.NoError(t, err)

	for _, amount := range []string{"50.00", "30.00"} {
		intent := CardIntent("C1", amount)
		intent.InvoiceID = "INV-100"
		txn, err := f.Engine.Payments.SubmitPayment(ctx, intent)
		require.NoError(t, err)
		_, err = f.Engine.Settlement.ConfirmSettlement(ctx, txn.ID)
		require.NoError(t, err)

		// Settling twice records the invoice payment once.
		_, err = f.Engine.Settlement.ConfirmSettlement(ctx, txn.ID)
		require.NoError(t, err)
	}

	report, err := f.Engine.Reconciliation.Reconcile(ctx, "INV-100")
	require.NoError(t, err)
	assert.Equal(t, domain.ReconciliationMatched, report.Status)
	assert.Equal(t, 2, report.PaymentCount)
	assert.True(t, report.TotalPaid.Equal(decimal.NewFromInt(80)), "total %s", report.TotalPaid)
}

// ──────────────────────────────────────────────
// 4. RECURRING BILLING
// ──────────────────────────────────────────────

func TestLifecycle_RecurringScheduleBillsWhenDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := NewFixture()

	rp, err := f.Engine.Recurring.Setup(ctx, service.RecurringRequest{
		CustomerID:    "C5",
		Amount:        decimal.RequireFromString("19.99"),
		Currency:      "USD",
		PaymentMethod: "DIGITAL_WALLET",
		Frequency:     domain.FrequencyWeekly,
		StartDate:     f.Clock.Now(),
	})
	require.NoError(t, err)
	firstBilling := rp.NextBillingDate

	attempted, err := f.Engine.Recurring.ExecuteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, attempted, "nothing is due before the first billing date")

	f.Clock.Advance(7 * 24 * time.Hour)
	attempted, err = f.Engine.Recurring.ExecuteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)

	rp, err = f.Engine.Recurring.Get(ctx, rp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rp.ExecutionCount)
	assert.Equal(t, firstBilling.AddDate(0, 0, 7), rp.NextBillingDate)
	require.Len(t, rp.Executions, 1)

	txn, err := f.Engine.Payments.GetTransaction(ctx, rp.Executions[0].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCaptured, txn.Status)
	assert.Equal(t, "C5", txn.CustomerID)

	summary, err := f.Engine.Summary.CustomerSummary(ctx, "C5")
	require.NoError(t, err)
	assert.NotNil(t, summary)
}

// ──────────────────────────────────────────────
// HELPERS
// ──────────────────────────────────────────────

func indexOf(types []domain.EventType, want domain.EventType) int {
	for i, tt := range types {
		if tt == want {
			return i
		}
	}
	return -1
}
