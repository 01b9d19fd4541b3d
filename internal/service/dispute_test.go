package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/config"
	"paycore/internal/domain"
)

func openDispute(t *testing.T, h *harness, txn *domain.Transaction) *domain.Dispute {
	t.Helper()
	dispute, err := h.engine.Disputes.OpenDispute(context.Background(), OpenDisputeRequest{
		TransactionID: txn.ID,
		Type:          domain.DisputeTypeFraudClaim,
		Reason:        "cardholder does not recognise the charge",
	})
	require.NoError(t, err)
	return dispute
}

func TestOpenDispute_OnSettledTransaction(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	txn := h.settled(t, "70")

	dispute := openDispute(t, h, txn)
	assert.Equal(t, domain.DisputeStatusOpened, dispute.Status)
	assert.True(t, dispute.DueAt.After(dispute.InitiatedAt))
	assert.Equal(t, 45*24*time.Hour, dispute.DueAt.Sub(dispute.InitiatedAt))
	assert.Equal(t, domain.TransactionStatusSettled, dispute.PreDisputeStatus)
	assert.Equal(t, "70.00", dispute.Amount.StringFixed(2))

	txn, err := h.engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusDisputed, txn.Status)
	assert.True(t, txn.HasEvent(domain.EventDisputeOpened))

	_, err = h.engine.Refunds.RequestRefund(ctx, RefundRequest{TransactionID: txn.ID, Reason: domain.RefundReasonOther})
	assert.ErrorIs(t, err, ErrNotRefundable)

	_, err = h.engine.Disputes.OpenDispute(ctx, OpenDisputeRequest{TransactionID: txn.ID, Type: domain.DisputeTypeChargeback})
	assert.ErrorIs(t, err, ErrNotDisputable)

	disputes, err := h.engine.Disputes.ListDisputes(ctx, txn.ID)
	require.NoError(t, err)
	assert.Len(t, disputes, 1)
}

func TestOpenDispute_Rejections(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.Disputes.OpenDispute(ctx, OpenDisputeRequest{TransactionID: "x", Type: "NOPE"})
	assert.ErrorIs(t, err, ErrInvalidDisputeType)

	pending := authorizedOnly(t, h, "10")
	_, err = h.engine.Disputes.OpenDispute(ctx, OpenDisputeRequest{TransactionID: pending.ID, Type: domain.DisputeTypeBillingDispute})
	assert.ErrorIs(t, err, ErrNotDisputable)

	off := newHarness(t, withFeatures(func(f *config.Features) { f.DisputeHandling = false }))
	txn := off.captured(t, "10")
	_, err = off.engine.Disputes.OpenDispute(ctx, OpenDisputeRequest{TransactionID: txn.ID, Type: domain.DisputeTypeBillingDispute})
	assert.ErrorIs(t, err, ErrDisputeHandlingDisabled)
}

func TestSubmitEvidence(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	txn := h.captured(t, "70")
	dispute := openDispute(t, h, txn)

	_, err := h.engine.Disputes.SubmitEvidence(ctx, dispute.ID, EvidenceRequest{Description: "  "})
	assert.ErrorIs(t, err, ErrEmptyEvidence)

	dispute, err = h.engine.Disputes.SubmitEvidence(ctx, dispute.ID, EvidenceRequest{
		Description: "Signed delivery receipt",
		Documents:   []string{"receipt.pdf", "tracking.png"},
		SubmittedBy: "merchant-ops",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusEvidenceSubmitted, dispute.Status)
	require.Len(t, dispute.Evidence, 1)
	assert.Len(t, dispute.Evidence[0].Documents, 2)

	txn, err = h.engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusDisputed, txn.Status)

	h.clock.Advance(46 * 24 * time.Hour)
	_, err = h.engine.Disputes.SubmitEvidence(ctx, dispute.ID, EvidenceRequest{Description: "late"})
	assert.ErrorIs(t, err, ErrEvidenceWindowClosed)
}

func TestSubmitEvidence_ChargebackDefenseOff(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withFeatures(func(f *config.Features) { f.ChargebackDefense = false }))
	txn := h.captured(t, "70")
	dispute := openDispute(t, h, txn)

	_, err := h.engine.Disputes.SubmitEvidence(context.Background(), dispute.ID, EvidenceRequest{Description: "receipt"})
	assert.ErrorIs(t, err, ErrChargebackDefenseDisabled)
}

func TestResolveDispute_WonRestoresStatus(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	txn := h.settled(t, "70")
	dispute := openDispute(t, h, txn)

	dispute, err := h.engine.Disputes.ResolveDispute(ctx, dispute.ID, domain.DisputeOutcomeWon)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusWon, dispute.Status)
	assert.False(t, dispute.ResolvedAt.IsZero())

	txn, err = h.engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusSettled, txn.Status)
	assert.True(t, txn.HasEvent(domain.EventDisputeWon))

	again, err := h.engine.Disputes.ResolveDispute(ctx, dispute.ID, domain.DisputeOutcomeWon)
	require.NoError(t, err)
	assert.Equal(t, dispute.ResolvedAt, again.ResolvedAt)

	_, err = h.engine.Disputes.ResolveDispute(ctx, dispute.ID, domain.DisputeOutcomeLost)
	assert.ErrorIs(t, err, ErrDisputeResolved)

	_, err = h.engine.Disputes.SubmitEvidence(ctx, dispute.ID, EvidenceRequest{Description: "more"})
	assert.ErrorIs(t, err, ErrDisputeResolved)
}

func TestResolveDispute_LostRecordsChargeback(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withFeatures(autoRefund))
	ctx := context.Background()
	txn := h.captured(t, "100.00")

	_, err := h.engine.Refunds.RequestRefund(ctx, RefundRequest{TransactionID: txn.ID, Amount: dec("25.00"), Reason: domain.RefundReasonOther})
	require.NoError(t, err)

	dispute := openDispute(t, h, txn)
	assert.Equal(t, "75.00", dispute.Amount.StringFixed(2))

	dispute, err = h.engine.Disputes.ResolveDispute(ctx, dispute.ID, domain.DisputeOutcomeLost)
	require.NoError(t, err)
	assert.Equal(t, domain.DisputeStatusLost, dispute.Status)
	require.NotEmpty(t, dispute.ChargebackID)

	txn, err = h.engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusChargeback, txn.Status)
	assert.Equal(t, domain.RefundStateFull, txn.RefundState)
	assert.Equal(t, "100.00", txn.RefundedAmount.StringFixed(2))
	assert.True(t, txn.HasEvent(domain.EventDisputeLost))
	assert.True(t, txn.HasEvent(domain.EventChargeback))

	chargeback, err := h.engine.Refunds.GetRefund(ctx, dispute.ChargebackID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundReasonChargeback, chargeback.Reason)
	assert.Equal(t, domain.RefundStatusCompleted, chargeback.Status)
	assert.True(t, chargeback.ProcessingFee.IsZero())
	assert.Equal(t, "75.00", chargeback.Amount.StringFixed(2))

	_, _, _, refunds := h.gateway.calls()
	assert.Equal(t, 1, refunds)
}

func TestResolveDispute_LostCancelsPendingRefunds(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	ctx := context.Background()
	txn := h.settled(t, "50.00")

	pending, err := h.engine.Refunds.RequestRefund(ctx, RefundRequest{TransactionID: txn.ID, Amount: dec("30.00"), Reason: domain.RefundReasonOther})
	require.NoError(t, err)
	require.Equal(t, domain.RefundStatusPending, pending.Status)

	dispute := openDispute(t, h, txn)
	assert.Equal(t, "50.00", dispute.Amount.StringFixed(2))

	_, err = h.engine.Disputes.ResolveDispute(ctx, dispute.ID, domain.DisputeOutcomeLost)
	require.NoError(t, err)

	pending, err = h.engine.Refunds.GetRefund(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RefundStatusCancelled, pending.Status)
	assert.False(t, pending.Reserves())

	refunds, err := h.engine.Refunds.ListRefunds(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", reservedAmount(refunds).StringFixed(2))

	txn, err = h.engine.Payments.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusChargeback, txn.Status)
	assert.Equal(t, "50.00", txn.RefundedAmount.StringFixed(2))
	assert.True(t, txn.HasEvent(domain.EventRefundCancelled))
	assert.Contains(t, h.publisher.types(txn.ID), domain.EventRefundCancelled)

	_, err = h.engine.Refunds.ApproveRefund(ctx, pending.ID)
	assert.ErrorIs(t, err, ErrRefundNotPending)

	_, _, _, gatewayRefunds := h.gateway.calls()
	assert.Zero(t, gatewayRefunds)
}

func TestResolveDispute_InvalidOutcome(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	txn := h.captured(t, "10")
	dispute := openDispute(t, h, txn)

	_, err := h.engine.Disputes.ResolveDispute(context.Background(), dispute.ID, "SETTLED")
	assert.ErrorIs(t, err, ErrInvalidDisputeOutcome)
}
