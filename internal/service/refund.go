package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/gateway"
	"paycore/internal/lock"
	"paycore/internal/repository"
)

// RefundService creates refunds against captured or settled transactions and
// drives them to completion.
type RefundService struct {
	*core
}

// RefundRequest contains the parameters for requesting a refund.
type RefundRequest struct {
	TransactionID string
	Amount        decimal.Decimal // Optional: zero refunds the whole remaining balance
	Reason        domain.RefundReason
	Notes         string
}

// RequestRefund creates a PENDING refund. With auto-refund enabled it is
// executed immediately and returned PROCESSING.
func (s *RefundService) RequestRefund(ctx context.Context, req RefundRequest) (*domain.Refund, error) {
	defer segment(ctx, "RefundService.RequestRefund").End()

	if req.TransactionID == "" {
		return nil, ErrInvalidTransactionID
	}
	if !req.Reason.Valid() || req.Reason == domain.RefundReasonChargeback {
		return nil, ErrInvalidRefundReason
	}
	if req.Amount.IsNegative() {
		return nil, ErrInvalidAmount
	}

	release, err := s.lock(ctx, lock.TransactionKey(req.TransactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if !txn.Status.Refundable() {
		return nil, fmt.Errorf("%w: transaction is %s", ErrNotRefundable, txn.Status)
	}

	existing, err := s.ledger.Refunds().ListByTransaction(ctx, txn.ID)
	if err != nil {
		return nil, err
	}
	available := txn.Amount.Sub(reservedAmount(existing))
	if !available.IsPositive() {
		return nil, ErrRefundExceedsBalance
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = available
	}
	if amount.GreaterThan(available) {
		return nil, fmt.Errorf("%w: requested %s, available %s",
			ErrRefundExceedsBalance, amount.StringFixed(2), available.StringFixed(2))
	}

	if amount.Equal(txn.Amount) {
		if !s.features.FullRefund {
			return nil, ErrFullRefundDisabled
		}
	} else if !s.features.PartialRefund {
		return nil, ErrPartialRefundDisabled
	}

	now := s.now()
	fee := domain.MustMethod(txn.PaymentMethod).RefundFee(amount, s.policy.RefundFeePercentage)
	refund := &domain.Refund{
		ID:               uuid.New().String(),
		TransactionID:    txn.ID,
		CustomerID:       txn.CustomerID,
		Amount:           amount,
		Currency:         txn.Currency,
		Status:           domain.RefundStatusPending,
		Reason:           req.Reason,
		Notes:            req.Notes,
		ProcessingFee:    fee,
		RefundableAmount: amount.Sub(fee),
		InitiatedAt:      now,
	}

	mark := len(txn.Events)
	txn.AppendEvent(domain.EventRefundRequested,
		fmt.Sprintf("Refund %s of %s requested (%s)", refund.ID, amount.StringFixed(2), req.Reason),
		actorSystem, now)

	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		if err := l.Refunds().Create(ctx, refund); err != nil {
			return err
		}
		return l.Transactions().Update(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, txn, mark)
	refundCounter.WithLabelValues(string(refund.Status)).Inc()

	if !s.features.AutoRefund {
		return refund, nil
	}
	if err := s.execute(ctx, txn, refund, "Refund auto-approved"); err != nil {
		return refund, err
	}
	return refund, nil
}

// reservedAmount is the part of a transaction already claimed by refunds
// that are pending, in flight or completed.
func reservedAmount(refunds []*domain.Refund) decimal.Decimal {
	total := decimal.Zero
	for _, r := range refunds {
		if r.Reserves() {
			total = total.Add(r.Amount)
		}
	}
	return total
}

// execute records the refund as in flight, sends it to the gateway and then
// records the answer. A gateway failure leaves the refund FAILED and its
// reservation released; success moves the money on the transaction. A refund
// already in flight is resent under the same RefundID without being recorded
// twice. Callers hold the transaction lock.
func (s *RefundService) execute(ctx context.Context, txn *domain.Transaction, refund *domain.Refund, note string) error {
	channel := gateway.ChannelDefault
	if txn.Settlement != nil {
		channel = txn.Settlement.Channel
	}

	if !refund.InFlight() {
		now := s.now()
		mark := len(txn.Events)
		refund.Status = domain.RefundStatusProcessing
		refund.SubmittedAt = now
		if note != "" {
			txn.AppendEvent(domain.EventRefundApproved, fmt.Sprintf("%s: %s", note, refund.ID), actorSystem, now)
		}
		txn.AppendEvent(domain.EventRefundSubmitted,
			fmt.Sprintf("Refund %s of %s sent via %s channel", refund.ID, refund.RefundableAmount.StringFixed(2), channel),
			actorSystem, now)
		if err := s.saveRefund(ctx, txn, refund, mark); err != nil {
			return err
		}
	}

	started := time.Now()
	result, gwErr := s.gateway.Refund(ctx, gateway.RefundRequest{
		RefundID:      refund.ID,
		TransactionID: txn.ID,
		Channel:       channel,
		Amount:        refund.RefundableAmount,
		Currency:      refund.Currency,
	})
	observeGateway("refund", started, gwErr)

	now := s.now()
	mark := len(txn.Events)

	if gwErr != nil {
		refund.Status = domain.RefundStatusFailed
		refund.FailureReason = gwErr.Error()
		refund.ProcessedAt = now
		txn.AppendEvent(domain.EventRefundFailed,
			fmt.Sprintf("Refund %s failed: %v", refund.ID, gwErr), actorSystem, now)
	} else {
		refund.GatewayRef = result.Reference
		refund.ProcessedAt = now
		if err := applyRefund(txn, refund.Amount, now); err != nil {
			return err
		}
	}

	if err := s.saveRefund(ctx, txn, refund, mark); err != nil {
		s.logger.ErrorContext(ctx, "failed to record refund outcome",
			"refund_id", refund.ID, "transaction_id", txn.ID, "gateway_error", gwErr, "error", err)
		return err
	}
	refundCounter.WithLabelValues(string(refund.Status)).Inc()

	if gwErr != nil {
		return gatewayError(gwErr)
	}
	return nil
}

// saveRefund writes refund and txn together and publishes the events
// appended since mark.
func (s *RefundService) saveRefund(ctx context.Context, txn *domain.Transaction, refund *domain.Refund, mark int) error {
	err := s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		if err := l.Refunds().Update(ctx, refund); err != nil {
			return err
		}
		return l.Transactions().Update(ctx, txn)
	})
	if err != nil {
		return err
	}
	s.committed(ctx, txn, mark)
	return nil
}

// applyRefund adds amount to the refunded total and records whether the
// transaction is now partially or fully refunded.
func applyRefund(txn *domain.Transaction, amount decimal.Decimal, at time.Time) error {
	txn.RefundedAmount = txn.RefundedAmount.Add(amount)

	if txn.RefundedAmount.Equal(txn.Amount) {
		if err := txn.TransitionTo(domain.TransactionStatusRefunded, at); err != nil {
			return err
		}
		txn.RefundState = domain.RefundStateFull
		txn.AppendEvent(domain.EventRefunded,
			"Fully refunded "+txn.RefundedAmount.StringFixed(2), actorSystem, at)
		return nil
	}

	txn.RefundState = domain.RefundStatePartial
	txn.AppendEvent(domain.EventPartiallyRefunded,
		fmt.Sprintf("Refunded %s of %s", txn.RefundedAmount.StringFixed(2), txn.Amount.StringFixed(2)),
		actorSystem, at)
	return nil
}

// lockRefund locks the refund's transaction and then the refund, and returns
// fresh copies of both.
func (s *RefundService) lockRefund(ctx context.Context, refundID string) (*domain.Transaction, *domain.Refund, func(), error) {
	if refundID == "" {
		return nil, nil, nil, ErrInvalidID
	}

	peek, err := s.ledger.Refunds().GetByID(ctx, refundID)
	if err != nil {
		return nil, nil, nil, err
	}

	release, err := s.lock(ctx, lock.TransactionKey(peek.TransactionID), lock.RefundKey(refundID))
	if err != nil {
		return nil, nil, nil, err
	}

	refund, err := s.ledger.Refunds().GetByID(ctx, refundID)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	txn, err := s.ledger.Transactions().GetByID(ctx, refund.TransactionID)
	if err != nil {
		release()
		return nil, nil, nil, err
	}
	return txn, refund, release, nil
}

// ApproveRefund executes a PENDING refund. A refund left in flight by an
// interrupted attempt is resent and its outcome recorded.
func (s *RefundService) ApproveRefund(ctx context.Context, refundID string) (*domain.Refund, error) {
	defer segment(ctx, "RefundService.ApproveRefund").End()

	txn, refund, release, err := s.lockRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	defer release()

	if refund.Status != domain.RefundStatusPending && !refund.InFlight() {
		return nil, ErrRefundNotPending
	}
	if !txn.Status.Refundable() {
		return nil, fmt.Errorf("%w: transaction is %s", ErrNotRefundable, txn.Status)
	}

	if err := s.execute(ctx, txn, refund, "Refund approved"); err != nil {
		return refund, err
	}
	return refund, nil
}

// CompleteRefund marks a PROCESSING refund as COMPLETED once the funds have
// been returned.
func (s *RefundService) CompleteRefund(ctx context.Context, refundID string) (*domain.Refund, error) {
	defer segment(ctx, "RefundService.CompleteRefund").End()

	_, refund, release, err := s.lockRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	defer release()

	if refund.Status == domain.RefundStatusCompleted {
		return refund, nil
	}
	if refund.Status != domain.RefundStatusProcessing {
		return nil, ErrRefundNotProcessing
	}
	if refund.InFlight() {
		return nil, ErrRefundInFlight
	}

	refund.Status = domain.RefundStatusCompleted
	refund.CompletedAt = s.now()
	if err := s.ledger.Refunds().Update(ctx, refund); err != nil {
		return nil, err
	}
	refundCounter.WithLabelValues(string(refund.Status)).Inc()
	s.logger.InfoContext(ctx, "refund completed", "refund_id", refund.ID, "transaction_id", refund.TransactionID)
	return refund, nil
}

// CancelRefund cancels a PENDING refund and releases its reservation.
func (s *RefundService) CancelRefund(ctx context.Context, refundID, reason string) (*domain.Refund, error) {
	defer segment(ctx, "RefundService.CancelRefund").End()

	txn, refund, release, err := s.lockRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	defer release()

	if refund.Status != domain.RefundStatusPending {
		return nil, ErrRefundNotPending
	}

	now := s.now()
	refund.Status = domain.RefundStatusCancelled
	refund.FailureReason = reason
	refund.ProcessedAt = now

	mark := len(txn.Events)
	description := "Refund " + refund.ID + " cancelled"
	if reason != "" {
		description += ": " + reason
	}
	txn.AppendEvent(domain.EventRefundCancelled, description, actorSystem, now)

	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		if err := l.Refunds().Update(ctx, refund); err != nil {
			return err
		}
		return l.Transactions().Update(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, txn, mark)
	refundCounter.WithLabelValues(string(refund.Status)).Inc()
	return refund, nil
}

// GetRefund retrieves a refund by ID.
func (s *RefundService) GetRefund(ctx context.Context, refundID string) (*domain.Refund, error) {
	if refundID == "" {
		return nil, ErrInvalidID
	}
	return s.ledger.Refunds().GetByID(ctx, refundID)
}

// ListRefunds lists the refunds of one transaction, oldest first.
func (s *RefundService) ListRefunds(ctx context.Context, transactionID string) ([]*domain.Refund, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}
	if _, err := s.ledger.Transactions().GetByID(ctx, transactionID); err != nil {
		return nil, err
	}
	return s.ledger.Refunds().ListByTransaction(ctx, transactionID)
}
