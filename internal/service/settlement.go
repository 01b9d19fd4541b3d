package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/gateway"
	"paycore/internal/lock"
	"paycore/internal/repository"
)

// Route selects the settlement channel. It depends only on its arguments.
func Route(amount decimal.Decimal, method domain.PaymentMethod, highValue decimal.Decimal, intelligent bool) string {
	if !intelligent {
		return gateway.ChannelDefault
	}
	switch {
	case amount.GreaterThan(highValue):
		return gateway.ChannelHighCapacity
	case method == domain.PaymentMethodDigitalWallet:
		return gateway.ChannelWallet
	default:
		return gateway.ChannelDefault
	}
}

// SettlementService confirms, retries and verifies settlements of captured funds.
type SettlementService struct {
	*core
}

// ConfirmSettlement moves a CAPTURED transaction to SETTLED. Confirming an
// already SETTLED transaction returns it unchanged.
func (s *SettlementService) ConfirmSettlement(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	defer segment(ctx, "SettlementService.ConfirmSettlement").End()

	if !s.features.Settlement {
		return nil, ErrSettlementDisabled
	}

	release, err := s.lock(ctx, lock.TransactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if txn.Status == domain.TransactionStatusSettled {
		return txn, nil
	}
	if txn.Status != domain.TransactionStatusCaptured {
		return nil, &domain.TransitionError{From: txn.Status, To: domain.TransactionStatusSettled}
	}
	if txn.Settlement == nil {
		return nil, ErrNotSettled
	}

	mark := len(txn.Events)
	now := s.now()
	if err := txn.TransitionTo(domain.TransactionStatusSettled, now); err != nil {
		return nil, err
	}
	txn.Settlement.Status = domain.SettlementStatusSettled
	txn.Settlement.SettledAt = now
	txn.Settlement.NextRetryAt = time.Time{}
	txn.AppendEvent(domain.EventSettled,
		fmt.Sprintf("Settled %s %s via %s", txn.Settlement.Amount.StringFixed(2), txn.Settlement.Currency, txn.Settlement.Channel),
		actorSystem, now)

	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		if err := l.Transactions().Update(ctx, txn); err != nil {
			return err
		}
		return s.recordInvoicePayment(ctx, l, txn, now)
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, txn, mark)
	return txn, nil
}

// recordInvoicePayment appends the settled transaction to its invoice, once.
// An unknown invoice is logged and skipped; billing may register it later.
func (s *SettlementService) recordInvoicePayment(ctx context.Context, l repository.Ledger, txn *domain.Transaction, at time.Time) error {
	if txn.InvoiceID == "" {
		return nil
	}

	invoice, err := l.Invoices().GetByID(ctx, txn.InvoiceID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.WarnContext(ctx, "settled transaction references unknown invoice",
			"transaction_id", txn.ID, "invoice_id", txn.InvoiceID)
		return nil
	}
	if err != nil {
		return err
	}
	if invoice.HasPayment(txn.ID) {
		return nil
	}

	invoice.Payments = append(invoice.Payments, domain.PaymentRecord{
		PaymentID:       txn.ID,
		AmountPaid:      txn.Amount,
		PaymentDate:     at,
		PaymentMethod:   txn.PaymentMethod,
		ReferenceNumber: txn.ReferenceNumber,
	})
	return l.Invoices().Update(ctx, invoice)
}

// ReportSettlementFailure records a failed settlement attempt reported by the
// channel. The transaction stays CAPTURED; the settlement is either scheduled
// for retry with backoff or marked FAILED once retries are exhausted.
func (s *SettlementService) ReportSettlementFailure(ctx context.Context, transactionID, reason string) (*domain.Transaction, error) {
	defer segment(ctx, "SettlementService.ReportSettlementFailure").End()

	if !s.features.Settlement {
		return nil, ErrSettlementDisabled
	}

	release, err := s.lock(ctx, lock.TransactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := requireOpenSettlement(txn); err != nil {
		return nil, err
	}

	mark := len(txn.Events)
	s.markSettlementFailure(txn, reason)
	if err := s.saveTransaction(ctx, txn, mark); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *SettlementService) markSettlementFailure(txn *domain.Transaction, reason string) {
	now := s.now()
	settlement := txn.Settlement
	settlement.RetryCount++
	settlement.FailureReason = reason

	if !s.features.RetryLogic || settlement.RetryCount >= s.policy.MaxSettlementRetries {
		settlement.Status = domain.SettlementStatusFailed
		settlement.NextRetryAt = time.Time{}
		txn.AppendEvent(domain.EventSettlementFailed,
			fmt.Sprintf("Settlement failed after %d attempt(s): %s", settlement.RetryCount, reason),
			actorSystem, now)
		return
	}

	settlement.Status = domain.SettlementStatusPending
	settlement.NextRetryAt = now.Add(backoff(settlementRetryBase, settlement.RetryCount))
	txn.AppendEvent(domain.EventSettlementFailed,
		fmt.Sprintf("Settlement attempt %d failed: %s; retry at %s",
			settlement.RetryCount, reason, settlement.NextRetryAt.Format(time.RFC3339)),
		actorSystem, now)
}

// RetrySettlement resubmits a failed settlement to its channel.
func (s *SettlementService) RetrySettlement(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	defer segment(ctx, "SettlementService.RetrySettlement").End()

	if !s.features.Settlement {
		return nil, ErrSettlementDisabled
	}

	release, err := s.lock(ctx, lock.TransactionKey(transactionID))
	if err != nil {
		return nil, err
	}
	defer release()

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := requireOpenSettlement(txn); err != nil {
		return nil, err
	}
	if txn.Settlement.Status == domain.SettlementStatusProcessing {
		return txn, nil
	}

	authCode := ""
	if txn.Authorization != nil {
		authCode = txn.Authorization.Code
	}

	started := time.Now()
	result, err := s.gateway.Capture(ctx, gateway.CaptureRequest{
		TransactionID:     txn.ID,
		AuthorizationCode: authCode,
		Channel:           txn.Settlement.Channel,
		Amount:            txn.Amount,
		Currency:          txn.Currency,
	})
	observeGateway("capture", started, err)

	mark := len(txn.Events)
	if err != nil {
		if txn.Settlement.Status != domain.SettlementStatusFailed {
			s.markSettlementFailure(txn, err.Error())
		} else {
			txn.AppendEvent(domain.EventSettlementFailed, "Settlement retry failed: "+err.Error(), actorSystem, s.now())
		}
		if saveErr := s.saveTransaction(ctx, txn, mark); saveErr != nil {
			return nil, saveErr
		}
		return txn, gatewayError(err)
	}

	now := s.now()
	txn.Settlement.Status = domain.SettlementStatusProcessing
	txn.Settlement.GatewayRef = result.Reference
	txn.Settlement.NextRetryAt = time.Time{}
	txn.Settlement.ProjectedAt = now.Add(s.policy.SettlementDelay)
	txn.AppendEvent(domain.EventSettlementRetried,
		fmt.Sprintf("Settlement resubmitted via %s (attempt %d)", txn.Settlement.Channel, txn.Settlement.RetryCount+1),
		actorSystem, now)
	if err := s.saveTransaction(ctx, txn, mark); err != nil {
		return nil, err
	}
	return txn, nil
}

func requireOpenSettlement(txn *domain.Transaction) error {
	if txn.Status != domain.TransactionStatusCaptured {
		return fmt.Errorf("%w: transaction is %s", ErrNotSettled, txn.Status)
	}
	if txn.Settlement == nil {
		return ErrNotSettled
	}
	return nil
}

// ReconcileSettlement checks that the settlement amount divided by the
// applied quote matches the transaction amount within tolerance. It reads
// a snapshot and writes nothing.
func (s *SettlementService) ReconcileSettlement(ctx context.Context, transactionID string) (*domain.SettlementCheck, error) {
	if !s.features.Reconciliation {
		return nil, ErrReconciliationDisabled
	}

	txn, err := s.loadTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Settlement == nil {
		return nil, ErrNotSettled
	}

	rate := txn.Settlement.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	converted := txn.Settlement.Amount.DivRound(rate, 2)
	discrepancy := converted.Sub(txn.Amount).Abs()

	status := domain.ReconciliationMatched
	if discrepancy.GreaterThan(s.policy.ReconciliationTolerance) {
		status = domain.ReconciliationDiscrepancy
	}

	return &domain.SettlementCheck{
		TransactionID:    txn.ID,
		Amount:           txn.Amount,
		SettlementAmount: txn.Settlement.Amount,
		ExchangeRate:     txn.Settlement.ExchangeRate,
		Converted:        converted,
		Discrepancy:      discrepancy,
		Status:           status,
	}, nil
}
