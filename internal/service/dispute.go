package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/lock"
	"paycore/internal/repository"
)

// DisputeService opens disputes, collects evidence and applies outcomes back
// onto the disputed transaction.
type DisputeService struct {
	*core
}

// OpenDisputeRequest contains the parameters for opening a dispute.
type OpenDisputeRequest struct {
	TransactionID string
	Type          domain.DisputeType
	Reason        string
}

// OpenDispute opens a dispute against a CAPTURED or SETTLED transaction and
// moves the transaction to DISPUTED.
func (s *DisputeService) OpenDispute(ctx context.Context, req OpenDisputeRequest) (*domain.Dispute, error) {
	defer segment(ctx, "DisputeService.OpenDispute").End()

	if !s.features.DisputeHandling {
		return nil, ErrDisputeHandlingDisabled
	}
	if req.TransactionID == "" {
		return nil, ErrInvalidTransactionID
	}
	if !req.Type.Valid() {
		return nil, ErrInvalidDisputeType
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
	if !txn.Status.Disputable() {
		return nil, fmt.Errorf("%w: transaction is %s", ErrNotDisputable, txn.Status)
	}

	now := s.now()
	dispute := &domain.Dispute{
		ID:               uuid.New().String(),
		TransactionID:    txn.ID,
		CustomerID:       txn.CustomerID,
		Type:             req.Type,
		Reason:           req.Reason,
		Amount:           txn.RefundableRemaining(),
		Currency:         txn.Currency,
		Status:           domain.DisputeStatusOpened,
		PreDisputeStatus: txn.Status,
		InitiatedAt:      now,
		DueAt:            now.Add(s.policy.DisputeWindow),
	}
	dispute.AppendEvent("Dispute opened: "+string(req.Type), now)

	mark := len(txn.Events)
	if err := txn.TransitionTo(domain.TransactionStatusDisputed, now); err != nil {
		return nil, err
	}
	txn.AppendEvent(domain.EventDisputeOpened,
		fmt.Sprintf("Dispute %s opened (%s), response due %s", dispute.ID, req.Type, dispute.DueAt.Format("2006-01-02")),
		actorSystem, now)

	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		if err := l.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
		return l.Transactions().Update(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, txn, mark)
	disputeCounter.WithLabelValues(string(dispute.Status)).Inc()
	return dispute, nil
}

// EvidenceRequest contains the evidence submitted for a dispute.
type EvidenceRequest struct {
	Description string
	Documents   []string
	SubmittedBy string
}

// SubmitEvidence attaches evidence and moves the dispute to EVIDENCE_SUBMITTED.
// The transaction status is not touched.
func (s *DisputeService) SubmitEvidence(ctx context.Context, disputeID string, req EvidenceRequest) (*domain.Dispute, error) {
	defer segment(ctx, "DisputeService.SubmitEvidence").End()

	if !s.features.DisputeHandling {
		return nil, ErrDisputeHandlingDisabled
	}
	if !s.features.ChargebackDefense {
		return nil, ErrChargebackDefenseDisabled
	}
	if disputeID == "" {
		return nil, ErrInvalidID
	}
	if strings.TrimSpace(req.Description) == "" {
		return nil, ErrEmptyEvidence
	}

	release, err := s.lock(ctx, lock.DisputeKey(disputeID))
	if err != nil {
		return nil, err
	}
	defer release()

	dispute, err := s.ledger.Disputes().GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status.IsResolved() {
		return nil, ErrDisputeResolved
	}

	now := s.now()
	if now.After(dispute.DueAt) {
		return nil, ErrEvidenceWindowClosed
	}

	dispute.Evidence = append(dispute.Evidence, domain.Evidence{
		Description: req.Description,
		Documents:   append([]string(nil), req.Documents...),
		SubmittedBy: req.SubmittedBy,
		SubmittedAt: now,
	})
	dispute.Status = domain.DisputeStatusEvidenceSubmitted
	dispute.AppendEvent(fmt.Sprintf("Evidence submitted (%d document(s))", len(req.Documents)), now)

	if err := s.ledger.Disputes().Update(ctx, dispute); err != nil {
		return nil, err
	}
	disputeCounter.WithLabelValues(string(dispute.Status)).Inc()
	s.logger.InfoContext(ctx, "dispute evidence submitted", "dispute_id", dispute.ID, "transaction_id", dispute.TransactionID)
	return dispute, nil
}

// ResolveDispute applies the final outcome. WON returns the transaction to
// its status before the dispute. LOST moves it to CHARGEBACK and records the
// involuntary debit as a completed chargeback refund, cancelling any refund
// still PENDING on the transaction.
func (s *DisputeService) ResolveDispute(ctx context.Context, disputeID string, outcome domain.DisputeOutcome) (*domain.Dispute, error) {
	defer segment(ctx, "DisputeService.ResolveDispute").End()

	if !s.features.DisputeHandling {
		return nil, ErrDisputeHandlingDisabled
	}
	if disputeID == "" {
		return nil, ErrInvalidID
	}
	if outcome != domain.DisputeOutcomeWon && outcome != domain.DisputeOutcomeLost {
		return nil, ErrInvalidDisputeOutcome
	}

	peek, err := s.ledger.Disputes().GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, lock.TransactionKey(peek.TransactionID), lock.DisputeKey(disputeID))
	if err != nil {
		return nil, err
	}
	defer release()

	dispute, err := s.ledger.Disputes().GetByID(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status.IsResolved() {
		if string(dispute.Status) == string(outcome) {
			return dispute, nil
		}
		return nil, ErrDisputeResolved
	}

	txn, err := s.ledger.Transactions().GetByID(ctx, dispute.TransactionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	mark := len(txn.Events)
	var chargeback *domain.Refund

	switch outcome {
	case domain.DisputeOutcomeWon:
		if err := txn.TransitionTo(dispute.PreDisputeStatus, now); err != nil {
			return nil, err
		}
		dispute.Status = domain.DisputeStatusWon
		txn.AppendEvent(domain.EventDisputeWon,
			fmt.Sprintf("Dispute %s won, restored to %s", dispute.ID, dispute.PreDisputeStatus),
			actorSystem, now)

	case domain.DisputeOutcomeLost:
		if err := txn.TransitionTo(domain.TransactionStatusChargeback, now); err != nil {
			return nil, err
		}
		dispute.Status = domain.DisputeStatusLost
		txn.AppendEvent(domain.EventDisputeLost, fmt.Sprintf("Dispute %s lost", dispute.ID), actorSystem, now)

		chargeback = &domain.Refund{
			ID:               uuid.New().String(),
			TransactionID:    txn.ID,
			CustomerID:       txn.CustomerID,
			Amount:           dispute.Amount,
			Currency:         dispute.Currency,
			Status:           domain.RefundStatusCompleted,
			Reason:           domain.RefundReasonChargeback,
			Notes:            "Chargeback for dispute " + dispute.ID,
			ProcessingFee:    decimal.Zero,
			RefundableAmount: dispute.Amount,
			InitiatedAt:      now,
			ProcessedAt:      now,
			CompletedAt:      now,
		}
		dispute.ChargebackID = chargeback.ID

		txn.RefundedAmount = txn.RefundedAmount.Add(chargeback.Amount)
		if txn.RefundedAmount.GreaterThanOrEqual(txn.Amount) {
			txn.RefundState = domain.RefundStateFull
		} else {
			txn.RefundState = domain.RefundStatePartial
		}
		txn.AppendEvent(domain.EventChargeback,
			fmt.Sprintf("Chargeback debit %s of %s", chargeback.ID, chargeback.Amount.StringFixed(2)),
			actorSystem, now)
	}

	dispute.ResolvedAt = now
	dispute.AppendEvent("Dispute resolved: "+string(outcome), now)

	err = s.ledger.Atomic(ctx, func(l repository.Ledger) error {
		if chargeback != nil {
			if err := cancelPendingRefunds(ctx, l, txn, "chargeback "+chargeback.ID, now); err != nil {
				return err
			}
			if err := l.Refunds().Create(ctx, chargeback); err != nil {
				return err
			}
		}
		if err := l.Disputes().Update(ctx, dispute); err != nil {
			return err
		}
		return l.Transactions().Update(ctx, txn)
	})
	if err != nil {
		return nil, err
	}
	s.committed(ctx, txn, mark)
	disputeCounter.WithLabelValues(string(dispute.Status)).Inc()
	if chargeback != nil {
		refundCounter.WithLabelValues(string(chargeback.Status)).Inc()
	}
	return dispute, nil
}

// cancelPendingRefunds cancels every PENDING refund of txn so that no
// reservation outlives a chargeback that already debited the balance.
func cancelPendingRefunds(ctx context.Context, l repository.Ledger, txn *domain.Transaction, cause string, now time.Time) error {
	refunds, err := l.Refunds().ListByTransaction(ctx, txn.ID)
	if err != nil {
		return err
	}
	for _, r := range refunds {
		if r.Status != domain.RefundStatusPending {
			continue
		}
		r.Status = domain.RefundStatusCancelled
		r.FailureReason = "superseded by " + cause
		r.ProcessedAt = now
		if err := l.Refunds().Update(ctx, r); err != nil {
			return err
		}
		txn.AppendEvent(domain.EventRefundCancelled,
			fmt.Sprintf("Refund %s cancelled: superseded by %s", r.ID, cause), actorSystem, now)
	}
	return nil
}

// GetDispute retrieves a dispute by ID.
func (s *DisputeService) GetDispute(ctx context.Context, disputeID string) (*domain.Dispute, error) {
	if disputeID == "" {
		return nil, ErrInvalidID
	}
	return s.ledger.Disputes().GetByID(ctx, disputeID)
}

// ListDisputes lists the disputes of one transaction, oldest first.
func (s *DisputeService) ListDisputes(ctx context.Context, transactionID string) ([]*domain.Dispute, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}
	return s.ledger.Disputes().ListByTransaction(ctx, transactionID)
}
