package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/domain"
	"paycore/internal/redis"
)

// SummaryService builds the read models other systems consume: the
// billing-facing customer summary and the order-facing status view.
type SummaryService struct {
	*core
}

// CustomerSummary aggregates a customer's money movement.
type CustomerSummary struct {
	CustomerID        string
	Currency          string
	TransactionCount  int
	CapturedCount     int
	SettledCount      int
	FailedCount       int
	DisputedCount     int
	TotalCaptured     decimal.Decimal
	TotalSettled      decimal.Decimal
	TotalRefunded     decimal.Decimal
	NetCollected      decimal.Decimal
	LastTransactionAt time.Time
}

// CustomerSummary totals captured, settled and refunded amounts across every
// transaction of the customer. Amounts are summed in each transaction's own
// currency; Currency is set only when all of them agree.
func (s *SummaryService) CustomerSummary(ctx context.Context, customerID string) (*CustomerSummary, error) {
	defer segment(ctx, "SummaryService.CustomerSummary").End()

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, ErrInvalidCustomerID
	}

	txns, err := s.ledger.Transactions().ListByCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}

	summary := &CustomerSummary{
		CustomerID:    customerID,
		TotalCaptured: decimal.Zero,
		TotalSettled:  decimal.Zero,
		TotalRefunded: decimal.Zero,
	}
	mixed := false
	for _, txn := range txns {
		summary.TransactionCount++
		if txn.CreatedAt.After(summary.LastTransactionAt) {
			summary.LastTransactionAt = txn.CreatedAt
		}
		switch {
		case summary.Currency == "":
			summary.Currency = txn.Currency
		case summary.Currency != txn.Currency:
			mixed = true
		}

		switch txn.Status {
		case domain.TransactionStatusFailed, domain.TransactionStatusAuthDeclined:
			summary.FailedCount++
		case domain.TransactionStatusDisputed, domain.TransactionStatusChargeback:
			summary.DisputedCount++
		}

		if !wasCaptured(txn) {
			continue
		}
		summary.CapturedCount++
		summary.TotalCaptured = summary.TotalCaptured.Add(txn.Amount)
		summary.TotalRefunded = summary.TotalRefunded.Add(txn.RefundedAmount)
		if txn.Settlement != nil && txn.Settlement.Status == domain.SettlementStatusSettled {
			summary.SettledCount++
			summary.TotalSettled = summary.TotalSettled.Add(txn.Amount)
		}
	}
	if mixed {
		summary.Currency = ""
	}
	summary.NetCollected = summary.TotalCaptured.Sub(summary.TotalRefunded)
	return summary, nil
}

// wasCaptured reports whether funds were ever captured for txn.
func wasCaptured(txn *domain.Transaction) bool {
	switch txn.Status {
	case domain.TransactionStatusCaptured,
		domain.TransactionStatusSettled,
		domain.TransactionStatusRefunded,
		domain.TransactionStatusDisputed,
		domain.TransactionStatusChargeback:
		return true
	}
	return false
}

// OrderStatus is the order-facing view of one transaction.
type OrderStatus struct {
	TransactionID string
	OrderID       string
	Status        domain.TransactionStatus
	Fulfillable   bool
	UpdatedAt     time.Time
	Cached        bool
}

// OrderStatus answers whether an order's payment allows fulfillment. The
// status cache is consulted first; a miss or cache error falls back to the
// ledger and refreshes the cache.
func (s *SummaryService) OrderStatus(ctx context.Context, transactionID string) (*OrderStatus, error) {
	if transactionID == "" {
		return nil, ErrInvalidTransactionID
	}

	if s.cache != nil {
		cached, err := s.cache.GetStatus(ctx, transactionID)
		if err != nil {
			s.logger.WarnContext(ctx, "status cache read failed", "transaction_id", transactionID, "error", err)
		}
		if cached != nil {
			status := domain.TransactionStatus(cached.Status)
			return &OrderStatus{
				TransactionID: cached.TransactionID,
				OrderID:       cached.OrderID,
				Status:        status,
				Fulfillable:   fulfillable(status),
				UpdatedAt:     cached.UpdatedAt,
				Cached:        true,
			}, nil
		}
	}

	txn, err := s.ledger.Transactions().GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, &redis.CachedStatus{
			TransactionID: txn.ID,
			OrderID:       txn.OrderID,
			Status:        string(txn.Status),
			UpdatedAt:     txn.UpdatedAt,
		}); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh status cache", "transaction_id", txn.ID, "error", err)
		}
	}

	return &OrderStatus{
		TransactionID: txn.ID,
		OrderID:       txn.OrderID,
		Status:        txn.Status,
		Fulfillable:   fulfillable(txn.Status),
		UpdatedAt:     txn.UpdatedAt,
	}, nil
}

// fulfillable is true once funds are captured and not clawed back.
func fulfillable(status domain.TransactionStatus) bool {
	return status == domain.TransactionStatusCaptured || status == domain.TransactionStatusSettled
}
