package repository

import (
	"context"
	"time"

	"paycore/internal/domain"
)

// TransactionRepository defines the persistence operations for transactions.
type TransactionRepository interface {
	// Create persists a new transaction. Returns ErrDuplicate when the id,
	// reference number or idempotency key is already used.
	Create(ctx context.Context, txn *domain.Transaction) error

	// GetByID retrieves a transaction by ID.
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)

	// GetByReference retrieves a transaction by its reference number.
	GetByReference(ctx context.Context, reference string) (*domain.Transaction, error)

	// GetByIdempotencyKey retrieves a transaction by its idempotency key.
	// Returns nil if no transaction exists with the given key.
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)

	// ListByCustomer returns the customer's transactions, oldest first.
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Transaction, error)

	// List returns all transactions, oldest first.
	List(ctx context.Context) ([]*domain.Transaction, error)

	// CountByCustomerSince counts the customer's transactions created at or after since.
	CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error)

	// Update replaces the stored transaction if its version still matches
	// txn.Version, then increments txn.Version.
	Update(ctx context.Context, txn *domain.Transaction) error
}

// RefundRepository defines the persistence operations for refunds.
type RefundRepository interface {
	Create(ctx context.Context, refund *domain.Refund) error
	GetByID(ctx context.Context, id string) (*domain.Refund, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Refund, error)
	Update(ctx context.Context, refund *domain.Refund) error
}

// DisputeRepository defines the persistence operations for disputes.
type DisputeRepository interface {
	Create(ctx context.Context, dispute *domain.Dispute) error
	GetByID(ctx context.Context, id string) (*domain.Dispute, error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Dispute, error)
	Update(ctx context.Context, dispute *domain.Dispute) error
}

// RecurringPaymentRepository defines the persistence operations for recurring schedules.
type RecurringPaymentRepository interface {
	Create(ctx context.Context, rp *domain.RecurringPayment) error
	GetByID(ctx context.Context, id string) (*domain.RecurringPayment, error)
	List(ctx context.Context) ([]*domain.RecurringPayment, error)

	// ListDue returns active schedules whose next billing date or pending
	// retry is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*domain.RecurringPayment, error)

	Update(ctx context.Context, rp *domain.RecurringPayment) error
}

// InvoiceRepository defines the persistence operations for invoices.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id string) (*domain.Invoice, error)
	Update(ctx context.Context, invoice *domain.Invoice) error
}

// Ledger is the single writer of record for every payment entity.
type Ledger interface {
	Transactions() TransactionRepository
	Refunds() RefundRepository
	Disputes() DisputeRepository
	RecurringPayments() RecurringPaymentRepository
	Invoices() InvoiceRepository

	// Atomic runs fn against a ledger view whose writes are committed together
	// if fn returns nil and discarded otherwise.
	Atomic(ctx context.Context, fn func(Ledger) error) error
}
