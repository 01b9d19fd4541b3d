package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"paycore/internal/domain"
	"paycore/internal/repository"
)

// TransactionRepository is a PostgreSQL implementation of repository.TransactionRepository.
type TransactionRepository struct {
	q Querier
}

// NewTransactionRepository creates a new PostgreSQL transaction repository.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{q: db}
}

// NewTransactionRepositoryWithTx creates a transaction repository using a database transaction.
func NewTransactionRepositoryWithTx(tx *sql.Tx) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

const selectTransaction = `SELECT data, version FROM transactions`

// Create persists a new transaction.
func (r *TransactionRepository) Create(ctx context.Context, txn *domain.Transaction) error {
	txn.Version = 1
	data, err := json.Marshal(txn)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (id, reference_number, idempotency_key, customer_id, order_id,
			invoice_id, amount, currency, payment_method, status, version, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.q.ExecContext(ctx, query,
		txn.ID,
		txn.ReferenceNumber,
		nullString(txn.IdempotencyKey),
		txn.CustomerID,
		nullString(txn.OrderID),
		nullString(txn.InvoiceID),
		txn.Amount,
		txn.Currency,
		txn.PaymentMethod,
		txn.Status,
		txn.Version,
		data,
		txn.CreatedAt,
		txn.UpdatedAt,
	)

	return mapWriteError(err)
}

// GetByID retrieves a transaction by ID.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.getOne(ctx, selectTransaction+` WHERE id = $1`, id)
}

// GetByReference retrieves a transaction by reference number.
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	return r.getOne(ctx, selectTransaction+` WHERE reference_number = $1`, reference)
}

// GetByIdempotencyKey retrieves a transaction by its idempotency key.
// Returns nil if no transaction exists with the given key.
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	txn, err := r.getOne(ctx, selectTransaction+` WHERE idempotency_key = $1`, key)
	if err == repository.ErrNotFound {
		return nil, nil
	}
	return txn, err
}

// ListByCustomer returns a customer's transactions, oldest first.
func (r *TransactionRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Transaction, error) {
	return r.getMany(ctx, selectTransaction+` WHERE customer_id = $1 ORDER BY created_at, id`, customerID)
}

// List returns all transactions, oldest first.
func (r *TransactionRepository) List(ctx context.Context) ([]*domain.Transaction, error) {
	return r.getMany(ctx, selectTransaction+` ORDER BY created_at, id`)
}

// CountByCustomerSince counts a customer's transactions in the trailing window.
func (r *TransactionRepository) CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE customer_id = $1 AND created_at >= $2`

	var count int
	if err := r.q.QueryRowContext(ctx, query, customerID, since).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// Update replaces a transaction if its version is unchanged.
func (r *TransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	data, err := json.Marshal(txn)
	if err != nil {
		return err
	}

	query := `
		UPDATE transactions
		SET status = $1, data = $2, updated_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`

	result, err := r.q.ExecContext(ctx, query, txn.Status, data, txn.UpdatedAt, txn.ID, txn.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(ctx, r.q, result, "transactions", txn.ID); err != nil {
		return err
	}

	txn.Version++
	return nil
}

func (r *TransactionRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Transaction, error) {
	var txn domain.Transaction
	var version int64
	if err := scanDocument(r.q.QueryRowContext(ctx, query, args...), &txn, &version); err != nil {
		return nil, err
	}
	txn.Version = version
	return &txn, nil
}

func (r *TransactionRepository) getMany(ctx context.Context, query string, args ...any) ([]*domain.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []*domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		var version int64
		if err := scanDocument(rows, &txn, &version); err != nil {
			return nil, err
		}
		txn.Version = version
		txns = append(txns, &txn)
	}

	return txns, rows.Err()
}
