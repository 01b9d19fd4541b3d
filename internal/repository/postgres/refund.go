package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"paycore/internal/domain"
)

// RefundRepository is a PostgreSQL implementation of repository.RefundRepository.
type RefundRepository struct {
	q Querier
}

// NewRefundRepository creates a new PostgreSQL refund repository.
func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{q: db}
}

// NewRefundRepositoryWithTx creates a refund repository using a database transaction.
func NewRefundRepositoryWithTx(tx *sql.Tx) *RefundRepository {
	return &RefundRepository{q: tx}
}

// Create persists a new refund.
func (r *RefundRepository) Create(ctx context.Context, refund *domain.Refund) error {
	refund.Version = 1
	data, err := json.Marshal(refund)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO refunds (id, transaction_id, amount, status, reason, version, data, initiated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.q.ExecContext(ctx, query,
		refund.ID,
		refund.TransactionID,
		refund.Amount,
		refund.Status,
		refund.Reason,
		refund.Version,
		data,
		refund.InitiatedAt,
	)

	return mapWriteError(err)
}

// GetByID retrieves a refund by ID.
func (r *RefundRepository) GetByID(ctx context.Context, id string) (*domain.Refund, error) {
	var refund domain.Refund
	var version int64
	row := r.q.QueryRowContext(ctx, `SELECT data, version FROM refunds WHERE id = $1`, id)
	if err := scanDocument(row, &refund, &version); err != nil {
		return nil, err
	}
	refund.Version = version
	return &refund, nil
}

// ListByTransaction returns every refund raised against a transaction, oldest first.
func (r *RefundRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Refund, error) {
	query := `SELECT data, version FROM refunds WHERE transaction_id = $1 ORDER BY initiated_at, id`

	rows, err := r.q.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refunds []*domain.Refund
	for rows.Next() {
		var refund domain.Refund
		var version int64
		if err := scanDocument(rows, &refund, &version); err != nil {
			return nil, err
		}
		refund.Version = version
		refunds = append(refunds, &refund)
	}

	return refunds, rows.Err()
}

// Update replaces a refund if its version is unchanged.
func (r *RefundRepository) Update(ctx context.Context, refund *domain.Refund) error {
	data, err := json.Marshal(refund)
	if err != nil {
		return err
	}

	query := `
		UPDATE refunds SET status = $1, data = $2, version = version + 1
		WHERE id = $3 AND version = $4
	`

	result, err := r.q.ExecContext(ctx, query, refund.Status, data, refund.ID, refund.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(ctx, r.q, result, "refunds", refund.ID); err != nil {
		return err
	}

	refund.Version++
	return nil
}
