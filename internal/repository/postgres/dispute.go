package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"paycore/internal/domain"
)

// DisputeRepository is a PostgreSQL implementation of repository.DisputeRepository.
type DisputeRepository struct {
	q Querier
}

// NewDisputeRepository creates a new PostgreSQL dispute repository.
func NewDisputeRepository(db *sql.DB) *DisputeRepository {
	return &DisputeRepository{q: db}
}

// Create persists a new dispute.
func (r *DisputeRepository) Create(ctx context.Context, dispute *domain.Dispute) error {
	dispute.Version = 1
	data, err := json.Marshal(dispute)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO disputes (id, transaction_id, status, due_at, version, data, initiated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.q.ExecContext(ctx, query,
		dispute.ID,
		dispute.TransactionID,
		dispute.Status,
		dispute.DueAt,
		dispute.Version,
		data,
		dispute.InitiatedAt,
	)

	return mapWriteError(err)
}

// GetByID retrieves a dispute by ID.
func (r *DisputeRepository) GetByID(ctx context.Context, id string) (*domain.Dispute, error) {
	var dispute domain.Dispute
	var version int64
	row := r.q.QueryRowContext(ctx, `SELECT data, version FROM disputes WHERE id = $1`, id)
	if err := scanDocument(row, &dispute, &version); err != nil {
		return nil, err
	}
	dispute.Version = version
	return &dispute, nil
}

// ListByTransaction returns the disputes opened against a transaction.
func (r *DisputeRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Dispute, error) {
	query := `SELECT data, version FROM disputes WHERE transaction_id = $1 ORDER BY initiated_at, id`

	rows, err := r.q.QueryContext(ctx, query, transactionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var disputes []*domain.Dispute
	for rows.Next() {
		var dispute domain.Dispute
		var version int64
		if err := scanDocument(rows, &dispute, &version); err != nil {
			return nil, err
		}
		dispute.Version = version
		disputes = append(disputes, &dispute)
	}

	return disputes, rows.Err()
}

// Update replaces a dispute if its version is unchanged.
func (r *DisputeRepository) Update(ctx context.Context, dispute *domain.Dispute) error {
	data, err := json.Marshal(dispute)
	if err != nil {
		return err
	}

	query := `
		UPDATE disputes SET status = $1, data = $2, version = version + 1
		WHERE id = $3 AND version = $4
	`

	result, err := r.q.ExecContext(ctx, query, dispute.Status, data, dispute.ID, dispute.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(ctx, r.q, result, "disputes", dispute.ID); err != nil {
		return err
	}

	dispute.Version++
	return nil
}
