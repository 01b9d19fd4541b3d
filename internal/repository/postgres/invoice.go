package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"paycore/internal/domain"
)

// InvoiceRepository is a PostgreSQL implementation of repository.InvoiceRepository.
type InvoiceRepository struct {
	q Querier
}

// NewInvoiceRepository creates a new PostgreSQL invoice repository.
func NewInvoiceRepository(db *sql.DB) *InvoiceRepository {
	return &InvoiceRepository{q: db}
}

// Create persists a new invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *domain.Invoice) error {
	invoice.Version = 1
	data, err := json.Marshal(invoice)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO invoices (id, customer_id, amount_owed, version, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err = r.q.ExecContext(ctx, query,
		invoice.ID,
		invoice.CustomerID,
		invoice.AmountOwed,
		invoice.Version,
		data,
		invoice.CreatedAt,
	)

	return mapWriteError(err)
}

// GetByID retrieves an invoice by ID.
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	var version int64
	row := r.q.QueryRowContext(ctx, `SELECT data, version FROM invoices WHERE id = $1`, id)
	if err := scanDocument(row, &invoice, &version); err != nil {
		return nil, err
	}
	invoice.Version = version
	return &invoice, nil
}

// Update replaces an invoice if its version is unchanged.
func (r *InvoiceRepository) Update(ctx context.Context, invoice *domain.Invoice) error {
	data, err := json.Marshal(invoice)
	if err != nil {
		return err
	}

	query := `UPDATE invoices SET data = $1, version = version + 1 WHERE id = $2 AND version = $3`

	result, err := r.q.ExecContext(ctx, query, data, invoice.ID, invoice.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(ctx, r.q, result, "invoices", invoice.ID); err != nil {
		return err
	}

	invoice.Version++
	return nil
}
