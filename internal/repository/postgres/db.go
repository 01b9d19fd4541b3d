package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"paycore/internal/repository"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ensure interfaces are satisfied.
var (
	_ Querier           = (*sql.DB)(nil)
	_ Querier           = (*sql.Tx)(nil)
	_ repository.Ledger = (*Ledger)(nil)
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Ledger is a PostgreSQL implementation of repository.Ledger.
type Ledger struct {
	db *sql.DB
	q  Querier
}

// NewLedger creates a ledger backed by db.
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db, q: db}
}

func (l *Ledger) Transactions() repository.TransactionRepository {
	return &TransactionRepository{q: l.q}
}

func (l *Ledger) Refunds() repository.RefundRepository {
	return &RefundRepository{q: l.q}
}

func (l *Ledger) Disputes() repository.DisputeRepository {
	return &DisputeRepository{q: l.q}
}

func (l *Ledger) RecurringPayments() repository.RecurringPaymentRepository {
	return &RecurringPaymentRepository{q: l.q}
}

func (l *Ledger) Invoices() repository.InvoiceRepository {
	return &InvoiceRepository{q: l.q}
}

// Atomic runs fn inside a database transaction. A ledger already bound to a
// transaction joins it.
func (l *Ledger) Atomic(ctx context.Context, fn func(repository.Ledger) error) (err error) {
	if l.db == nil {
		return fn(l)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&Ledger{q: tx}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}

// mapWriteError translates driver errors into repository errors.
func mapWriteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return repository.ErrDuplicate
	}
	return err
}

// checkVersioned resolves a zero-row versioned UPDATE into ErrNotFound or
// ErrVersionConflict.
func checkVersioned(ctx context.Context, q Querier, result sql.Result, table, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected > 0 {
		return nil
	}

	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := q.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrVersionConflict
}

// scanDocument decodes a (data, version) row into dst.
func scanDocument(row interface{ Scan(...any) error }, dst any, version *int64) error {
	var data []byte
	if err := row.Scan(&data, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, dst)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
