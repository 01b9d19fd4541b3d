package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"paycore/internal/domain"
)

// RecurringPaymentRepository is a PostgreSQL implementation of
// repository.RecurringPaymentRepository.
type RecurringPaymentRepository struct {
	q Querier
}

// NewRecurringPaymentRepository creates a new PostgreSQL recurring payment repository.
func NewRecurringPaymentRepository(db *sql.DB) *RecurringPaymentRepository {
	return &RecurringPaymentRepository{q: db}
}

// Create persists a new recurring schedule.
func (r *RecurringPaymentRepository) Create(ctx context.Context, rp *domain.RecurringPayment) error {
	rp.Version = 1
	data, err := json.Marshal(rp)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO recurring_payments (id, customer_id, status, next_billing_date, next_retry_at,
			version, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.q.ExecContext(ctx, query,
		rp.ID,
		rp.CustomerID,
		rp.Status,
		rp.NextBillingDate,
		nullTime(rp.NextRetryAt),
		rp.Version,
		data,
		rp.CreatedAt,
	)

	return mapWriteError(err)
}

// GetByID retrieves a recurring schedule by ID.
func (r *RecurringPaymentRepository) GetByID(ctx context.Context, id string) (*domain.RecurringPayment, error) {
	var rp domain.RecurringPayment
	var version int64
	row := r.q.QueryRowContext(ctx, `SELECT data, version FROM recurring_payments WHERE id = $1`, id)
	if err := scanDocument(row, &rp, &version); err != nil {
		return nil, err
	}
	rp.Version = version
	return &rp, nil
}

// List returns all schedules, oldest first.
func (r *RecurringPaymentRepository) List(ctx context.Context) ([]*domain.RecurringPayment, error) {
	return r.getMany(ctx, `SELECT data, version FROM recurring_payments ORDER BY created_at, id`)
}

// ListDue returns active schedules whose pending retry, or else billing date,
// has been reached.
func (r *RecurringPaymentRepository) ListDue(ctx context.Context, now time.Time) ([]*domain.RecurringPayment, error) {
	query := `
		SELECT data, version FROM recurring_payments
		WHERE status = $1 AND COALESCE(next_retry_at, next_billing_date) <= $2
		ORDER BY created_at, id
	`
	return r.getMany(ctx, query, domain.RecurringStatusActive, now)
}

// Update replaces a schedule if its version is unchanged.
func (r *RecurringPaymentRepository) Update(ctx context.Context, rp *domain.RecurringPayment) error {
	data, err := json.Marshal(rp)
	if err != nil {
		return err
	}

	query := `
		UPDATE recurring_payments
		SET status = $1, next_billing_date = $2, next_retry_at = $3, data = $4, version = version + 1
		WHERE id = $5 AND version = $6
	`

	result, err := r.q.ExecContext(ctx, query,
		rp.Status, rp.NextBillingDate, nullTime(rp.NextRetryAt), data, rp.ID, rp.Version)
	if err != nil {
		return err
	}
	if err := checkVersioned(ctx, r.q, result, "recurring_payments", rp.ID); err != nil {
		return err
	}

	rp.Version++
	return nil
}

func (r *RecurringPaymentRepository) getMany(ctx context.Context, query string, args ...any) ([]*domain.RecurringPayment, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.RecurringPayment
	for rows.Next() {
		var rp domain.RecurringPayment
		var version int64
		if err := scanDocument(rows, &rp, &version); err != nil {
			return nil, err
		}
		rp.Version = version
		result = append(result, &rp)
	}

	return result, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
