package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/domain"
	"paycore/internal/repository"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTxn(id, ref, customer string, offset time.Duration) *domain.Transaction {
	return &domain.Transaction{
		ID:              id,
		ReferenceNumber: ref,
		CustomerID:      customer,
		Amount:          decimal.NewFromInt(50),
		Currency:        "USD",
		Status:          domain.TransactionStatusPending,
		CreatedAt:       baseTime.Add(offset),
		UpdatedAt:       baseTime.Add(offset),
	}
}

func TestTransactions_CreateAndLookups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()
	repo := store.Transactions()

	txn := newTxn("t1", "TXN-1", "C1", 0)
	txn.IdempotencyKey = "key-1"
	require.NoError(t, repo.Create(ctx, txn))
	assert.Equal(t, int64(1), txn.Version)

	got, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "TXN-1", got.ReferenceNumber)

	got, err = repo.GetByReference(ctx, "TXN-1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)

	got, err = repo.GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t1", got.ID)

	got, err = repo.GetByIdempotencyKey(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = repo.GetByReference(ctx, "TXN-missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTransactions_UniqueKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewStore().Transactions()

	first := newTxn("t1", "TXN-1", "C1", 0)
	first.IdempotencyKey = "key-1"
	require.NoError(t, repo.Create(ctx, first))

	tests := []struct {
		name string
		txn  *domain.Transaction
	}{
		{"same id", newTxn("t1", "TXN-2", "C1", 0)},
		{"same reference", newTxn("t2", "TXN-1", "C1", 0)},
		{"same idempotency key", func() *domain.Transaction {
			txn := newTxn("t3", "TXN-3", "C1", 0)
			txn.IdempotencyKey = "key-1"
			return txn
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, repo.Create(ctx, tt.txn), repository.ErrDuplicate)
		})
	}

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTransactions_OptimisticUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewStore().Transactions()

	require.NoError(t, repo.Create(ctx, newTxn("t1", "TXN-1", "C1", 0)))

	a, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)

	a.Status = domain.TransactionStatusAuthorized
	require.NoError(t, repo.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.Status = domain.TransactionStatusCancelled
	assert.ErrorIs(t, repo.Update(ctx, b), repository.ErrVersionConflict)

	stored, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusAuthorized, stored.Status)

	assert.ErrorIs(t, repo.Update(ctx, newTxn("ghost", "TXN-G", "C1", 0)), repository.ErrNotFound)
}

func TestTransactions_ReturnedRowsAreCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewStore().Transactions()

	txn := newTxn("t1", "TXN-1", "C1", 0)
	require.NoError(t, repo.Create(ctx, txn))
	txn.Status = domain.TransactionStatusFailed

	got, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, got.Status)

	got.Status = domain.TransactionStatusCaptured
	again, err := repo.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, again.Status)
}

func TestTransactions_ListByCustomerOldestFirstAndCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewStore().Transactions()

	require.NoError(t, repo.Create(ctx, newTxn("t3", "TXN-3", "C1", 2*time.Hour)))
	require.NoError(t, repo.Create(ctx, newTxn("t1", "TXN-1", "C1", 0)))
	require.NoError(t, repo.Create(ctx, newTxn("t2", "TXN-2", "C2", time.Hour)))
	require.NoError(t, repo.Create(ctx, newTxn("t4", "TXN-4", "C1", time.Hour)))

	list, err := repo.ListByCustomer(ctx, "C1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "t1", list[0].ID)
	assert.Equal(t, "t4", list[1].ID)
	assert.Equal(t, "t3", list[2].ID)

	n, err := repo.CountByCustomerSince(ctx, "C1", baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestAtomic_RollsBackEveryWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	require.NoError(t, store.Transactions().Create(ctx, newTxn("t1", "TXN-1", "C1", 0)))

	boom := errors.New("boom")
	err := store.Atomic(ctx, func(l repository.Ledger) error {
		txn, err := l.Transactions().GetByID(ctx, "t1")
		if err != nil {
			return err
		}
		txn.Status = domain.TransactionStatusAuthorized
		if err := l.Transactions().Update(ctx, txn); err != nil {
			return err
		}
		created := newTxn("t2", "TXN-2", "C1", time.Minute)
		created.IdempotencyKey = "key-2"
		if err := l.Transactions().Create(ctx, created); err != nil {
			return err
		}
		refund := &domain.Refund{ID: "r1", TransactionID: "t1", Amount: decimal.NewFromInt(10), InitiatedAt: baseTime}
		if err := l.Refunds().Create(ctx, refund); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	txn, err := store.Transactions().GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)
	assert.Equal(t, int64(1), txn.Version)

	_, err = store.Transactions().GetByID(ctx, "t2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = store.Transactions().GetByReference(ctx, "TXN-2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	byKey, err := store.Transactions().GetByIdempotencyKey(ctx, "key-2")
	require.NoError(t, err)
	assert.Nil(t, byKey)
	_, err = store.Refunds().GetByID(ctx, "r1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// The reference is free again after the rollback.
	require.NoError(t, store.Transactions().Create(ctx, newTxn("t2", "TXN-2", "C1", time.Minute)))
}

func TestAtomic_CommitsOnSuccessAndNests(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewStore()

	err := store.Atomic(ctx, func(l repository.Ledger) error {
		if err := l.Transactions().Create(ctx, newTxn("t1", "TXN-1", "C1", 0)); err != nil {
			return err
		}
		return l.Atomic(ctx, func(inner repository.Ledger) error {
			return inner.Invoices().Create(ctx, &domain.Invoice{ID: "inv-1", CreatedAt: baseTime})
		})
	})
	require.NoError(t, err)

	_, err = store.Transactions().GetByID(ctx, "t1")
	assert.NoError(t, err)
	_, err = store.Invoices().GetByID(ctx, "inv-1")
	assert.NoError(t, err)
}

func TestAtomic_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewStore().Atomic(ctx, func(repository.Ledger) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRecurring_ListDue(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewStore().RecurringPayments()

	due := &domain.RecurringPayment{
		ID:              "rp-due",
		Status:          domain.RecurringStatusActive,
		NextBillingDate: baseTime.Add(-time.Hour),
		CreatedAt:       baseTime.Add(-48 * time.Hour),
	}
	later := &domain.RecurringPayment{
		ID:              "rp-later",
		Status:          domain.RecurringStatusActive,
		NextBillingDate: baseTime.Add(time.Hour),
		CreatedAt:       baseTime.Add(-48 * time.Hour),
	}
	cancelled := &domain.RecurringPayment{
		ID:              "rp-cancelled",
		Status:          domain.RecurringStatusCancelled,
		NextBillingDate: baseTime.Add(-time.Hour),
		CreatedAt:       baseTime.Add(-48 * time.Hour),
	}
	for _, rp := range []*domain.RecurringPayment{due, later, cancelled} {
		require.NoError(t, repo.Create(ctx, rp))
	}

	list, err := repo.ListDue(ctx, baseTime)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "rp-due", list[0].ID)
}
