// Package memory is an in-process implementation of repository.Ledger.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"paycore/internal/domain"
	"paycore/internal/repository"
)

// Store keeps every collection in maps guarded by one RWMutex. Rows are
// cloned on the way in and out so callers never alias stored state.
type Store struct {
	mu sync.RWMutex

	transactions  *table[domain.Transaction]
	refunds       *table[domain.Refund]
	disputes      *table[domain.Dispute]
	recurring     *table[domain.RecurringPayment]
	invoices      *table[domain.Invoice]
	byReference   map[string]string
	byIdempotency map[string]string
}

// NewStore creates an empty in-memory ledger.
func NewStore() *Store {
	return &Store{
		transactions: newTable(
			(*domain.Transaction).Clone,
			func(t *domain.Transaction) string { return t.ID },
			func(t *domain.Transaction) *int64 { return &t.Version },
			func(t *domain.Transaction) time.Time { return t.CreatedAt },
		),
		refunds: newTable(
			(*domain.Refund).Clone,
			func(r *domain.Refund) string { return r.ID },
			func(r *domain.Refund) *int64 { return &r.Version },
			func(r *domain.Refund) time.Time { return r.InitiatedAt },
		),
		disputes: newTable(
			(*domain.Dispute).Clone,
			func(d *domain.Dispute) string { return d.ID },
			func(d *domain.Dispute) *int64 { return &d.Version },
			func(d *domain.Dispute) time.Time { return d.InitiatedAt },
		),
		recurring: newTable(
			(*domain.RecurringPayment).Clone,
			func(r *domain.RecurringPayment) string { return r.ID },
			func(r *domain.RecurringPayment) *int64 { return &r.Version },
			func(r *domain.RecurringPayment) time.Time { return r.CreatedAt },
		),
		invoices: newTable(
			(*domain.Invoice).Clone,
			func(i *domain.Invoice) string { return i.ID },
			func(i *domain.Invoice) *int64 { return &i.Version },
			func(i *domain.Invoice) time.Time { return i.CreatedAt },
		),
		byReference:   make(map[string]string),
		byIdempotency: make(map[string]string),
	}
}

// Ensure Store satisfies the ledger contract.
var _ repository.Ledger = (*Store)(nil)

func (s *Store) root() view { return view{s: s} }

func (s *Store) Transactions() repository.TransactionRepository {
	return &transactionRepo{s.root()}
}

func (s *Store) Refunds() repository.RefundRepository { return &refundRepo{s.root()} }

func (s *Store) Disputes() repository.DisputeRepository { return &disputeRepo{s.root()} }

func (s *Store) RecurringPayments() repository.RecurringPaymentRepository {
	return &recurringRepo{s.root()}
}

func (s *Store) Invoices() repository.InvoiceRepository { return &invoiceRepo{s.root()} }

// Atomic holds the store's write lock for the duration of fn. Every write made
// through the view registers an undo step; a non-nil error replays them in
// reverse.
func (s *Store) Atomic(ctx context.Context, fn func(repository.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var undo []func()
	err := fn(&unitOfWork{view{s: s, undo: &undo}})
	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}
	return err
}

// view is a handle on the store. Inside Atomic the lock is already held and
// undo is non-nil.
type view struct {
	s    *Store
	undo *[]func()
}

func (v view) rlock() func() {
	if v.undo != nil {
		return func() {}
	}
	v.s.mu.RLock()
	return v.s.mu.RUnlock
}

func (v view) lock() func() {
	if v.undo != nil {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v view) onRollback(f func()) {
	if v.undo != nil {
		*v.undo = append(*v.undo, f)
	}
}

// unitOfWork is the ledger handed to an Atomic callback.
type unitOfWork struct {
	v view
}

func (u *unitOfWork) Transactions() repository.TransactionRepository {
	return &transactionRepo{u.v}
}

func (u *unitOfWork) Refunds() repository.RefundRepository { return &refundRepo{u.v} }

func (u *unitOfWork) Disputes() repository.DisputeRepository { return &disputeRepo{u.v} }

func (u *unitOfWork) RecurringPayments() repository.RecurringPaymentRepository {
	return &recurringRepo{u.v}
}

func (u *unitOfWork) Invoices() repository.InvoiceRepository { return &invoiceRepo{u.v} }

// Atomic joins the enclosing unit of work.
func (u *unitOfWork) Atomic(ctx context.Context, fn func(repository.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(u)
}

// table is one keyed collection with optimistic versioning.
type table[T any] struct {
	rows    map[string]*T
	clone   func(*T) *T
	id      func(*T) string
	version func(*T) *int64
	created func(*T) time.Time
}

func newTable[T any](
	clone func(*T) *T,
	id func(*T) string,
	version func(*T) *int64,
	created func(*T) time.Time,
) *table[T] {
	return &table[T]{
		rows:    make(map[string]*T),
		clone:   clone,
		id:      id,
		version: version,
		created: created,
	}
}

func (t *table[T]) get(id string) (*T, error) {
	row, ok := t.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.clone(row), nil
}

func (t *table[T]) insert(v view, row *T) error {
	id := t.id(row)
	if _, ok := t.rows[id]; ok {
		return repository.ErrDuplicate
	}
	*t.version(row) = 1
	t.rows[id] = t.clone(row)
	v.onRollback(func() { delete(t.rows, id) })
	return nil
}

func (t *table[T]) update(v view, row *T) error {
	id := t.id(row)
	current, ok := t.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	if *t.version(current) != *t.version(row) {
		return repository.ErrVersionConflict
	}
	*t.version(row)++
	t.rows[id] = t.clone(row)
	v.onRollback(func() { t.rows[id] = current })
	return nil
}

// filter returns clones of matching rows, oldest first.
func (t *table[T]) filter(match func(*T) bool) []*T {
	result := make([]*T, 0)
	for _, row := range t.rows {
		if match == nil || match(row) {
			result = append(result, t.clone(row))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ci, cj := t.created(result[i]), t.created(result[j])
		if ci.Equal(cj) {
			return t.id(result[i]) < t.id(result[j])
		}
		return ci.Before(cj)
	})
	return result
}
