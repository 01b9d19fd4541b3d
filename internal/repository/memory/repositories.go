package memory

import (
	"context"
	"time"

	"paycore/internal/domain"
	"paycore/internal/repository"
)

type transactionRepo struct{ v view }

func (r *transactionRepo) Create(ctx context.Context, txn *domain.Transaction) error {
	defer r.v.lock()()
	s := r.v.s
	if _, taken := s.byReference[txn.ReferenceNumber]; taken {
		return repository.ErrDuplicate
	}
	if txn.IdempotencyKey != "" {
		if _, taken := s.byIdempotency[txn.IdempotencyKey]; taken {
			return repository.ErrDuplicate
		}
	}
	if err := s.transactions.insert(r.v, txn); err != nil {
		return err
	}

	ref, key := txn.ReferenceNumber, txn.IdempotencyKey
	s.byReference[ref] = txn.ID
	if key != "" {
		s.byIdempotency[key] = txn.ID
	}
	r.v.onRollback(func() {
		delete(s.byReference, ref)
		if key != "" {
			delete(s.byIdempotency, key)
		}
	})
	return nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	defer r.v.rlock()()
	return r.v.s.transactions.get(id)
}

func (r *transactionRepo) GetByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	defer r.v.rlock()()
	id, ok := r.v.s.byReference[reference]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.v.s.transactions.get(id)
}

func (r *transactionRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	defer r.v.rlock()()
	id, ok := r.v.s.byIdempotency[key]
	if !ok {
		return nil, nil
	}
	return r.v.s.transactions.get(id)
}

func (r *transactionRepo) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Transaction, error) {
	defer r.v.rlock()()
	return r.v.s.transactions.filter(func(t *domain.Transaction) bool {
		return t.CustomerID == customerID
	}), nil
}

func (r *transactionRepo) List(ctx context.Context) ([]*domain.Transaction, error) {
	defer r.v.rlock()()
	return r.v.s.transactions.filter(nil), nil
}

func (r *transactionRepo) CountByCustomerSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	defer r.v.rlock()()
	count := 0
	for _, t := range r.v.s.transactions.rows {
		if t.CustomerID == customerID && !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *transactionRepo) Update(ctx context.Context, txn *domain.Transaction) error {
	defer r.v.lock()()
	return r.v.s.transactions.update(r.v, txn)
}

type refundRepo struct{ v view }

func (r *refundRepo) Create(ctx context.Context, refund *domain.Refund) error {
	defer r.v.lock()()
	return r.v.s.refunds.insert(r.v, refund)
}

func (r *refundRepo) GetByID(ctx context.Context, id string) (*domain.Refund, error) {
	defer r.v.rlock()()
	return r.v.s.refunds.get(id)
}

func (r *refundRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Refund, error) {
	defer r.v.rlock()()
	return r.v.s.refunds.filter(func(rf *domain.Refund) bool {
		return rf.TransactionID == transactionID
	}), nil
}

func (r *refundRepo) Update(ctx context.Context, refund *domain.Refund) error {
	defer r.v.lock()()
	return r.v.s.refunds.update(r.v, refund)
}

type disputeRepo struct{ v view }

func (r *disputeRepo) Create(ctx context.Context, dispute *domain.Dispute) error {
	defer r.v.lock()()
	return r.v.s.disputes.insert(r.v, dispute)
}

func (r *disputeRepo) GetByID(ctx context.Context, id string) (*domain.Dispute, error) {
	defer r.v.rlock()()
	return r.v.s.disputes.get(id)
}

func (r *disputeRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Dispute, error) {
	defer r.v.rlock()()
	return r.v.s.disputes.filter(func(d *domain.Dispute) bool {
		return d.TransactionID == transactionID
	}), nil
}

func (r *disputeRepo) Update(ctx context.Context, dispute *domain.Dispute) error {
	defer r.v.lock()()
	return r.v.s.disputes.update(r.v, dispute)
}

type recurringRepo struct{ v view }

func (r *recurringRepo) Create(ctx context.Context, rp *domain.RecurringPayment) error {
	defer r.v.lock()()
	return r.v.s.recurring.insert(r.v, rp)
}

func (r *recurringRepo) GetByID(ctx context.Context, id string) (*domain.RecurringPayment, error) {
	defer r.v.rlock()()
	return r.v.s.recurring.get(id)
}

func (r *recurringRepo) List(ctx context.Context) ([]*domain.RecurringPayment, error) {
	defer r.v.rlock()()
	return r.v.s.recurring.filter(nil), nil
}

func (r *recurringRepo) ListDue(ctx context.Context, now time.Time) ([]*domain.RecurringPayment, error) {
	defer r.v.rlock()()
	return r.v.s.recurring.filter(func(rp *domain.RecurringPayment) bool {
		return rp.IsDue(now)
	}), nil
}

func (r *recurringRepo) Update(ctx context.Context, rp *domain.RecurringPayment) error {
	defer r.v.lock()()
	return r.v.s.recurring.update(r.v, rp)
}

type invoiceRepo struct{ v view }

func (r *invoiceRepo) Create(ctx context.Context, invoice *domain.Invoice) error {
	defer r.v.lock()()
	return r.v.s.invoices.insert(r.v, invoice)
}

func (r *invoiceRepo) GetByID(ctx context.Context, id string) (*domain.Invoice, error) {
	defer r.v.rlock()()
	return r.v.s.invoices.get(id)
}

func (r *invoiceRepo) Update(ctx context.Context, invoice *domain.Invoice) error {
	defer r.v.lock()()
	return r.v.s.invoices.update(r.v, invoice)
}
