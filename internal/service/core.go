package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"paycore/internal/config"
	"paycore/internal/domain"
	"paycore/internal/events"
	"paycore/internal/gateway"
	"paycore/internal/lock"
	"paycore/internal/logging"
	"paycore/internal/redis"
	"paycore/internal/repository"
)

const (
	defaultLockWait = 5 * time.Second

	// settlementRetryBase is multiplied by the attempt number.
	settlementRetryBase = 2 * time.Minute
)

// VelocityCounter answers how many transactions a customer made recently.
type VelocityCounter interface {
	CountSince(ctx context.Context, customerID string, since time.Time) (int, error)
	Record(ctx context.Context, customerID, transactionID string, at time.Time) error
}

// StatusCache is the short-lived transaction status cache read by order flows.
type StatusCache interface {
	GetStatus(ctx context.Context, transactionID string) (*redis.CachedStatus, error)
	SetStatus(ctx context.Context, status *redis.CachedStatus) error
	InvalidateStatus(ctx context.Context, transactionID string) error
}

// Ensure the Redis stores satisfy the service contracts.
var (
	_ VelocityCounter = (*redis.VelocityStore)(nil)
	_ StatusCache     = (*redis.CacheStore)(nil)
)

// Dependencies are the collaborators shared by every service of the engine.
// Ledger, Locker and Gateway are required; the rest have working defaults.
type Dependencies struct {
	Ledger    repository.Ledger
	Locker    lock.Locker
	Gateway   gateway.Gateway
	Publisher events.Publisher
	Velocity  VelocityCounter
	Cache     StatusCache
	Logger    *slog.Logger
	Features  config.Features
	Policy    config.Policy
	Scheduler config.SchedulerConfig
	LockWait  time.Duration
	Now       func() time.Time
}

// Engine groups the lifecycle services over one set of dependencies.
type Engine struct {
	Payments       *PaymentService
	Settlement     *SettlementService
	Reconciliation *ReconciliationService
	Refunds        *RefundService
	Disputes       *DisputeService
	Recurring      *RecurringService
	Summary        *SummaryService
}

// NewEngine wires every service of the payment lifecycle.
func NewEngine(deps Dependencies) *Engine {
	c := newCore(deps)
	payments := &PaymentService{core: c, risk: NewRiskEvaluator(c.policy)}
	return &Engine{
		Payments:       payments,
		Settlement:     &SettlementService{core: c},
		Reconciliation: &ReconciliationService{core: c},
		Refunds:        &RefundService{core: c},
		Disputes:       &DisputeService{core: c},
		Recurring:      &RecurringService{core: c, payments: payments},
		Summary:        &SummaryService{core: c},
	}
}

// core holds what the services share: storage, locking, the gateway and the
// event fan-out. Services never keep entity references between calls.
type core struct {
	ledger    repository.Ledger
	locker    lock.Locker
	gateway   gateway.Gateway
	publisher events.Publisher
	velocity  VelocityCounter
	cache     StatusCache
	logger    *slog.Logger
	features  config.Features
	policy    config.Policy
	scheduler config.SchedulerConfig
	lockWait  time.Duration
	now       func() time.Time
	refs      *ReferenceGenerator
}

func newCore(deps Dependencies) *core {
	c := &core{
		ledger:    deps.Ledger,
		locker:    deps.Locker,
		gateway:   deps.Gateway,
		publisher: deps.Publisher,
		velocity:  deps.Velocity,
		cache:     deps.Cache,
		logger:    deps.Logger,
		features:  deps.Features,
		policy:    deps.Policy,
		scheduler: deps.Scheduler,
		lockWait:  deps.LockWait,
		now:       deps.Now,
		refs:      NewReferenceGenerator(),
	}
	if c.locker == nil {
		c.locker = lock.NewKeyedMutex()
	}
	if c.publisher == nil {
		c.publisher = events.Discard{}
	}
	if c.velocity == nil {
		c.velocity = ledgerVelocity{ledger: deps.Ledger}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.lockWait <= 0 {
		c.lockWait = defaultLockWait
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	return c
}

// ledgerVelocity counts from the ledger itself when no dedicated counter is
// configured. Record is a no-op because the ledger already holds the row.
type ledgerVelocity struct {
	ledger repository.Ledger
}

func (v ledgerVelocity) CountSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	return v.ledger.Transactions().CountByCustomerSince(ctx, customerID, since)
}

func (ledgerVelocity) Record(context.Context, string, string, time.Time) error { return nil }

// lock acquires keys in order, waiting at most lockWait overall. The returned
// release frees them in reverse order.
func (c *core) lock(ctx context.Context, keys ...string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
	defer cancel()

	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}

	for _, key := range keys {
		release, err := c.locker.Lock(lockCtx, key)
		if err != nil {
			releaseAll()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, lock.ErrNotAcquired) {
				return nil, fmt.Errorf("%w: %s", ErrEntityBusy, key)
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

// committed runs after a transaction write succeeded: it logs and publishes
// every event from index mark on and refreshes the status cache. Callers
// still hold the transaction lock so events leave in log order.
func (c *core) committed(ctx context.Context, txn *domain.Transaction, mark int) {
	if mark < 0 || mark > len(txn.Events) {
		mark = len(txn.Events)
	}

	prev := domain.TransactionStatus("")
	if mark > 0 {
		prev = txn.Events[mark-1].Status
	}

	for _, e := range txn.Events[mark:] {
		c.logger.InfoContext(ctx, "transaction state change",
			"transaction_id", txn.ID,
			"status", string(e.Status),
			"event", string(e.Type),
		)
		if e.Status != prev {
			transactionStatusCounter.WithLabelValues(string(e.Status)).Inc()
			prev = e.Status
		}
		if err := c.publisher.Publish(ctx, events.FromTransaction(txn, e)); err != nil {
			eventPublishFailures.Inc()
			c.logger.WarnContext(ctx, "failed to publish transaction event",
				"transaction_id", txn.ID,
				"event", string(e.Type),
				"error", err,
			)
		}
	}

	if c.cache != nil {
		status := &redis.CachedStatus{
			TransactionID: txn.ID,
			OrderID:       txn.OrderID,
			Status:        string(txn.Status),
			UpdatedAt:     txn.UpdatedAt,
		}
		if err := c.cache.SetStatus(ctx, status); err != nil {
			c.logger.WarnContext(ctx, "failed to refresh status cache", "transaction_id", txn.ID, "error", err)
		}
	}
}

// saveTransaction persists txn and emits its new events.
func (c *core) saveTransaction(ctx context.Context, txn *domain.Transaction, mark int) error {
	if err := c.ledger.Transactions().Update(ctx, txn); err != nil {
		return err
	}
	c.committed(ctx, txn, mark)
	return nil
}

// loadTransaction fetches a transaction by id after validating the id.
func (c *core) loadTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	if id == "" {
		return nil, ErrInvalidTransactionID
	}
	return c.ledger.Transactions().GetByID(ctx, id)
}

// observeGateway records the latency and outcome of one gateway call.
func observeGateway(operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	gatewayRequestDurationHist.WithLabelValues(operation, result).Observe(time.Since(started).Seconds())
}

func gatewayError(err error) error {
	return fmt.Errorf("%w: %v", ErrGateway, err)
}

// segment starts a New Relic segment on the transaction carried by ctx, if any.
func segment(ctx context.Context, name string) *newrelic.Segment {
	return newrelic.FromContext(ctx).StartSegment(name)
}

// backoff grows linearly with the attempt number.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}
