package tests

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"paycore/internal/config"
	"paycore/internal/domain"
	"paycore/internal/events"
	"paycore/internal/gateway"
	"paycore/internal/lock"
	"paycore/internal/logging"
	"paycore/internal/repository/memory"
	"paycore/internal/service"
)

// ──────────────────────────────────────────────
// MOCK EVENT SINK
// ──────────────────────────────────────────────

// MockEventSink records every published lifecycle event.
type MockEventSink struct {
	mu     sync.Mutex
	events []events.Event

	PublishCallCount int32
}

// NewMockEventSink creates an empty sink.
func NewMockEventSink() *MockEventSink {
	return &MockEventSink{}
}

func (m *MockEventSink) Publish(ctx context.Context, event events.Event) error {
	atomic.AddInt32(&m.PublishCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// TypesFor returns the event types published for one transaction, in order.
func (m *MockEventSink) TypesFor(transactionID string) []domain.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.EventType
	for _, e := range m.events {
		if e.TransactionID == transactionID {
			out = append(out, e.Type)
		}
	}
	return out
}

// SequencesFor returns the published sequence numbers for one transaction.
func (m *MockEventSink) SequencesFor(transactionID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, e := range m.events {
		if e.TransactionID == transactionID {
			out = append(out, e.Sequence)
		}
	}
	return out
}

// ──────────────────────────────────────────────
// COUNTING GATEWAY
// ──────────────────────────────────────────────

// CountingGateway wraps the simulated gateway and counts calls per operation.
type CountingGateway struct {
	inner *gateway.Simulated

	AuthorizeCallCount int32
	CaptureCallCount   int32
	ReverseCallCount   int32
	RefundCallCount    int32
}

// NewCountingGateway wraps a simulated gateway declining above limit.
func NewCountingGateway(limit decimal.Decimal) *CountingGateway {
	return &CountingGateway{inner: gateway.NewSimulated(limit)}
}

func (g *CountingGateway) Authorize(ctx context.Context, req gateway.AuthorizeRequest) (*gateway.AuthorizeResult, error) {
	atomic.AddInt32(&g.AuthorizeCallCount, 1)
	return g.inner.Authorize(ctx, req)
}

func (g *CountingGateway) Capture(ctx context.Context, req gateway.CaptureRequest) (*gateway.CaptureResult, error) {
	atomic.AddInt32(&g.CaptureCallCount, 1)
	return g.inner.Capture(ctx, req)
}

func (g *CountingGateway) Reverse(ctx context.Context, transactionID, authorizationCode string) error {
	atomic.AddInt32(&g.ReverseCallCount, 1)
	return g.inner.Reverse(ctx, transactionID, authorizationCode)
}

func (g *CountingGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	atomic.AddInt32(&g.RefundCallCount, 1)
	return g.inner.Refund(ctx, req)
}

// ──────────────────────────────────────────────
// CLOCK
// ──────────────────────────────────────────────

// MockClock is a settable clock shared by every service of an engine.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock starts the clock at t.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ──────────────────────────────────────────────
// ENGINE FIXTURE
// ──────────────────────────────────────────────

// Fixture is a fully wired engine over the in-memory ledger, the in-process
// locker and the simulated gateway.
type Fixture struct {
	Engine  *service.Engine
	Store   *memory.Store
	Locker  *lock.KeyedMutex
	Gateway *CountingGateway
	Sink    *MockEventSink
	Clock   *MockClock
}

// NewFixture wires an engine with the default configuration. configure may
// adjust features and policy before wiring.
func NewFixture(configure ...func(*config.Config)) *Fixture {
	cfg := config.Defaults()
	cfg.Policy.ExchangeRates = map[string]decimal.Decimal{}
	for _, fn := range configure {
		fn(cfg)
	}

	f := &Fixture{
		Store:   memory.NewStore(),
		Locker:  lock.NewKeyedMutex(),
		Gateway: NewCountingGateway(cfg.Gateway.AuthorizationLimit),
		Sink:    NewMockEventSink(),
		Clock:   NewMockClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	logger := logging.Discard()
	f.Engine = service.NewEngine(service.Dependencies{
		Ledger:    f.Store,
		Locker:    f.Locker,
		Gateway:   f.Gateway,
		Publisher: events.NewMultiPublisher(events.NewLogPublisher(logger), f.Sink),
		Logger:    logger,
		Features:  cfg.Features,
		Policy:    cfg.Policy,
		Scheduler: cfg.Scheduler,
		LockWait:  2 * time.Second,
		Now:       f.Clock.Now,
	})
	return f
}

// CardIntent is a low-risk credit card payment for customer.
func CardIntent(customerID, amount string) service.PaymentIntent {
	return service.PaymentIntent{
		CustomerID:    customerID,
		Amount:        decimal.RequireFromString(amount),
		Currency:      "USD",
		PaymentMethod: "CREDIT_CARD",
		Instrument:    "4111111111111234",
		Brand:         "VISA",
	}
}
