package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"paycore/internal/config"
	"paycore/internal/domain"
	"paycore/internal/events"
	"paycore/internal/gateway"
	"paycore/internal/repository/memory"
)

// fakeGateway approves everything unless told otherwise and counts calls.
type fakeGateway struct {
	mu sync.Mutex

	decline      bool
	authorizeErr error
	captureErr   error
	reverseErr   error
	refundErr    error
	onRefund     func(gateway.RefundRequest)

	authorizeCalls int
	captureCalls   int
	reverseCalls   int
	refundCalls    int
	lastAuthorize  gateway.AuthorizeRequest
	lastCapture    gateway.CaptureRequest
	refunded       []gateway.RefundRequest
}

func (g *fakeGateway) Authorize(ctx context.Context, req gateway.AuthorizeRequest) (*gateway.AuthorizeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authorizeCalls++
	g.lastAuthorize = req
	if g.authorizeErr != nil {
		return nil, g.authorizeErr
	}
	if g.decline {
		return &gateway.AuthorizeResult{Approved: false, ResponseCode: "51", ResponseMessage: "Insufficient funds"}, nil
	}
	return &gateway.AuthorizeResult{Approved: true, ResponseCode: "00", ResponseMessage: "Approved"}, nil
}

func (g *fakeGateway) Capture(ctx context.Context, req gateway.CaptureRequest) (*gateway.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captureCalls++
	g.lastCapture = req
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &gateway.CaptureResult{Reference: "cap-" + req.TransactionID}, nil
}

func (g *fakeGateway) Reverse(ctx context.Context, transactionID, authorizationCode string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reverseCalls++
	return g.reverseErr
}

func (g *fakeGateway) Refund(ctx context.Context, req gateway.RefundRequest) (*gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundCalls++
	if g.onRefund != nil {
		g.onRefund(req)
	}
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunded = append(g.refunded, req)
	return &gateway.RefundResult{Reference: "rf-" + req.RefundID}, nil
}

func (g *fakeGateway) set(fn func(g *fakeGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *fakeGateway) calls() (authorize, capture, reverse, refund int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authorizeCalls, g.captureCalls, g.reverseCalls, g.refundCalls
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types(transactionID string) []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.EventType
	for _, e := range p.events {
		if e.TransactionID == transactionID {
			out = append(out, e.Type)
		}
	}
	return out
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine    *Engine
	store     *memory.Store
	gateway   *fakeGateway
	publisher *recordingPublisher
	clock     *testClock
}

// newHarness builds an engine over an in-memory ledger with every stage on
// and auto-refund off. configure may adjust the dependencies before wiring.
func newHarness(t *testing.T, configure ...func(*Dependencies)) *harness {
	t.Helper()

	cfg := config.Defaults()
	h := &harness{
		store:     memory.NewStore(),
		gateway:   &fakeGateway{},
		publisher: &recordingPublisher{},
		clock:     newTestClock(),
	}
	deps := Dependencies{
		Ledger:    h.store,
		Gateway:   h.gateway,
		Publisher: h.publisher,
		Features:  cfg.Features,
		Policy:    cfg.Policy,
		Scheduler: cfg.Scheduler,
		LockWait:  time.Second,
		Now:       h.clock.Now,
	}
	deps.Policy.ExchangeRates = map[string]decimal.Decimal{}
	for _, fn := range configure {
		fn(&deps)
	}
	h.engine = NewEngine(deps)
	return h
}

func withFeatures(fn func(*config.Features)) func(*Dependencies) {
	return func(d *Dependencies) { fn(&d.Features) }
}

func withPolicy(fn func(*config.Policy)) func(*Dependencies) {
	return func(d *Dependencies) { fn(&d.Policy) }
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func cardIntent(customerID, amount string) PaymentIntent {
	return PaymentIntent{
		CustomerID:    customerID,
		Amount:        dec(amount),
		Currency:      "USD",
		PaymentMethod: "CREDIT_CARD",
		Instrument:    "4111 1111 1111 1234",
		Brand:         "VISA",
	}
}

// captured submits a low-risk card payment and requires it to end CAPTURED.
func (h *harness) captured(t *testing.T, amount string) *domain.Transaction {
	t.Helper()
	txn, err := h.engine.Payments.SubmitPayment(context.Background(), cardIntent("C1", amount))
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatusCaptured, txn.Status)
	return txn
}

// settled submits and settles a low-risk card payment.
func (h *harness) settled(t *testing.T, amount string) *domain.Transaction {
	t.Helper()
	txn := h.captured(t, amount)
	txn, err := h.engine.Settlement.ConfirmSettlement(context.Background(), txn.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionStatusSettled, txn.Status)
	return txn
}

func eventTypes(txn *domain.Transaction) []domain.EventType {
	out := make([]domain.EventType, 0, len(txn.Events))
	for _, e := range txn.Events {
		out = append(out, e.Type)
	}
	return out
}

func countEvents(txn *domain.Transaction, eventType domain.EventType) int {
	n := 0
	for _, e := range txn.Events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

// fakeVelocity reports a fixed recent-transaction count.
type fakeVelocity struct {
	count int
	err   error
}

func (v fakeVelocity) CountSince(context.Context, string, time.Time) (int, error) {
	return v.count, v.err
}

func (fakeVelocity) Record(context.Context, string, string, time.Time) error { return nil }

func withVelocity(count int, err error) func(*Dependencies) {
	return func(d *Dependencies) { d.Velocity = fakeVelocity{count: count, err: err} }
}

func indexOf(types []domain.EventType, want domain.EventType) int {
	for i, t := range types {
		if t == want {
			return i
		}
	}
	return -1
}
