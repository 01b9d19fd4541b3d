package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycore/internal/domain"
	"paycore/internal/gateway"
	"paycore/internal/redis"
)

func TestCustomerSummary(t *testing.T) {
	t.Parallel()
	h := newHarness(t, withFeatures(autoRefund))
	ctx := context.Background()

	settled := h.settled(t, "100.00")
	_, err := h.engine.Refunds.RequestRefund(ctx, RefundRequest{TransactionID: settled.ID, Amount: dec("40.00"), Reason: domain.RefundReasonOther})
	require.NoError(t, err)

	h.captured(t, "25.00")

	h.gateway.set(func(g *fakeGateway) { g.decline = true })
	_, err = h.engine.Payments.SubmitPayment(ctx, cardIntent("C1", "10.00"))
	require.ErrorIs(t, err, ErrDeclined)

	summary, err := h.engine.Summary.CustomerSummary(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 3, summary.TransactionCount)
	assert.Equal(t, 2, summary.CapturedCount)
	assert.Equal(t, 1, summary.SettledCount)
	assert.Equal(t, 1, summary.FailedCount)
	assert.Equal(t, "125.00", summary.TotalCaptured.StringFixed(2))
	assert.Equal(t, "100.00", summary.TotalSettled.StringFixed(2))
	assert.Equal(t, "40.00", summary.TotalRefunded.StringFixed(2))
	assert.Equal(t, "85.00", summary.NetCollected.StringFixed(2))
	assert.Equal(t, "USD", summary.Currency)

	empty, err := h.engine.Summary.CustomerSummary(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.TransactionCount)
	assert.True(t, empty.NetCollected.IsZero())

	_, err = h.engine.Summary.CustomerSummary(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidCustomerID)
}

// mapCache is an in-process StatusCache.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]redis.CachedStatus
	getErr  error
	gets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]redis.CachedStatus)}
}

func (c *mapCache) GetStatus(ctx context.Context, transactionID string) (*redis.CachedStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.getErr != nil {
		return nil, c.getErr
	}
	status, ok := c.entries[transactionID]
	if !ok {
		return nil, nil
	}
	return &status, nil
}

func (c *mapCache) SetStatus(ctx context.Context, status *redis.CachedStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[status.TransactionID] = *status
	return nil
}

func (c *mapCache) InvalidateStatus(ctx context.Context, transactionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, transactionID)
	return nil
}

func TestOrderStatus_ReadsThroughCache(t *testing.T) {
	t.Parallel()
	cache := newMapCache()
	h := newHarness(t, func(d *Dependencies) { d.Cache = cache })
	ctx := context.Background()

	intent := cardIntent("C1", "30")
	intent.OrderID = "ORD-1"
	txn, err := h.engine.Payments.SubmitPayment(ctx, intent)
	require.NoError(t, err)

	status, err := h.engine.Summary.OrderStatus(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, status.Cached)
	assert.True(t, status.Fulfillable)
	assert.Equal(t, "ORD-1", status.OrderID)
	assert.Equal(t, domain.TransactionStatusCaptured, status.Status)

	require.NoError(t, cache.InvalidateStatus(ctx, txn.ID))
	status, err = h.engine.Summary.OrderStatus(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, status.Cached)
	assert.True(t, status.Fulfillable)

	// The miss refreshed the cache.
	status, err = h.engine.Summary.OrderStatus(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, status.Cached)
}

func TestOrderStatus_CacheErrorFallsBackToLedger(t *testing.T) {
	t.Parallel()
	cache := newMapCache()
	cache.getErr = errors.New("connection refused")
	h := newHarness(t, func(d *Dependencies) { d.Cache = cache })
	ctx := context.Background()

	h.gateway.set(func(g *fakeGateway) { g.authorizeErr = gateway.ErrUnavailable })
	txn, err := h.engine.Payments.SubmitPayment(ctx, cardIntent("C1", "30"))
	require.ErrorIs(t, err, ErrGateway)

	status, err := h.engine.Summary.OrderStatus(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, status.Cached)
	assert.False(t, status.Fulfillable)
	assert.Equal(t, domain.TransactionStatusPending, status.Status)
}

func TestOrderStatus_WithoutCache(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	txn := h.captured(t, "30")

	status, err := h.engine.Summary.OrderStatus(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.False(t, status.Cached)
	assert.True(t, status.Fulfillable)
}
