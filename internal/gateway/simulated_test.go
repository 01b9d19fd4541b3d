package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedRefund_DeduplicatesOnRefundID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewSimulated(decimal.Zero)

	req := RefundRequest{RefundID: "rf-1", TransactionID: "t1", Amount: decimal.NewFromInt(10), Currency: "USD"}
	first, err := g.Refund(ctx, req)
	require.NoError(t, err)
	again, err := g.Refund(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Reference, again.Reference)

	req.RefundID = "rf-2"
	other, err := g.Refund(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Reference, other.Reference)
}

func TestSimulatedAuthorize_Limit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	g := NewSimulated(decimal.NewFromInt(100))

	ok, err := g.Authorize(ctx, AuthorizeRequest{Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.True(t, ok.Approved)

	declined, err := g.Authorize(ctx, AuthorizeRequest{Amount: decimal.NewFromInt(101)})
	require.NoError(t, err)
	assert.False(t, declined.Approved)
	assert.Equal(t, "61", declined.ResponseCode)
}
