package gateway

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Simulated is an in-process Gateway. It approves everything under its
// authorization limit and never fails otherwise.
type Simulated struct {
	authLimit decimal.Decimal

	mu      sync.Mutex
	refunds map[string]string // refund ID -> reference
}

// NewSimulated creates a simulated gateway. A zero limit disables declines.
func NewSimulated(authLimit decimal.Decimal) *Simulated {
	return &Simulated{authLimit: authLimit, refunds: make(map[string]string)}
}

// Authorize approves with response code "00" or declines with "61" when the
// amount exceeds the configured limit.
func (g *Simulated) Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if g.authLimit.IsPositive() && req.Amount.GreaterThan(g.authLimit) {
		return &AuthorizeResult{
			Approved:        false,
			ResponseCode:    "61",
			ResponseMessage: "Exceeds withdrawal amount limit",
		}, nil
	}

	return &AuthorizeResult{
		Approved:        true,
		ResponseCode:    "00",
		ResponseMessage: "Approved",
	}, nil
}

// Capture returns a channel-scoped reference.
func (g *Simulated) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &CaptureResult{Reference: strings.ToLower(req.Channel) + "-" + uuid.NewString()}, nil
}

// Reverse always succeeds.
func (g *Simulated) Reverse(ctx context.Context, transactionID, authorizationCode string) error {
	return ctx.Err()
}

// Refund returns a refund reference, the same one for a repeated RefundID.
func (g *Simulated) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	ref, ok := g.refunds[req.RefundID]
	if !ok {
		ref = "rf-" + uuid.NewString()
		g.refunds[req.RefundID] = ref
	}
	return &RefundResult{Reference: ref}, nil
}
