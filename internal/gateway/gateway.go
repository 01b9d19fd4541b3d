// Package gateway is the boundary to downstream settlement channels.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"paycore/internal/domain"
)

// Settlement channels chosen by the router.
const (
	ChannelHighCapacity = "HIGH_CAPACITY"
	ChannelWallet       = "WALLET"
	ChannelDefault      = "DEFAULT"
)

// ErrUnavailable is returned when the gateway cannot be reached. Callers may retry.
var ErrUnavailable = errors.New("gateway unavailable")

// AuthorizeRequest asks the issuer to reserve funds.
type AuthorizeRequest struct {
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
	Method        domain.PaymentMethod
	Token         string
	ThreeDSecure  bool
}

// AuthorizeResult is the issuer's verdict.
type AuthorizeResult struct {
	Approved        bool
	ResponseCode    string
	ResponseMessage string
}

// CaptureRequest moves reserved funds through a channel.
type CaptureRequest struct {
	TransactionID     string
	AuthorizationCode string
	Channel           string
	Amount            decimal.Decimal
	Currency          string
}

// CaptureResult identifies the capture at the channel.
type CaptureResult struct {
	Reference string
}

// RefundRequest returns funds for a prior capture. RefundID is the
// deduplication key.
type RefundRequest struct {
	RefundID      string
	TransactionID string
	Channel       string
	Amount        decimal.Decimal
	Currency      string
}

// RefundResult identifies the refund at the channel.
type RefundResult struct {
	Reference string
}

// Gateway is the interface for a downstream payment processor.
type Gateway interface {
	Authorize(ctx context.Context, req AuthorizeRequest) (*AuthorizeResult, error)
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
	// Reverse voids an authorization that will never be captured.
	Reverse(ctx context.Context, transactionID, authorizationCode string) error
	// Refund must be idempotent on RefundID: a repeated request for the same
	// refund returns the original reference and moves no money.
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}
