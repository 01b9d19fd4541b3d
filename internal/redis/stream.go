package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"paycore/internal/events"
)

const defaultStreamMaxLen = 100000

// StreamPublisher appends transaction events to a Redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamPublisher creates a publisher writing to stream.
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: defaultStreamMaxLen}
}

// Publish appends one entry. The stream is capped approximately at maxLen.
func (p *StreamPublisher) Publish(ctx context.Context, event events.Event) error {
	return p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"transaction_id":   event.TransactionID,
			"reference_number": event.ReferenceNumber,
			"customer_id":      event.CustomerID,
			"sequence":         strconv.Itoa(event.Sequence),
			"type":             string(event.Type),
			"status":           string(event.Status),
			"amount":           event.Amount,
			"currency":         event.Currency,
			"occurred_at":      event.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
}
