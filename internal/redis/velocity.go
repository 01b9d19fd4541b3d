package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	velocityKeyPrefix = "velocity:customer:"
	velocityRetention = 24 * time.Hour
)

// VelocityStore counts a customer's recent transactions with one sorted set
// per customer, scored by creation time in milliseconds.
type VelocityStore struct {
	client *redis.Client
}

// NewVelocityStore creates a new VelocityStore.
func NewVelocityStore(client *redis.Client) *VelocityStore {
	return &VelocityStore{client: client}
}

// Record adds a transaction to the customer's window and trims entries older
// than the retention period.
func (s *VelocityStore) Record(ctx context.Context, customerID, transactionID string, at time.Time) error {
	key := velocityKeyPrefix + customerID
	cutoff := at.Add(-velocityRetention).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: transactionID})
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.Expire(ctx, key, velocityRetention)
	_, err := pipe.Exec(ctx)
	return err
}

// CountSince returns how many transactions the customer created at or after since.
func (s *VelocityStore) CountSince(ctx context.Context, customerID string, since time.Time) (int, error) {
	key := velocityKeyPrefix + customerID
	count, err := s.client.ZCount(ctx, key, strconv.FormatInt(since.UnixMilli(), 10), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
