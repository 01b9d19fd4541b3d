package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatusCacheTTL bounds how stale an order-facing status lookup can be.
const StatusCacheTTL = 10 * time.Second

const statusCachePrefix = "cache:txn-status:"

// CachedStatus is the order-facing view of a transaction.
type CachedStatus struct {
	TransactionID string    `json:"transaction_id"`
	OrderID       string    `json:"order_id"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CacheStore handles transaction status caching in Redis.
type CacheStore struct {
	client *redis.Client
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client}
}

// GetStatus retrieves a cached status. A miss returns nil, nil.
func (s *CacheStore) GetStatus(ctx context.Context, transactionID string) (*CachedStatus, error) {
	data, err := s.client.Get(ctx, statusCachePrefix+transactionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var status CachedStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetStatus stores a status in cache.
func (s *CacheStore) SetStatus(ctx context.Context, status *CachedStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, statusCachePrefix+status.TransactionID, data, StatusCacheTTL).Err()
}

// InvalidateStatus removes a transaction's cached status.
func (s *CacheStore) InvalidateStatus(ctx context.Context, transactionID string) error {
	return s.client.Del(ctx, statusCachePrefix+transactionID).Err()
}
