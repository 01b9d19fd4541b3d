package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"paycore/internal/lock"
)

const (
	defaultLockTTL   = 30 * time.Second
	defaultLockRetry = 25 * time.Millisecond
)

// releaseScript deletes the key only while it still holds our token, so an
// expired holder never frees a lock another process has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockStore handles distributed per-entity locking in Redis.
type LockStore struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// NewLockStore creates a new LockStore. Zero durations pick the defaults.
func NewLockStore(client *redis.Client, ttl, retry time.Duration) *LockStore {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if retry <= 0 {
		retry = defaultLockRetry
	}
	return &LockStore{client: client, ttl: ttl, retry: retry}
}

// Lock polls SET NX PX until the key is ours or ctx is done.
func (s *LockStore) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := fmt.Sprintf("lock:%s", key)
	token := uuid.NewString()

	ticker := time.NewTicker(s.retry)
	defer ticker.Stop()

	for {
		ok, err := s.client.SetNX(ctx, redisKey, token, s.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(lock.ErrNotAcquired, ctx.Err())
			}
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(lock.ErrNotAcquired, ctx.Err())
		case <-ticker.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, s.client, []string{redisKey}, token).Err()
		})
	}, nil
}
