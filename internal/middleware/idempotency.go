package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	replayedHeader    = "Idempotent-Replayed"
)

// CachedResponse is a stored response replayed for a repeated key.
type CachedResponse struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body"`
}

// ResponseStore keeps replayable responses. A miss returns nil and no error.
type ResponseStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, error)
	Set(ctx context.Context, key string, response *CachedResponse, ttl time.Duration) error
}

// IdempotencyMiddleware replays the stored response of a mutating request
// whose Idempotency-Key was seen before. A nil client disables replay; the
// services still deduplicate payment submissions on the key.
func IdempotencyMiddleware(redisClient *redis.Client) gin.HandlerFunc {
	if redisClient == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return IdempotencyMiddlewareWithStore(&redisResponseStore{client: redisClient})
}

// IdempotencyMiddlewareWithStore is IdempotencyMiddleware over any store.
func IdempotencyMiddlewareWithStore(store ResponseStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := replayKey(c, key)

		cached, err := store.Get(ctx, cacheKey)
		if err != nil {
			// Store error - proceed without replay.
			c.Next()
			return
		}
		if cached != nil {
			replay(c, cached)
			return
		}

		capture := &captureWriter{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		status := capture.Status()
		if !replayable(status) {
			return
		}
		_ = store.Set(ctx, cacheKey, &CachedResponse{
			StatusCode:  status,
			ContentType: capture.Header().Get("Content-Type"),
			Body:        capture.body.Bytes(),
		}, idempotencyTTL)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// replayKey scopes the key to the route: the same key on different routes
// names different operations.
func replayKey(c *gin.Context, key string) string {
	return "idempotency:" + c.Request.Method + ":" + c.FullPath() + ":" + key
}

// replayable excludes server errors and lock contention, which a client is
// expected to retry.
func replayable(status int) bool {
	return status >= 200 && status < 500 && status != http.StatusConflict
}

func replay(c *gin.Context, cached *CachedResponse) {
	contentType := cached.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Header(replayedHeader, "true")
	c.Data(cached.StatusCode, contentType, cached.Body)
	c.Abort()
}

// captureWriter tees the response body.
type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

type redisResponseStore struct {
	client *redis.Client
}

func (s *redisResponseStore) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached CachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func (s *redisResponseStore) Set(ctx context.Context, key string, response *CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, ttl).Err()
}
