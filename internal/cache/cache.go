package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key does not exist.
var ErrMiss = errors.New("cache: miss")

// Counter is the fixed-window counter used by the rate limiter.
type Counter interface {
	// IncrementWithExpiry increments key and, on the first increment, sets its expiry to window.
	IncrementWithExpiry(ctx context.Context, key string, window time.Duration) (int64, error)
	// TTL returns the remaining lifetime of key, or 0 when it has none.
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// Store holds shared read-mostly values such as the circulating supply and the model catalog.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
