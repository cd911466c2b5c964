package cache

import (
	"context"
	"time"
)

// Cache is the shared store for one-time markers such as consumed OAuth
// states.
type Cache interface {
	// SetIfAbsent stores value only when key is not present. It reports
	// whether the value was stored. The check and the write are atomic.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Close closes the cache connection
	Close() error

	// Ping checks if cache is reachable
	Ping(ctx context.Context) error
}
