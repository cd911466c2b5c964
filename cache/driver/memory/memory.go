package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrMaxKeys is returned when the key limit would be exceeded.
var ErrMaxKeys = errors.New("cache: max keys limit reached")

type item struct {
	value      []byte
	expiration int64
}

func (i *item) expired(now int64) bool {
	return i.expiration > 0 && now > i.expiration
}

// MemoryCache implements an in-memory cache for single-instance deployments.
type MemoryCache struct {
	mu              sync.Mutex
	items           map[string]*item
	maxKeys         int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	keyPrefix       string
}

// Config holds memory cache specific configuration
type Config struct {
	MaxKeys         int
	CleanupInterval time.Duration
	Namespace       string
}

// New creates a new memory cache instance and starts its expiry sweeper.
func New(cfg Config) (*MemoryCache, error) {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	var prefix string
	if cfg.Namespace != "" {
		prefix = cfg.Namespace + ":"
	}

	mc := &MemoryCache{
		items:           make(map[string]*item),
		maxKeys:         cfg.MaxKeys,
		cleanupInterval: cfg.CleanupInterval,
		stopCleanup:     make(chan struct{}),
		keyPrefix:       prefix,
	}

	go mc.cleanupExpired()

	return mc, nil
}

// SetIfAbsent stores value only when key is missing or expired.
func (mc *MemoryCache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now()
	fullKey := mc.keyPrefix + key
	it, exists := mc.items[fullKey]
	if exists && !it.expired(now.UnixNano()) {
		return false, nil
	}
	if !exists && mc.maxKeys > 0 && len(mc.items) >= mc.maxKeys {
		return false, ErrMaxKeys
	}

	var expiration int64
	if ttl > 0 {
		expiration = now.Add(ttl).UnixNano()
	}
	mc.items[fullKey] = &item{value: value, expiration: expiration}
	return true, nil
}

// Close stops the expiry sweeper. It is safe to call more than once.
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() { close(mc.stopCleanup) })
	return nil
}

// Ping always succeeds.
func (mc *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

func (mc *MemoryCache) cleanupExpired() {
	ticker := time.NewTicker(mc.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			mc.removeExpired()
		case <-mc.stopCleanup:
			return
		}
	}
}

func (mc *MemoryCache) removeExpired() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := time.Now().UnixNano()
	for key, it := range mc.items {
		if it.expired(now) {
			delete(mc.items, key)
		}
	}
}
