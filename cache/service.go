package cache

import (
	"errors"
	"strings"

	"github.com/gobeaver/beaver-signin/cache/driver/memory"
	"github.com/gobeaver/beaver-signin/cache/driver/redis"
)

// Common errors
var (
	ErrInvalidDriver = errors.New("invalid cache driver")
	ErrDisabled      = errors.New("cache disabled")
)

// New creates a cache instance for the configured driver. The "none" driver
// returns ErrDisabled so callers can run without a cache.
func New(cfg Config) (Cache, error) {
	switch strings.ToLower(cfg.Driver) {
	case "memory", "builtin", "":
		return memory.New(memory.Config{
			MaxKeys:         cfg.MaxKeys,
			CleanupInterval: cfg.CleanupInterval,
			Namespace:       cfg.Namespace,
		})
	case "redis":
		return redis.New(redis.Config{
			Host:            cfg.Host,
			Port:            cfg.Port,
			Password:        cfg.Password,
			Database:        cfg.Database,
			URL:             cfg.URL,
			MaxRetries:      cfg.MaxRetries,
			PoolSize:        cfg.PoolSize,
			MinIdleConns:    cfg.MinIdleConns,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			UseTLS:          cfg.UseTLS,
			CertFile:        cfg.CertFile,
			KeyFile:         cfg.KeyFile,
			Namespace:       cfg.Namespace,
		})
	case "none", "disabled":
		return nil, ErrDisabled
	default:
		return nil, ErrInvalidDriver
	}
}
