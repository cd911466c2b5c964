package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements cache using Redis. It is shared by every instance of
// the service, so one-time markers hold across replicas.
type RedisCache struct {
	client    redis.UniversalClient
	keyPrefix string
}

// Config holds Redis specific configuration
type Config struct {
	// Connection
	Host     string
	Port     string
	Password string
	Database int
	URL      string

	// Pool settings
	MaxRetries      int
	PoolSize        int
	MinIdleConns    int
	ConnMaxIdleTime time.Duration

	// TLS
	UseTLS   bool
	CertFile string
	KeyFile  string

	Namespace string
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*RedisCache, error) {
	opts := &redis.UniversalOptions{
		Addrs:    []string{buildAddr(cfg)},
		Password: cfg.Password,
		DB:       cfg.Database,
	}

	if cfg.URL != "" {
		opt, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		opts = &redis.UniversalOptions{
			Addrs:     []string{opt.Addr},
			Password:  opt.Password,
			DB:        opt.DB,
			TLSConfig: opt.TLSConfig,
		}
	}

	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.ConnMaxIdleTime > 0 {
		opts.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}

	if cfg.UseTLS && opts.TLSConfig == nil {
		tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.CertFile != "" && cfg.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS cert: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		opts.TLSConfig = tlsConfig
	}

	client := redis.NewUniversalClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var prefix string
	if cfg.Namespace != "" {
		prefix = cfg.Namespace + ":"
	}

	return &RedisCache{client: client, keyPrefix: prefix}, nil
}

// SetIfAbsent stores value with SET NX.
func (rc *RedisCache) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return rc.client.SetNX(ctx, rc.keyPrefix+key, value, ttl).Result()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Ping checks if Redis is reachable
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func buildAddr(cfg Config) string {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == "" {
		cfg.Port = "6379"
	}
	return fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
}
