package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"veritas/internal/platform/config"
)

// Client is the shared go-redis handle plus the key namespace stores write under.
type Client struct {
	*redis.Client
	Prefix string
}

// New connects to the configured Redis and pings it. An empty URL means
// Redis is not configured: both return values are nil and callers fall
// back to in-memory query storage.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	// Zero values keep the go-redis defaults.
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "veritas"
	}
	return &Client{Client: client, Prefix: prefix}, nil
}

// Health is registered as the "redis" readiness check.
func (c *Client) Health(ctx context.Context) error {
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}
