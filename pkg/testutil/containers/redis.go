//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"veritas/internal/platform/config"
	platformredis "veritas/internal/platform/redis"
)

// RedisContainer backs the Redis query store in integration tests.
type RedisContainer struct {
	Container testcontainers.Container
	URL       string
	Client    *redis.Client
}

// NewRedisContainer starts redis:7 and connects through the same
// constructor the server uses, so pool settings are exercised too.
func NewRedisContainer(t *testing.T) *RedisContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	url, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("redis connection string: %v", err)
	}

	cfg := config.Default().Redis
	cfg.URL = url
	client, err := platformredis.New(ctx, cfg)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("connect redis: %v", err)
	}

	return &RedisContainer{Container: container, URL: url, Client: client.Client}
}

// FlushAll clears every key so each test starts from an empty store.
func (r *RedisContainer) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
