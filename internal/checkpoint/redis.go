package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps the document under a single redis key.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend connects to redis and verifies the connection.
func NewRedisBackend(ctx context.Context, addr, password string, db int, key string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &RedisBackend{client: client, key: key}, nil
}

// Name implements Backend.
func (b *RedisBackend) Name() string { return "redis" }

// Read implements Backend.
func (b *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write implements Backend.
func (b *RedisBackend) Write(ctx context.Context, data []byte) error {
	return b.client.Set(ctx, b.key, data, 0).Err()
}

// Close implements Backend.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
