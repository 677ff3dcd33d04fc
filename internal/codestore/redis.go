package codestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/m3rciful/telelink/core/logger"
)

// RedisStore keeps pending codes in Redis, leaning on key TTLs for cleanup.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to the Redis instance described by the URL
// (redis://[user:pass@]host:port/db) and verifies connectivity.
func NewRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("codestore: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("codestore: redis ping: %w", err)
	}
	logger.DB.Info("redis connected",
		slog.String("event", "redis.connect"),
		slog.String("driver", "redis"),
		slog.String("host", opts.Addr),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	return &RedisStore{client: client}, nil
}

// Put stores value under key with the given TTL.
func (s *RedisStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("codestore: set %s: %w", key, err)
	}
	return nil
}

// Get returns the value and whether the key is present. Expired keys are absent.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("codestore: get %s: %w", key, err)
	}
	return val, true, nil
}

// Del removes the key. Deleting an absent key is not an error.
func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("codestore: del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
