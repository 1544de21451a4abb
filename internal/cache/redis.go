package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ecofin/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "ecofin:idempotency:"

// RedisStore shares idempotency keys across instances.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

var _ IdempotencyStore = (*RedisStore)(nil)

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ""), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, Pending, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Complete(ctx context.Context, key, result string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.keyPrefix+key, result, ttl).Err(); err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, s.keyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return val, true, nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
