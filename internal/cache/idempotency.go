// Package cache holds short-lived shared state such as idempotency keys.
package cache

import (
	"context"
	"fmt"
	"time"

	"ecofin/internal/config"

	"go.uber.org/zap"
)

// Pending is the value held by a key whose request is still running.
const Pending = "pending"

// IdempotencyStore reserves request keys so a retried request is not executed twice.
type IdempotencyStore interface {
	// Reserve marks key as pending. It returns false when the key already exists.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Complete stores the result reference for a reserved key.
	Complete(ctx context.Context, key, result string, ttl time.Duration) error
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Release drops a reservation so the request can be retried.
	Release(ctx context.Context, key string) error
}

// NewIdempotencyStore returns a redis store when enabled and reachable, else an
// in-memory store.
func NewIdempotencyStore(cfg config.RedisConfig, log *zap.Logger) IdempotencyStore {
	if !cfg.Enabled {
		log.Info("Using in-memory idempotency store")
		return NewMemoryStore()
	}

	store, err := NewRedisStore(cfg)
	if err != nil {
		log.Warn("Redis unavailable, falling back to in-memory idempotency store. "+
			"Retries served by another instance will not be deduplicated.",
			zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
			zap.Error(err),
		)
		return NewMemoryStore()
	}
	log.Info("Using Redis idempotency store")
	return store
}
