// Package storage keeps uploaded payroll files and invoice PDFs.
package storage

import (
	"context"
	"errors"
	"fmt"

	"ecofin/internal/config"

	"go.uber.org/zap"
)

// ErrNotFound is returned when a key has no object.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/value blob store.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.LocalDir)
	case "s3":
		s, err := NewS3Store(cfg, WithLogger(log))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			log.Warn("Storage bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
