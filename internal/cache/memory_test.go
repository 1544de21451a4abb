package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ecofin/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMemoryStore_ReserveCompleteRelease(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Reserve(ctx, "k1", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok, "second reservation is refused")

	val, found, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, Pending, val)

	require.NoError(t, s.Complete(ctx, "k1", "invoice-1", time.Hour))
	val, _, _ = s.Get(ctx, "k1")
	assert.Equal(t, "invoice-1", val)

	require.NoError(t, s.Release(ctx, "k1"))
	_, found, _ = s.Get(ctx, "k1")
	assert.False(t, found)
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := s.Reserve(ctx, "k", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = s.Reserve(ctx, "k", time.Minute)
	assert.True(t, ok, "expired keys can be reserved again")
}

func TestMemoryStore_ConcurrentReserve(t *testing.T) {
	s := NewMemoryStore()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := s.Reserve(context.Background(), "same", time.Hour); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestNewIdempotencyStore_FallsBackToMemory(t *testing.T) {
	s := NewIdempotencyStore(config.RedisConfig{Enabled: false}, zap.NewNop())
	assert.IsType(t, &MemoryStore{}, s)

	s = NewIdempotencyStore(config.RedisConfig{Enabled: true, Host: "127.0.0.1", Port: 1}, zap.NewNop())
	assert.IsType(t, &MemoryStore{}, s)
}
