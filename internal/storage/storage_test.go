package storage

import (
	"context"
	"testing"

	"ecofin/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "invoices/acme/2025/03/ECO0042.pdf"
	require.NoError(t, s.Put(ctx, key, "application/pdf", []byte("%PDF")))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(got))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, s.Delete(ctx, key), "deleting a missing key is not an error")
}

func TestLocalStore_KeyCannotEscapeRoot(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	p, err := s.path("../../etc/passwd")
	require.NoError(t, err)
	assert.Contains(t, p, root)

	_, err = s.path("  ")
	assert.Error(t, err)
}

func TestNew_SelectsDriver(t *testing.T) {
	s, err := New(context.Background(), config.StorageConfig{Driver: "local", LocalDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(context.Background(), config.StorageConfig{Driver: "ftp"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(config.StorageConfig{Driver: "s3"})
	assert.Error(t, err)

	s, err := NewS3Store(config.StorageConfig{Driver: "s3", Bucket: "ecofin", Endpoint: "localhost:9000",
		AccessKey: "k", SecretKey: "s", UsePathStyle: true})
	require.NoError(t, err)
	assert.Equal(t, "ecofin", s.bucket)
}
