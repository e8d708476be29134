package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()

	t.Run("memory shares buckets by name", func(t *testing.T) {
		b, err := OpenBackend(BackendConfig{Kind: "Memory"})
		require.NoError(t, err)
		defer b.Close()

		first, err := b.Bucket(ctx, BucketTypes)
		require.NoError(t, err)
		_, err = first.Create(ctx, "k", []byte("v"))
		require.NoError(t, err)

		again, err := b.Bucket(ctx, BucketTypes)
		require.NoError(t, err)
		entry, err := again.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), entry.Value)
	})

	t.Run("bolt persists across reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data", "semtypes.db")
		b, err := OpenBackend(BackendConfig{Kind: BackendBolt, BoltPath: path})
		require.NoError(t, err)
		bucket, err := b.Bucket(ctx, BucketColumns)
		require.NoError(t, err)
		_, err = bucket.Create(ctx, "k", []byte("v"))
		require.NoError(t, err)
		require.NoError(t, b.Close())

		b, err = OpenBackend(BackendConfig{Kind: BackendBolt, BoltPath: path})
		require.NoError(t, err)
		defer b.Close()
		bucket, err = b.Bucket(ctx, BucketColumns)
		require.NoError(t, err)
		entry, err := bucket.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v"), entry.Value)
	})

	t.Run("misconfigured", func(t *testing.T) {
		_, err := OpenBackend(BackendConfig{Kind: BackendNATS})
		assert.Error(t, err)
		_, err = OpenBackend(BackendConfig{Kind: BackendBolt})
		assert.Error(t, err)
		_, err = OpenBackend(BackendConfig{Kind: "postgres"})
		assert.Error(t, err)
	})
}
