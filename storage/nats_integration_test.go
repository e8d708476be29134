//go:build integration

package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSBucket_Contract(t *testing.T) {
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	js, err := tc.Client.JetStream()
	require.NoError(t, err)

	runBucketContract(t, func(name string) Bucket {
		b, err := NewNATSBucket(context.Background(), js, "CONTRACT_"+name)
		require.NoError(t, err)
		return b
	})
}

func TestNATSBackend_UpsertConcurrent(t *testing.T) {
	ctx := context.Background()
	tc := natsclient.NewTestClient(t, natsclient.WithJetStream())
	js, err := tc.Client.JetStream()
	require.NoError(t, err)

	backend, err := OpenBackend(BackendConfig{Kind: BackendNATS, JetStream: js})
	require.NoError(t, err)
	defer backend.Close()

	bucket, err := backend.Bucket(ctx, BucketRelations)
	require.NoError(t, err)
	c := NewCollection[*testDoc](bucket)

	const writers = 10
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Upsert(ctx, "k",
				func() *testDoc { return &testDoc{ID: "k", Count: 1} },
				func(d *testDoc) error {
					d.Count++
					return nil
				})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	doc, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, writers, doc.Count)

	// Reopening the bucket through the backend must find the existing KV.
	again, err := backend.Bucket(ctx, BucketRelations)
	require.NoError(t, err)
	keys, err := again.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}
