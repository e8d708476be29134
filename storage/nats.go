package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// NATSBucket is a Bucket backed by a JetStream KV bucket.
type NATSBucket struct {
	kv jetstream.KeyValue
}

// NewNATSBucket opens the named KV bucket, creating it if it does not exist.
func NewNATSBucket(ctx context.Context, js jetstream.JetStream, name string) (*NATSBucket, error) {
	kv, err := getOrCreateBucket(ctx, js, name)
	if err != nil {
		return nil, fmt.Errorf("create %s bucket: %w", name, err)
	}
	return &NATSBucket{kv: kv}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	// CreateOrUpdateKeyValue tolerates a concurrent creator
	return js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Semtypes %s storage", strings.ToLower(name)),
		History:     5,
	})
}

// Name returns the bucket name.
func (b *NATSBucket) Name() string { return b.kv.Bucket() }

// Get returns the entry for key.
func (b *NATSBucket) Get(ctx context.Context, key string) (Entry, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		// A key the bucket cannot hold cannot name a stored document.
		if isKeyNotFound(err) || errors.Is(err, jetstream.ErrInvalidKey) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("kv get %s: %w", key, err)
	}
	return Entry{
		Key:      key,
		Value:    entry.Value(),
		Revision: entry.Revision(),
	}, nil
}

// Create stores value under key if the key is absent. JetStream performs the
// check and the write as one expected-last-sequence publish.
func (b *NATSBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := b.kv.Create(ctx, key, value)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyExists) || isWrongLastSequence(err) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("kv create %s: %w", key, err)
	}
	return rev, nil
}

// Update replaces the value under key if revision is current.
func (b *NATSBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := b.kv.Update(ctx, key, value, revision)
	if err != nil {
		if isWrongLastSequence(err) || errors.Is(err, jetstream.ErrKeyExists) {
			return 0, ErrRevisionMismatch
		}
		return 0, fmt.Errorf("kv update %s: %w", key, err)
	}
	return rev, nil
}

// Delete places a delete marker on key.
func (b *NATSBucket) Delete(ctx context.Context, key string) error {
	if err := b.kv.Delete(ctx, key); err != nil && !isKeyNotFound(err) {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// Keys returns every live key.
func (b *NATSBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv keys: %w", err)
	}
	return keys, nil
}

func isKeyNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func isWrongLastSequence(err error) bool {
	var apiErr *jetstream.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence
}
