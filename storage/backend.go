package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go/jetstream"
	bolt "go.etcd.io/bbolt"
)

// BackendConfig selects and locates a backend.
type BackendConfig struct {
	Kind string

	// BoltPath is the database file of the bolt backend.
	BoltPath string

	// JetStream is required by the nats backend.
	JetStream jetstream.JetStream
}

// Backend hands out buckets of one backend and releases it on Close.
type Backend struct {
	kind string
	js   jetstream.JetStream
	db   *bolt.DB

	mu     sync.Mutex
	memory map[string]*MemoryBucket
}

// OpenBackend opens the backend described by cfg.
func OpenBackend(cfg BackendConfig) (*Backend, error) {
	kind := strings.ToLower(cfg.Kind)
	if err := ValidateBackend(kind); err != nil {
		return nil, err
	}

	b := &Backend{kind: kind}
	switch kind {
	case BackendNATS:
		if cfg.JetStream == nil {
			return nil, fmt.Errorf("nats backend requires a JetStream context")
		}
		b.js = cfg.JetStream
	case BackendBolt:
		if cfg.BoltPath == "" {
			return nil, fmt.Errorf("bolt backend requires a database path")
		}
		db, err := OpenBolt(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		b.db = db
	case BackendMemory:
		b.memory = make(map[string]*MemoryBucket)
	}
	return b, nil
}

// Kind returns the backend name.
func (b *Backend) Kind() string { return b.kind }

// Bucket opens the named bucket, creating it if needed. Memory buckets are
// shared per name for the life of the Backend.
func (b *Backend) Bucket(ctx context.Context, name string) (Bucket, error) {
	switch b.kind {
	case BackendNATS:
		return NewNATSBucket(ctx, b.js, name)
	case BackendBolt:
		return NewBoltBucket(b.db, name)
	default:
		b.mu.Lock()
		defer b.mu.Unlock()
		mb, ok := b.memory[name]
		if !ok {
			mb = NewMemoryBucket(name)
			b.memory[name] = mb
		}
		return mb, nil
	}
}

// Close releases the backend. NATS connections belong to the caller and are
// left open.
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
