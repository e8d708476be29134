package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryBucket is an in-process Bucket. The mutex emulates the per-key
// atomicity a real store gives Create and Update; nothing else relies on it.
type MemoryBucket struct {
	name string

	mu       sync.Mutex
	entries  map[string]Entry
	revision uint64
}

// NewMemoryBucket creates an empty in-memory bucket.
func NewMemoryBucket(name string) *MemoryBucket {
	return &MemoryBucket{
		name:    name,
		entries: make(map[string]Entry),
	}
}

// Name returns the bucket name.
func (b *MemoryBucket) Name() string { return b.name }

// Get returns the entry for key.
func (b *MemoryBucket) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return Entry{}, ErrNotFound
	}
	e.Value = append([]byte(nil), e.Value...)
	return e, nil
}

// Create stores value under key if the key is absent.
func (b *MemoryBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[key]; ok {
		return 0, ErrConflict
	}
	return b.putLocked(key, value), nil
}

// Update replaces the value under key if revision is current.
func (b *MemoryBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[key]
	if !ok {
		return 0, ErrNotFound
	}
	if e.Revision != revision {
		return 0, ErrRevisionMismatch
	}
	return b.putLocked(key, value), nil
}

func (b *MemoryBucket) putLocked(key string, value []byte) uint64 {
	b.revision++
	b.entries[key] = Entry{
		Key:      key,
		Value:    append([]byte(nil), value...),
		Revision: b.revision,
	}
	return b.revision
}

// Delete removes key.
func (b *MemoryBucket) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

// Keys returns every live key in sorted order.
func (b *MemoryBucket) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.entries))
	for k := range b.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports how many live keys the bucket holds.
func (b *MemoryBucket) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
