package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// revisionSize is the width of the revision prefix on every bolt value.
const revisionSize = 8

// OpenBolt opens (or creates) a bolt database file for the bolt backend.
func OpenBolt(path string) (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return db, nil
}

// BoltBucket is a Bucket stored in one bolt bucket. Each value carries an
// 8-byte big-endian revision taken from the bucket sequence; Create and
// Update run inside a single read-write transaction, which bolt serializes.
type BoltBucket struct {
	db   *bolt.DB
	name []byte
}

// NewBoltBucket creates the named bucket if needed.
func NewBoltBucket(db *bolt.DB, name string) (*BoltBucket, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(name))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create bolt bucket %s: %w", name, err)
	}
	return &BoltBucket{db: db, name: []byte(name)}, nil
}

// Name returns the bucket name.
func (b *BoltBucket) Name() string { return string(b.name) }

// Get returns the entry for key.
func (b *BoltBucket) Get(ctx context.Context, key string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	var entry Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(b.name).Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		rev, value, err := splitRevision(raw)
		if err != nil {
			return err
		}
		entry = Entry{
			Key:      key,
			Value:    append([]byte(nil), value...),
			Revision: rev,
		}
		return nil
	})
	return entry, err
}

// Create stores value under key if the key is absent.
func (b *BoltBucket) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var rev uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		if bkt.Get([]byte(key)) != nil {
			return ErrConflict
		}
		var err error
		rev, err = putWithRevision(bkt, key, value)
		return err
	})
	return rev, err
}

// Update replaces the value under key if revision is current.
func (b *BoltBucket) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var rev uint64
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.name)
		raw := bkt.Get([]byte(key))
		if raw == nil {
			return ErrNotFound
		}
		current, _, err := splitRevision(raw)
		if err != nil {
			return err
		}
		if current != revision {
			return ErrRevisionMismatch
		}
		rev, err = putWithRevision(bkt, key, value)
		return err
	})
	return rev, err
}

// Delete removes key.
func (b *BoltBucket) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).Delete([]byte(key))
	})
}

// Keys returns every key in byte order.
func (b *BoltBucket) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(b.name).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func putWithRevision(bkt *bolt.Bucket, key string, value []byte) (uint64, error) {
	rev, err := bkt.NextSequence()
	if err != nil {
		return 0, err
	}
	buf := make([]byte, revisionSize+len(value))
	binary.BigEndian.PutUint64(buf, rev)
	copy(buf[revisionSize:], value)
	if err := bkt.Put([]byte(key), buf); err != nil {
		return 0, err
	}
	return rev, nil
}

func splitRevision(raw []byte) (uint64, []byte, error) {
	if len(raw) < revisionSize {
		return 0, nil, fmt.Errorf("%w: value shorter than revision header", ErrCorrupt)
	}
	return binary.BigEndian.Uint64(raw[:revisionSize]), raw[revisionSize:], nil
}
