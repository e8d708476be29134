// Package storage provides document collections for semtypes on top of
// key/value buckets. A bucket offers exactly two conditional writes, Create
// and Update-at-revision, and every collection operation is built from them.
// Atomicity is per document only.
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by configuration.
const (
	BackendNATS   = "nats"
	BackendBolt   = "bolt"
	BackendMemory = "memory"
)

// Default bucket names, one per document kind.
const (
	BucketTypes     = "SEMTYPES_TYPES"
	BucketColumns   = "SEMTYPES_COLUMNS"
	BucketModels    = "SEMTYPES_MODELS"
	BucketRelations = "SEMTYPES_RELATIONS"
	BucketFeatures  = "SEMTYPES_FEATURES"
)

// Entry is a stored value together with its revision.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// Bucket is the key/value surface a Collection needs.
//
// Get returns ErrNotFound for absent keys. Create must fail with ErrConflict
// when the key holds a live value, and Update must fail with
// ErrRevisionMismatch when revision is not the current one; both checks are
// atomic with the write. Delete of an absent key is not an error.
type Bucket interface {
	Name() string
	Get(ctx context.Context, key string) (Entry, error)
	Create(ctx context.Context, key string, value []byte) (uint64, error)
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// ValidateBackend checks a backend name.
func ValidateBackend(name string) error {
	switch strings.ToLower(name) {
	case BackendNATS, BackendBolt, BackendMemory:
		return nil
	default:
		return fmt.Errorf("unknown storage backend: %q", name)
	}
}
