package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/c360studio/semstreams/pkg/retry"
)

// Document is a value stored in a Collection under its own key.
type Document interface {
	StoreKey() string
}

// Query selects documents. Keys, when set, restricts the scan to those keys;
// Match, when set, must accept the decoded document. A zero Query selects
// everything.
type Query[T Document] struct {
	Keys  []string
	Match func(T) bool
}

// ByKeys returns a Query for the given keys.
func ByKeys[T Document](keys ...string) Query[T] {
	return Query[T]{Keys: keys}
}

func (q Query[T]) accepts(doc T) bool {
	return q.Match == nil || q.Match(doc)
}

// CASRetryConfig is the default retry policy for revision-guarded writes.
func CASRetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  50,
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     200 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

type collectionOptions struct {
	retry  retry.Config
	logger *slog.Logger
}

// CollectionOption configures a Collection.
type CollectionOption func(*collectionOptions)

// WithRetryConfig overrides the CAS retry policy.
func WithRetryConfig(cfg retry.Config) CollectionOption {
	return func(o *collectionOptions) {
		o.retry = cfg
	}
}

// WithLogger sets the collection logger.
func WithLogger(logger *slog.Logger) CollectionOption {
	return func(o *collectionOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Collection stores JSON documents of one kind in a Bucket.
type Collection[T Document] struct {
	bucket Bucket
	retry  retry.Config
	logger *slog.Logger
}

// NewCollection wraps bucket as a collection of T.
func NewCollection[T Document](bucket Bucket, opts ...CollectionOption) *Collection[T] {
	o := collectionOptions{
		retry:  CASRetryConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Collection[T]{
		bucket: bucket,
		retry:  o.retry,
		logger: o.logger,
	}
}

// Name returns the underlying bucket name.
func (c *Collection[T]) Name() string { return c.bucket.Name() }

// Get returns the document stored under key and its revision.
func (c *Collection[T]) Get(ctx context.Context, key string) (T, uint64, error) {
	var zero T
	entry, err := c.bucket.Get(ctx, key)
	if err != nil {
		return zero, 0, err
	}
	doc, err := c.decode(entry)
	if err != nil {
		return zero, 0, err
	}
	return doc, entry.Revision, nil
}

func (c *Collection[T]) decode(entry Entry) (T, error) {
	var doc T
	if err := json.Unmarshal(entry.Value, &doc); err != nil {
		return doc, fmt.Errorf("%w: %s/%s: %v", ErrCorrupt, c.bucket.Name(), entry.Key, err)
	}
	if got := doc.StoreKey(); got != entry.Key {
		return doc, fmt.Errorf("%w: %s/%s holds document for key %q", ErrCorrupt, c.bucket.Name(), entry.Key, got)
	}
	return doc, nil
}

// Find returns every document selected by q, ordered by key.
func (c *Collection[T]) Find(ctx context.Context, q Query[T]) ([]T, error) {
	keys, err := c.candidateKeys(ctx, q)
	if err != nil {
		return nil, err
	}

	docs := make([]T, 0, len(keys))
	for _, key := range keys {
		doc, _, err := c.Get(ctx, key)
		if err != nil {
			// Deleted between listing and reading.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if q.accepts(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (c *Collection[T]) candidateKeys(ctx context.Context, q Query[T]) ([]string, error) {
	if len(q.Keys) == 0 {
		keys, err := c.bucket.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s keys: %w", c.bucket.Name(), err)
		}
		sort.Strings(keys)
		return keys, nil
	}

	seen := make(map[string]struct{}, len(q.Keys))
	keys := make([]string, 0, len(q.Keys))
	for _, k := range q.Keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Insert stores doc if its key is free. The existence check and the write are
// one atomic Create, so a concurrent duplicate surfaces as ErrConflict.
func (c *Collection[T]) Insert(ctx context.Context, doc T) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := c.bucket.Create(ctx, doc.StoreKey(), data); err != nil {
		return err
	}
	c.logger.Debug("Inserted document", "bucket", c.bucket.Name(), "key", doc.StoreKey())
	return nil
}

// Update applies mutate to the document under key with a revision-guarded
// write, re-reading and re-applying mutate whenever another writer got there
// first. Returns ErrNotFound if the key has no document.
func (c *Collection[T]) Update(ctx context.Context, key string, mutate func(T) error) error {
	err := retry.Do(ctx, c.retry, func() error {
		doc, rev, err := c.Get(ctx, key)
		if err != nil {
			return retry.NonRetryable(err)
		}
		if err := mutate(doc); err != nil {
			return retry.NonRetryable(err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return retry.NonRetryable(fmt.Errorf("marshal document: %w", err))
		}
		_, err = c.bucket.Update(ctx, key, data, rev)
		if err == nil || errors.Is(err, ErrRevisionMismatch) {
			return err
		}
		return retry.NonRetryable(err)
	})
	return unwrapNonRetryable(err)
}

// UpdateMany applies mutate to every document selected by q and reports how
// many were updated. Each document is updated independently.
func (c *Collection[T]) UpdateMany(ctx context.Context, q Query[T], mutate func(T) error) (int, error) {
	docs, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, doc := range docs {
		err := c.Update(ctx, doc.StoreKey(), func(current T) error {
			if !q.accepts(current) {
				return errSkip
			}
			return mutate(current)
		})
		switch {
		case err == nil:
			updated++
		case errors.Is(err, ErrNotFound), errors.Is(err, errSkip):
			// Removed or changed by another writer since Find.
		default:
			return updated, err
		}
	}
	return updated, nil
}

var errSkip = errors.New("document no longer matches")

// Upsert creates the document under key from create, or applies mutate to
// the stored one. Both branches are conditional writes: a lost Create race
// falls through to the update branch and a stale Update is retried.
func (c *Collection[T]) Upsert(ctx context.Context, key string, create func() T, mutate func(T) error) (T, error) {
	var result T
	err := retry.Do(ctx, c.retry, func() error {
		doc, rev, err := c.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			fresh := create()
			data, err := json.Marshal(fresh)
			if err != nil {
				return retry.NonRetryable(fmt.Errorf("marshal document: %w", err))
			}
			if _, err := c.bucket.Create(ctx, key, data); err != nil {
				if errors.Is(err, ErrConflict) {
					return err
				}
				return retry.NonRetryable(err)
			}
			result = fresh
			return nil
		}
		if err != nil {
			return retry.NonRetryable(err)
		}

		if err := mutate(doc); err != nil {
			return retry.NonRetryable(err)
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return retry.NonRetryable(fmt.Errorf("marshal document: %w", err))
		}
		if _, err := c.bucket.Update(ctx, key, data, rev); err != nil {
			if errors.Is(err, ErrRevisionMismatch) || errors.Is(err, ErrNotFound) {
				return err
			}
			return retry.NonRetryable(err)
		}
		result = doc
		return nil
	})
	return result, unwrapNonRetryable(err)
}

// DeleteMany removes every document selected by q and reports how many were
// removed.
func (c *Collection[T]) DeleteMany(ctx context.Context, q Query[T]) (int, error) {
	docs, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, doc := range docs {
		if err := c.bucket.Delete(ctx, doc.StoreKey()); err != nil {
			return deleted, fmt.Errorf("delete %s/%s: %w", c.bucket.Name(), doc.StoreKey(), err)
		}
		deleted++
	}
	if deleted > 0 {
		c.logger.Debug("Deleted documents", "bucket", c.bucket.Name(), "count", deleted)
	}
	return deleted, nil
}

func unwrapNonRetryable(err error) error {
	var nre *retry.NonRetryableError
	if errors.As(err, &nre) {
		return nre.Err
	}
	return err
}
