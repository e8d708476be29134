// Package catalog implements the semantic type catalog: the id scheme, the
// multi-facet type and column filters, column data operations, and bulk model
// ingestion.
//
// Every operation is a sequence of single-document store calls. Creates rely
// on the store's atomic conditional insert for uniqueness; any existence
// check made before a write is advisory only. Sequences that touch several
// documents (ingestion, filtered deletes, batch appends) are not atomic:
// after a failure, already committed writes remain and callers must re-query.
package catalog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semtypes/storage"
)

// Buckets are the stores backing a Catalog, one per document kind.
type Buckets struct {
	Types   storage.Bucket
	Columns storage.Bucket
	Models  storage.Bucket
}

// Validate checks that every bucket is set.
func (b Buckets) Validate() error {
	if b.Types == nil || b.Columns == nil || b.Models == nil {
		return fmt.Errorf("types, columns and models buckets are required")
	}
	return nil
}

// Catalog owns semantic types, columns and models.
type Catalog struct {
	types   *storage.Collection[*SemanticType]
	columns *storage.Collection[*Column]
	models  *storage.Collection[*Model]
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the clock used to stamp stored models.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

// New creates a Catalog over the given buckets.
func New(b Buckets, opts ...Option) (*Catalog, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	c := &Catalog{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	logOpt := storage.WithLogger(c.logger)
	c.types = storage.NewCollection[*SemanticType](b.Types, logOpt)
	c.columns = storage.NewCollection[*Column](b.Columns, logOpt)
	c.models = storage.NewCollection[*Model](b.Models, logOpt)
	return c, nil
}
