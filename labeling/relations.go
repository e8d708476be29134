// Package labeling holds the writers that feed the external semantic
// labeling pipeline: relation counters and per-metric column features, plus
// the companion full-text index over those features.
package labeling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/storage"
)

// RelationCounter counts how often relation held between two semantic types.
// Both counts only grow, and TrueCount never exceeds TotalCount.
type RelationCounter struct {
	Type1      string `json:"type1"`
	Type2      string `json:"type2"`
	Relation   string `json:"relation"`
	TrueCount  int64  `json:"true_count"`
	TotalCount int64  `json:"total_count"`
}

// StoreKey implements storage.Document.
func (r *RelationCounter) StoreKey() string {
	return catalog.RelationKey(r.Type1, r.Type2, r.Relation)
}

// Aggregator merges relation observations into counters.
type Aggregator struct {
	counters *storage.Collection[*RelationCounter]
	logger   *slog.Logger
}

// NewAggregator creates an Aggregator over bucket.
func NewAggregator(bucket storage.Bucket, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		counters: storage.NewCollection[*RelationCounter](bucket, storage.WithLogger(logger)),
		logger:   logger,
	}
}

// Observe records one observation of relation between type1 and type2.
// TotalCount always grows by one and TrueCount by one when wasTrue. An
// absent counter is created holding exactly this observation.
//
// The create and the increment are both conditional writes and a lost race
// is retried against the winner's revision, so concurrent observers never
// drop a count.
func (a *Aggregator) Observe(ctx context.Context, type1, type2, relation string, wasTrue bool) (*RelationCounter, error) {
	if type1 == "" || type2 == "" || relation == "" {
		return nil, fmt.Errorf("%w: type1, type2 and relation are required", catalog.ErrValidation)
	}

	var inc int64
	if wasTrue {
		inc = 1
	}
	key := catalog.RelationKey(type1, type2, relation)

	counter, err := a.counters.Upsert(ctx, key,
		func() *RelationCounter {
			return &RelationCounter{Type1: type1, Type2: type2, Relation: relation, TrueCount: inc, TotalCount: 1}
		},
		func(r *RelationCounter) error {
			r.TrueCount += inc
			r.TotalCount++
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("observe relation %s: %w", relation, err)
	}

	a.logger.Debug("Observed relation",
		"type1", type1, "type2", type2, "relation", relation,
		"true_count", counter.TrueCount, "total_count", counter.TotalCount)
	return counter, nil
}

// Get returns the counter for (type1, type2, relation).
func (a *Aggregator) Get(ctx context.Context, type1, type2, relation string) (*RelationCounter, error) {
	counter, _, err := a.counters.Get(ctx, catalog.RelationKey(type1, type2, relation))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: relation %s between %s and %s", catalog.ErrNotFound, relation, type1, type2)
		}
		return nil, fmt.Errorf("get relation %s: %w", relation, err)
	}
	return counter, nil
}
