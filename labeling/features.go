package labeling

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/storage"
)

// MetricKind is the payload shape of a metric.
type MetricKind string

// Metric kinds.
const (
	KindText    MetricKind = "text"
	KindValues  MetricKind = "values"
	KindNumbers MetricKind = "numbers"
	KindCounts  MetricKind = "counts"
)

// MetricSchema maps every known metric name to its kind.
var MetricSchema = map[string]MetricKind{
	"textual":   KindText,
	"values":    KindValues,
	"sample":    KindValues,
	"numeric":   KindNumbers,
	"histogram": KindCounts,
}

// Descriptive fields of a column profile document. They are copied onto
// every feature record and are never metrics themselves.
const (
	FieldName         = "name"
	FieldSemanticType = "semantic_type"
	FieldSourceName   = "source_name"
	FieldNumFraction  = "num_fraction"
)

// ExcludedFields is the fixed set of descriptive fields.
var ExcludedFields = []string{FieldName, FieldSemanticType, FieldSourceName, FieldNumFraction}

// Metric is one named metric. Exactly the payload field of Kind is set.
type Metric struct {
	Name    string
	Kind    MetricKind
	Text    string
	Values  []string
	Numbers []float64
	Counts  map[string]int64
}

// TextMetric returns a KindText metric.
func TextMetric(name, text string) Metric {
	return Metric{Name: name, Kind: KindText, Text: text}
}

// ValuesMetric returns a KindValues metric.
func ValuesMetric(name string, values []string) Metric {
	return Metric{Name: name, Kind: KindValues, Values: values}
}

// NumbersMetric returns a KindNumbers metric.
func NumbersMetric(name string, numbers []float64) Metric {
	return Metric{Name: name, Kind: KindNumbers, Numbers: numbers}
}

// CountsMetric returns a KindCounts metric.
func CountsMetric(name string, counts map[string]int64) Metric {
	return Metric{Name: name, Kind: KindCounts, Counts: counts}
}

// Validate checks the metric against MetricSchema and its payload against
// its kind.
func (m Metric) Validate() error {
	want, ok := MetricSchema[m.Name]
	if !ok {
		return fmt.Errorf("%w: unknown metric %q", catalog.ErrValidation, m.Name)
	}
	if m.Kind != want {
		return fmt.Errorf("%w: metric %q must be %s, got %s", catalog.ErrValidation, m.Name, want, m.Kind)
	}
	set := 0
	if m.Text != "" {
		set++
	}
	if m.Values != nil {
		set++
	}
	if m.Numbers != nil {
		set++
	}
	if m.Counts != nil {
		set++
	}
	stray := set > 1 ||
		(m.Kind != KindText && m.Text != "") ||
		(m.Kind != KindValues && m.Values != nil) ||
		(m.Kind != KindNumbers && m.Numbers != nil) ||
		(m.Kind != KindCounts && m.Counts != nil)
	if stray {
		return fmt.Errorf("%w: metric %q carries a payload other than %s", catalog.ErrValidation, m.Name, m.Kind)
	}
	return nil
}

// ColumnProfile is a column's descriptive fields and computed metrics.
type ColumnProfile struct {
	Name         string
	SemanticType string
	SourceName   string
	NumFraction  float64
	Metrics      []Metric
}

// ParseColumnProfile decodes a flat JSON profile document. Descriptive fields
// are read by name; every other key must be in MetricSchema and is decoded
// into that kind's payload. Metrics are ordered by name.
func ParseColumnProfile(doc []byte) (ColumnProfile, error) {
	var p ColumnProfile
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return p, fmt.Errorf("%w: column profile is not a JSON object: %v", catalog.ErrValidation, err)
	}

	decodeField := func(name string, dst any) error {
		raw, ok := fields[name]
		if !ok {
			return fmt.Errorf("%w: column profile must have %s", catalog.ErrValidation, name)
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%w: column profile field %s: %v", catalog.ErrValidation, name, err)
		}
		return nil
	}
	if err := decodeField(FieldName, &p.Name); err != nil {
		return p, err
	}
	if err := decodeField(FieldSemanticType, &p.SemanticType); err != nil {
		return p, err
	}
	if err := decodeField(FieldNumFraction, &p.NumFraction); err != nil {
		return p, err
	}
	if _, ok := fields[FieldSourceName]; ok {
		if err := decodeField(FieldSourceName, &p.SourceName); err != nil {
			return p, err
		}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		if !isExcluded(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		kind, ok := MetricSchema[name]
		if !ok {
			return p, fmt.Errorf("%w: unknown metric %q", catalog.ErrValidation, name)
		}
		m := Metric{Name: name, Kind: kind}
		var target any
		switch kind {
		case KindText:
			target = &m.Text
		case KindValues:
			target = &m.Values
		case KindNumbers:
			target = &m.Numbers
		case KindCounts:
			target = &m.Counts
		}
		if err := json.Unmarshal(fields[name], target); err != nil {
			return p, fmt.Errorf("%w: metric %q is not %s: %v", catalog.ErrValidation, name, kind, err)
		}
		p.Metrics = append(p.Metrics, m)
	}
	return p, nil
}

func isExcluded(field string) bool {
	for _, f := range ExcludedFields {
		if f == field {
			return true
		}
	}
	return false
}

// FeatureRecord is the stored projection of one metric of one column.
type FeatureRecord struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	SemanticType string           `json:"semantic_type"`
	SourceName   string           `json:"source_name"`
	NumFraction  float64          `json:"num_fraction"`
	SetName      string           `json:"set_name"`
	MetricType   string           `json:"metric_type"`
	Kind         MetricKind       `json:"kind"`
	Text         string           `json:"text,omitempty"`
	Values       []string         `json:"values,omitempty"`
	Numbers      []float64        `json:"numbers,omitempty"`
	Counts       map[string]int64 `json:"counts,omitempty"`
}

// StoreKey implements storage.Document.
func (r *FeatureRecord) StoreKey() string { return r.ID }

// SearchIndex is the companion full-text index, one index per set name.
type SearchIndex interface {
	Exists(name string) (bool, error)
	Delete(name string) error
	Index(name, id string, doc any) error
}

// Indexer writes column features.
type Indexer struct {
	records *storage.Collection[*FeatureRecord]
	search  SearchIndex
	logger  *slog.Logger
	newID   func() string
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithSearchIndex also indexes every record into idx under its set name.
func WithSearchIndex(idx SearchIndex) IndexerOption {
	return func(ix *Indexer) {
		ix.search = idx
	}
}

// WithIndexerLogger sets the indexer logger.
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// NewIndexer creates an Indexer storing records in bucket.
func NewIndexer(bucket storage.Bucket, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		logger: slog.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.records = storage.NewCollection[*FeatureRecord](bucket, storage.WithLogger(ix.logger))
	return ix
}

// IndexColumn writes one record per metric of profile, tagged with setName,
// and reports how many were written. Records are independent writes: on
// error the records before the failing metric remain.
func (ix *Indexer) IndexColumn(ctx context.Context, profile ColumnProfile, setName string) (int, error) {
	if setName == "" {
		return 0, fmt.Errorf("%w: set name is required", catalog.ErrValidation)
	}
	for _, m := range profile.Metrics {
		if err := m.Validate(); err != nil {
			return 0, err
		}
	}

	written := 0
	for _, m := range profile.Metrics {
		rec := &FeatureRecord{
			ID:           ix.newID(),
			Name:         profile.Name,
			SemanticType: profile.SemanticType,
			SourceName:   profile.SourceName,
			NumFraction:  profile.NumFraction,
			SetName:      setName,
			MetricType:   m.Name,
			Kind:         m.Kind,
			Text:         m.Text,
			Values:       m.Values,
			Numbers:      m.Numbers,
			Counts:       m.Counts,
		}
		if err := ix.records.Insert(ctx, rec); err != nil {
			return written, fmt.Errorf("store %s metric of column %s: %w", m.Name, profile.Name, err)
		}
		if ix.search != nil {
			if err := ix.search.Index(setName, rec.ID, rec); err != nil {
				return written, fmt.Errorf("index %s metric of column %s: %w", m.Name, profile.Name, err)
			}
		}
		written++
	}

	ix.logger.Debug("Indexed column features", "column", profile.Name, "set_name", setName, "records", written)
	return written, nil
}

// IndexExists reports whether the search index name exists. Without a
// search index nothing exists.
func (ix *Indexer) IndexExists(name string) (bool, error) {
	if ix.search == nil {
		return false, nil
	}
	return ix.search.Exists(name)
}

// DeleteIndex removes the search index name and reports whether it existed.
func (ix *Indexer) DeleteIndex(name string) (bool, error) {
	exists, err := ix.IndexExists(name)
	if err != nil || !exists {
		return false, err
	}
	if err := ix.search.Delete(name); err != nil {
		return false, err
	}
	ix.logger.Info("Deleted search index", "name", name)
	return true, nil
}
