package catalog

import (
	"encoding/json"
	"slices"
	"time"
)

// DefaultColumnModel is the model tag used when a column is created without one.
const DefaultColumnModel = "default"

// BulkAddModel is the model tag of every column created by model ingestion.
const BulkAddModel = "bulk_add"

// SemanticType is a (class, property) pair that gives a column its meaning.
type SemanticType struct {
	ID        string `json:"type_id"`
	Class     string `json:"class"`
	Property  string `json:"property"`
	Namespace string `json:"namespace"`
}

// StoreKey implements storage.Document.
func (t *SemanticType) StoreKey() string { return t.ID }

// Column is a named, sourced unit of rows assigned to one semantic type.
type Column struct {
	ID         string   `json:"column_id"`
	TypeID     string   `json:"type_id"`
	ColumnName string   `json:"column_name"`
	SourceName string   `json:"source_name"`
	Model      string   `json:"model"`
	Data       []string `json:"data,omitempty"`
}

// StoreKey implements storage.Document.
func (c *Column) StoreKey() string { return c.ID }

// withoutData returns a copy of c with no rows.
func (c *Column) withoutData() *Column {
	cp := *c
	cp.Data = nil
	return &cp
}

// Model is a stored bulk model description. Payload is the verbatim body the
// model was ingested from.
type Model struct {
	ID          string          `json:"model_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// StoreKey implements storage.Document. Model ids are caller supplied, so the
// key is their encoded form.
func (m *Model) StoreKey() string { return modelKey(m.ID) }

func modelKey(id string) string { return EncodeSegment(id) }

// TypeFilter selects semantic types. Empty fields are unconstrained.
type TypeFilter struct {
	Class      string
	Property   string
	Namespaces []string
}

// Matches reports whether t satisfies every set facet.
func (f TypeFilter) Matches(t *SemanticType) bool {
	if f.Class != "" && t.Class != f.Class {
		return false
	}
	if f.Property != "" && t.Property != f.Property {
		return false
	}
	if len(f.Namespaces) > 0 && !slices.Contains(f.Namespaces, t.Namespace) {
		return false
	}
	return true
}

// ColumnFilter selects columns. TypeID pins the owning type; the remaining
// facets are the column-level filters of type queries.
type ColumnFilter struct {
	TypeID      string
	SourceNames []string
	ColumnNames []string
	ColumnIDs   []string
	Models      []string
}

// HasFacets reports whether any column-level facet is set. TypeID is not a
// facet.
func (f ColumnFilter) HasFacets() bool {
	return len(f.SourceNames) > 0 || len(f.ColumnNames) > 0 || len(f.ColumnIDs) > 0 || len(f.Models) > 0
}

// Matches reports whether c satisfies every set facet.
func (f ColumnFilter) Matches(c *Column) bool {
	if f.TypeID != "" && c.TypeID != f.TypeID {
		return false
	}
	if len(f.SourceNames) > 0 && !slices.Contains(f.SourceNames, c.SourceName) {
		return false
	}
	if len(f.ColumnNames) > 0 && !slices.Contains(f.ColumnNames, c.ColumnName) {
		return false
	}
	if len(f.ColumnIDs) > 0 && !slices.Contains(f.ColumnIDs, c.ID) {
		return false
	}
	if len(f.Models) > 0 && !slices.Contains(f.Models, c.Model) {
		return false
	}
	return true
}

// ModelFilter selects stored models. Empty fields are unconstrained.
type ModelFilter struct {
	IDs         []string
	Names       []string
	Description string
}

// IsEmpty reports whether no facet is set.
func (f ModelFilter) IsEmpty() bool {
	return len(f.IDs) == 0 && len(f.Names) == 0 && f.Description == ""
}

// Matches reports whether m satisfies every set facet.
func (f ModelFilter) Matches(m *Model) bool {
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, m.ID) {
		return false
	}
	if len(f.Names) > 0 && !slices.Contains(f.Names, m.Name) {
		return false
	}
	if f.Description != "" && m.Description != f.Description {
		return false
	}
	return true
}
