package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/c360studio/semtypes/storage"
)

// NewSemanticType normalizes class and property (trailing slashes trimmed),
// derives the namespace and id, and validates both URIs.
func NewSemanticType(class, property string) (*SemanticType, error) {
	class = normalizeURI(class)
	property = normalizeURI(property)
	if class == "" || property == "" {
		return nil, fmt.Errorf("%w: both class and property must be specified", ErrValidation)
	}

	namespace := namespaceOf(class)
	if !isAbsoluteURI(class) || !isAbsoluteURI(namespace) {
		return nil, fmt.Errorf("%w: invalid class URI %q", ErrValidation, class)
	}

	return &SemanticType{
		ID:        TypeID(class, property),
		Class:     class,
		Property:  property,
		Namespace: namespace,
	}, nil
}

func normalizeURI(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

// namespaceOf returns the parent path of a class URI.
func namespaceOf(class string) string {
	i := strings.LastIndex(class, "/")
	if i < 0 {
		return ""
	}
	return class[:i]
}

func isAbsoluteURI(s string) bool {
	return s != "" && govalidator.IsURL(s) && govalidator.IsRequestURL(s)
}

// CreateType stores the semantic type (class, property) and returns its id.
//
// Without force, uniqueness comes from the store's atomic create: a second
// create of the same pair fails with ErrConflict. With force, every column
// of the type and the type itself are deleted first; the three steps are
// separate writes, so a concurrent creator can still win and produce
// ErrConflict.
func (c *Catalog) CreateType(ctx context.Context, class, property string, force bool) (string, error) {
	st, err := NewSemanticType(class, property)
	if err != nil {
		return "", err
	}

	if force {
		cols, err := c.columns.DeleteMany(ctx, columnsOfTypes(st.ID))
		if err != nil {
			return "", translate(err, "delete columns of type %s", st.ID)
		}
		if _, err := c.types.DeleteMany(ctx, storage.ByKeys[*SemanticType](st.ID)); err != nil {
			return "", translate(err, "delete type %s", st.ID)
		}
		c.logger.Debug("Force-create cleared prior type", "type_id", st.ID, "columns_deleted", cols)
	}

	if err := c.types.Insert(ctx, st); err != nil {
		return "", translate(err, "semantic type %s %s", st.Class, st.Property)
	}

	c.logger.Debug("Created semantic type", "type_id", st.ID, "class", st.Class, "property", st.Property)
	return st.ID, nil
}

// GetType returns the semantic type with the given id.
func (c *Catalog) GetType(ctx context.Context, typeID string) (*SemanticType, error) {
	if _, _, err := DecodeTypeID(typeID); err != nil {
		return nil, err
	}
	st, _, err := c.types.Get(ctx, typeID)
	if err != nil {
		return nil, translate(err, "semantic type %s", typeID)
	}
	return st, nil
}

// TypeQuery selects types for ListTypes.
type TypeQuery struct {
	Types TypeFilter

	// Columns holds column-level facets; its TypeID is ignored. When no facet
	// is set the column step is skipped and does not constrain the result.
	Columns ColumnFilter

	IncludeColumns    bool
	IncludeColumnData bool
}

// TypeListing is a semantic type with its columns when requested.
type TypeListing struct {
	*SemanticType
	Columns []*Column `json:"columns,omitempty"`
}

// ListTypes returns the types matching the type-level filter, intersected
// with the owning types of matching columns when column facets are set.
// An empty result is ErrNotFound.
func (c *Catalog) ListTypes(ctx context.Context, q TypeQuery) ([]TypeListing, error) {
	types, err := c.types.Find(ctx, storage.Query[*SemanticType]{Match: q.Types.Matches})
	if err != nil {
		return nil, translate(err, "find semantic types")
	}

	if q.Columns.HasFacets() {
		reachable, err := c.reachableTypes(ctx, q.Columns)
		if err != nil {
			return nil, err
		}
		kept := types[:0]
		for _, t := range types {
			if _, ok := reachable.set[t.ID]; ok {
				kept = append(kept, t)
			}
		}
		types = kept
	}

	if len(types) == 0 {
		return nil, fmt.Errorf("%w: no semantic types match the given parameters", ErrNotFound)
	}

	listings := make([]TypeListing, len(types))
	for i, t := range types {
		listings[i] = TypeListing{SemanticType: t}
	}

	if q.IncludeColumns || q.IncludeColumnData {
		byType, err := c.columnsByType(ctx, types, q.IncludeColumnData)
		if err != nil {
			return nil, err
		}
		for i := range listings {
			listings[i].Columns = byType[listings[i].ID]
		}
	}
	return listings, nil
}

// typeIDSet is an insertion-ordered set of type ids.
type typeIDSet struct {
	order []string
	set   map[string]struct{}
}

func (s *typeIDSet) add(id string) {
	if s.set == nil {
		s.set = make(map[string]struct{})
	}
	if _, ok := s.set[id]; ok {
		return
	}
	s.set[id] = struct{}{}
	s.order = append(s.order, id)
}

// reachableTypes projects the columns matching the facets of f onto their
// owning type ids.
func (c *Catalog) reachableTypes(ctx context.Context, f ColumnFilter) (*typeIDSet, error) {
	f.TypeID = ""
	cols, err := c.columns.Find(ctx, storage.Query[*Column]{Keys: f.ColumnIDs, Match: f.Matches})
	if err != nil {
		return nil, translate(err, "find columns")
	}
	ids := &typeIDSet{set: make(map[string]struct{})}
	for _, col := range cols {
		ids.add(col.TypeID)
	}
	return ids, nil
}

func (c *Catalog) columnsByType(ctx context.Context, types []*SemanticType, withData bool) (map[string][]*Column, error) {
	ids := make([]string, len(types))
	for i, t := range types {
		ids[i] = t.ID
	}
	cols, err := c.columns.Find(ctx, columnsOfTypes(ids...))
	if err != nil {
		return nil, translate(err, "find columns")
	}

	byType := make(map[string][]*Column, len(types))
	for _, col := range cols {
		if !withData {
			col = col.withoutData()
		}
		byType[col.TypeID] = append(byType[col.TypeID], col)
	}
	return byType, nil
}

func columnsOfTypes(typeIDs ...string) storage.Query[*Column] {
	set := make(map[string]struct{}, len(typeIDs))
	for _, id := range typeIDs {
		set[id] = struct{}{}
	}
	return storage.Query[*Column]{Match: func(col *Column) bool {
		_, ok := set[col.TypeID]
		return ok
	}}
}

// TypeDeletion selects types for DeleteTypes.
type TypeDeletion struct {
	Types   TypeFilter
	Columns ColumnFilter
	All     bool
}

// DeleteResult counts the documents a delete removed.
type DeleteResult struct {
	Types   int `json:"types_deleted"`
	Columns int `json:"columns_deleted"`
}

// DeleteTypes removes the selected types together with all of their columns.
// No column outlives its type on any path: All wipes both kinds; with column
// facets, only types reachable from matching columns and matching the type
// filter are removed; otherwise the type filter alone selects. The deletes are
// independent writes and are not atomic as a group.
func (c *Catalog) DeleteTypes(ctx context.Context, d TypeDeletion) (DeleteResult, error) {
	var res DeleteResult

	if d.All {
		n, err := c.columns.DeleteMany(ctx, storage.Query[*Column]{})
		res.Columns = n
		if err != nil {
			return res, translate(err, "delete all columns")
		}
		n, err = c.types.DeleteMany(ctx, storage.Query[*SemanticType]{})
		res.Types = n
		if err != nil {
			return res, translate(err, "delete all semantic types")
		}
		c.logger.Info("Deleted all semantic types", "types", res.Types, "columns", res.Columns)
		return res, nil
	}

	matched, err := c.types.Find(ctx, storage.Query[*SemanticType]{Match: d.Types.Matches})
	if err != nil {
		return res, translate(err, "find semantic types")
	}
	matchedIDs := make(map[string]struct{}, len(matched))
	for _, t := range matched {
		matchedIDs[t.ID] = struct{}{}
	}

	var selected []string
	if d.Columns.HasFacets() {
		reachable, err := c.reachableTypes(ctx, d.Columns)
		if err != nil {
			return res, err
		}
		// Second pass builds a new list rather than pruning reachable in place.
		for _, id := range reachable.order {
			if _, ok := matchedIDs[id]; ok {
				selected = append(selected, id)
			}
		}
	} else {
		for _, t := range matched {
			selected = append(selected, t.ID)
		}
	}

	if len(selected) == 0 {
		return res, nil
	}

	n, err := c.columns.DeleteMany(ctx, columnsOfTypes(selected...))
	res.Columns = n
	if err != nil {
		return res, translate(err, "delete columns")
	}
	n, err = c.types.DeleteMany(ctx, storage.ByKeys[*SemanticType](selected...))
	res.Types = n
	if err != nil {
		return res, translate(err, "delete semantic types")
	}

	c.logger.Debug("Deleted semantic types", "types", res.Types, "columns", res.Columns)
	return res, nil
}
