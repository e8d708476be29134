package catalog

import (
	"context"
	"fmt"

	"github.com/c360studio/semtypes/storage"
)

// ColumnSpec describes a column to create.
type ColumnSpec struct {
	TypeID     string
	ColumnName string
	SourceName string
	Model      string
	Data       []string
}

// CreateColumn stores a column under its owning type and returns its id.
// Model defaults to DefaultColumnModel. The owning type must exist. Force has
// the same delete-then-insert semantics as CreateType.
func (c *Catalog) CreateColumn(ctx context.Context, spec ColumnSpec, force bool) (string, error) {
	if spec.TypeID == "" || spec.ColumnName == "" || spec.SourceName == "" {
		return "", fmt.Errorf("%w: type id, column name and source name are required", ErrValidation)
	}
	if spec.Model == "" {
		spec.Model = DefaultColumnModel
	}
	if _, err := c.GetType(ctx, spec.TypeID); err != nil {
		return "", err
	}

	col := &Column{
		ID:         ColumnID(spec.TypeID, spec.ColumnName, spec.SourceName, spec.Model),
		TypeID:     spec.TypeID,
		ColumnName: spec.ColumnName,
		SourceName: spec.SourceName,
		Model:      spec.Model,
		Data:       spec.Data,
	}
	if force {
		if _, err := c.columns.DeleteMany(ctx, storage.ByKeys[*Column](col.ID)); err != nil {
			return "", translate(err, "delete column %s", col.ID)
		}
	}

	if err := c.columns.Insert(ctx, col); err != nil {
		return "", translate(err, "column %s of type %s", spec.ColumnName, spec.TypeID)
	}

	c.logger.Debug("Created column", "column_id", col.ID, "type_id", col.TypeID, "rows", len(col.Data))
	return col.ID, nil
}

// ListColumns returns the columns of f.TypeID matching the remaining facets.
// An empty result is ErrNotFound.
func (c *Catalog) ListColumns(ctx context.Context, f ColumnFilter, includeData bool) ([]*Column, error) {
	if f.TypeID == "" {
		return nil, fmt.Errorf("%w: type id is required", ErrValidation)
	}
	cols, err := c.columns.Find(ctx, storage.Query[*Column]{Keys: f.ColumnIDs, Match: f.Matches})
	if err != nil {
		return nil, translate(err, "find columns of type %s", f.TypeID)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no columns of type %s match the given parameters", ErrNotFound, f.TypeID)
	}
	if !includeData {
		for i, col := range cols {
			cols[i] = col.withoutData()
		}
	}
	return cols, nil
}

// GetColumn returns the single column with the given id.
func (c *Catalog) GetColumn(ctx context.Context, columnID string) (*Column, error) {
	if _, err := OwningTypeID(columnID); err != nil {
		return nil, err
	}
	cols, err := c.columns.Find(ctx, columnByID(columnID))
	if err != nil {
		return nil, translate(err, "column %s", columnID)
	}
	switch len(cols) {
	case 0:
		return nil, fmt.Errorf("%w: column %s", ErrNotFound, columnID)
	case 1:
		return cols[0], nil
	default:
		return nil, fmt.Errorf("%w: %d documents for column %s", ErrConsistency, len(cols), columnID)
	}
}

func columnByID(columnID string) storage.Query[*Column] {
	return storage.Query[*Column]{
		Keys:  []string{columnID},
		Match: func(col *Column) bool { return col.ID == columnID },
	}
}

// AppendColumnData appends rows to the column's data. Concurrent appends to
// the same column are serialized by revision and none is lost.
func (c *Catalog) AppendColumnData(ctx context.Context, columnID string, rows []string) error {
	return c.updateColumnData(ctx, columnID, func(col *Column) error {
		col.Data = append(col.Data, rows...)
		return nil
	})
}

// ReplaceColumnData replaces the column's data with rows.
func (c *Catalog) ReplaceColumnData(ctx context.Context, columnID string, rows []string) error {
	return c.updateColumnData(ctx, columnID, func(col *Column) error {
		col.Data = append([]string{}, rows...)
		return nil
	})
}

// ClearColumnData empties the column's data.
func (c *Catalog) ClearColumnData(ctx context.Context, columnID string) error {
	return c.updateColumnData(ctx, columnID, func(col *Column) error {
		col.Data = []string{}
		return nil
	})
}

// updateColumnData applies mutate to exactly one column.
func (c *Catalog) updateColumnData(ctx context.Context, columnID string, mutate func(*Column) error) error {
	if _, err := OwningTypeID(columnID); err != nil {
		return err
	}
	n, err := c.columns.UpdateMany(ctx, columnByID(columnID), mutate)
	if err != nil {
		return translate(err, "update data of column %s", columnID)
	}
	switch {
	case n == 0:
		return fmt.Errorf("%w: column %s", ErrNotFound, columnID)
	case n > 1:
		return fmt.Errorf("%w: %d documents updated for column %s", ErrConsistency, n, columnID)
	}
	return nil
}

// DeleteColumns removes the columns of f.TypeID matching the remaining
// facets and reports how many were removed. Zero is ErrNotFound.
func (c *Catalog) DeleteColumns(ctx context.Context, f ColumnFilter) (int, error) {
	if f.TypeID == "" {
		return 0, fmt.Errorf("%w: type id is required", ErrValidation)
	}
	n, err := c.columns.DeleteMany(ctx, storage.Query[*Column]{Keys: f.ColumnIDs, Match: f.Matches})
	if err != nil {
		return n, translate(err, "delete columns of type %s", f.TypeID)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no columns of type %s match the given parameters", ErrNotFound, f.TypeID)
	}
	c.logger.Debug("Deleted columns", "type_id", f.TypeID, "count", n)
	return n, nil
}
