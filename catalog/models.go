package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/c360studio/semtypes/storage"
)

// ModelDescription is the parsed form of a bulk model body.
type ModelDescription struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Graph       ModelGraph `json:"graph"`
}

// ModelGraph holds the nodes of a model.
type ModelGraph struct {
	Nodes []ModelNode `json:"nodes"`
}

// ModelNode is one graph node. Nodes without a column name or without
// assignments declare no columns.
type ModelNode struct {
	ColumnName        string           `json:"columnName,omitempty"`
	UserSemanticTypes []TypeAssignment `json:"userSemanticTypes,omitempty"`
}

// TypeAssignment assigns the semantic type (Domain, Type) to a node's column.
type TypeAssignment struct {
	Domain URIRef `json:"domain"`
	Type   URIRef `json:"type"`
}

// URIRef wraps a URI.
type URIRef struct {
	URI string `json:"uri"`
}

// declaresColumns reports whether n contributes columns.
func (n ModelNode) declaresColumns() bool {
	return n.ColumnName != "" && len(n.UserSemanticTypes) > 0
}

// ParseModel decodes and checks a model body. It requires id, name,
// description and graph.nodes to be present, every node with assignments to
// name its column, and every assignment to carry both URIs.
func ParseModel(body []byte) (*ModelDescription, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: model body is not a JSON object: %v", ErrValidation, err)
	}
	for _, field := range []string{"id", "name", "description", "graph"} {
		if _, ok := top[field]; !ok {
			return nil, fmt.Errorf("%w: the given model must have a %s", ErrValidation, field)
		}
	}
	var graph map[string]json.RawMessage
	if err := json.Unmarshal(top["graph"], &graph); err != nil {
		return nil, fmt.Errorf("%w: model graph is not a JSON object", ErrValidation)
	}
	if _, ok := graph["nodes"]; !ok {
		return nil, fmt.Errorf("%w: the given model must have nodes within the graph", ErrValidation)
	}

	var desc ModelDescription
	if err := json.Unmarshal(body, &desc); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", ErrValidation, err)
	}
	if desc.ID == "" {
		return nil, fmt.Errorf("%w: model id must not be empty", ErrValidation)
	}

	for i, n := range desc.Graph.Nodes {
		if len(n.UserSemanticTypes) == 0 {
			continue
		}
		if n.ColumnName == "" {
			return nil, fmt.Errorf("%w: node %d has semantic types but no columnName", ErrValidation, i)
		}
		for j, a := range n.UserSemanticTypes {
			if a.Domain.URI == "" || a.Type.URI == "" {
				return nil, fmt.Errorf("%w: node %d semantic type %d needs domain.uri and type.uri", ErrValidation, i, j)
			}
		}
	}
	return &desc, nil
}

// IngestResult counts what an ingestion created and reused.
type IngestResult struct {
	TypesCreated   int `json:"types_created"`
	TypesExisted   int `json:"types_existed"`
	ColumnsCreated int `json:"columns_created"`
	ColumnsExisted int `json:"columns_existed"`
}

// IngestModel parses body, creates or reuses the type and column of every
// assignment, and stores the model last.
//
// Ingestion is not atomic. If an assignment fails, the types and columns
// created before it stay in the catalog and no model is stored; callers
// must re-query before retrying. The model id pre-check is advisory: the
// final insert is what rejects a duplicate.
func (c *Catalog) IngestModel(ctx context.Context, body []byte) (IngestResult, error) {
	var res IngestResult

	desc, err := ParseModel(body)
	if err != nil {
		return res, err
	}

	if _, _, err := c.models.Get(ctx, modelKey(desc.ID)); err == nil {
		return res, fmt.Errorf("%w: model id %s already exists", ErrConflict, desc.ID)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return res, translate(err, "model %s", desc.ID)
	}

	for _, n := range desc.Graph.Nodes {
		if !n.declaresColumns() {
			continue
		}
		for _, a := range n.UserSemanticTypes {
			st, err := NewSemanticType(a.Domain.URI, a.Type.URI)
			if err != nil {
				return res, err
			}
			created, err := ensure(ctx, c.types.Insert, st)
			if err != nil {
				return res, fmt.Errorf("add semantic type %s %s: %w", st.Class, st.Property, err)
			}
			if created {
				res.TypesCreated++
			} else {
				res.TypesExisted++
			}

			col := &Column{
				ID:         ColumnID(st.ID, n.ColumnName, desc.Name, BulkAddModel),
				TypeID:     st.ID,
				ColumnName: n.ColumnName,
				SourceName: desc.Name,
				Model:      BulkAddModel,
				Data:       []string{},
			}
			created, err = ensure(ctx, c.columns.Insert, col)
			if err != nil {
				return res, fmt.Errorf("add column %s for semantic type %s: %w", n.ColumnName, st.ID, err)
			}
			if created {
				res.ColumnsCreated++
			} else {
				res.ColumnsExisted++
			}
		}
	}

	payload := new(bytes.Buffer)
	if err := json.Compact(payload, body); err != nil {
		return res, fmt.Errorf("%w: compact model payload: %v", ErrValidation, err)
	}
	model := &Model{
		ID:          desc.ID,
		Name:        desc.Name,
		Description: desc.Description,
		Payload:     payload.Bytes(),
		CreatedAt:   c.now().UTC(),
	}
	if err := c.models.Insert(ctx, model); err != nil {
		return res, translate(err, "model id %s", desc.ID)
	}

	c.logger.Info("Ingested model",
		"model_id", desc.ID,
		"types_created", res.TypesCreated,
		"types_existed", res.TypesExisted,
		"columns_created", res.ColumnsCreated,
		"columns_existed", res.ColumnsExisted)
	return res, nil
}

// ensure inserts doc and reports whether it was created; an existing
// document with the same key counts as reuse.
func ensure[T storage.Document](ctx context.Context, insert func(context.Context, T) error, doc T) (bool, error) {
	err := insert(ctx, doc)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrConflict):
		return false, nil
	default:
		return false, translate(err, "insert %s", doc.StoreKey())
	}
}

// ListModels returns the models matching f. Payloads are included only with
// showAll. An empty result is ErrNotFound.
func (c *Catalog) ListModels(ctx context.Context, f ModelFilter, showAll bool) ([]*Model, error) {
	models, err := c.models.Find(ctx, modelQuery(f))
	if err != nil {
		return nil, translate(err, "find models")
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("%w: no models were found with the given parameters", ErrNotFound)
	}
	if !showAll {
		for _, m := range models {
			m.Payload = nil
		}
	}
	return models, nil
}

// DeleteModels removes the models matching f; an empty filter removes every
// model. Zero removed is ErrNotFound. Columns created by ingestion are kept.
func (c *Catalog) DeleteModels(ctx context.Context, f ModelFilter) (int, error) {
	n, err := c.models.DeleteMany(ctx, modelQuery(f))
	if err != nil {
		return n, translate(err, "delete models")
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: no models were found with the given parameters", ErrNotFound)
	}
	c.logger.Debug("Deleted models", "count", n)
	return n, nil
}

func modelQuery(f ModelFilter) storage.Query[*Model] {
	q := storage.Query[*Model]{Match: f.Matches}
	for _, id := range f.IDs {
		q.Keys = append(q.Keys, modelKey(id))
	}
	return q
}

func (c *Catalog) getModel(ctx context.Context, modelID string) (*Model, *ModelDescription, error) {
	if modelID == "" {
		return nil, nil, fmt.Errorf("%w: invalid model id", ErrValidation)
	}
	m, _, err := c.models.Get(ctx, modelKey(modelID))
	if err != nil {
		return nil, nil, translate(err, "model %s", modelID)
	}
	var desc ModelDescription
	if err := json.Unmarshal(m.Payload, &desc); err != nil {
		return nil, nil, fmt.Errorf("%w: stored payload of model %s: %v", ErrConsistency, modelID, err)
	}
	return m, &desc, nil
}

// declaredColumnIDs lists, per node, the ids of the columns a model declared.
func declaredColumnIDs(desc *ModelDescription) (map[int][]string, error) {
	ids := make(map[int][]string)
	for i, n := range desc.Graph.Nodes {
		if !n.declaresColumns() {
			continue
		}
		for _, a := range n.UserSemanticTypes {
			st, err := NewSemanticType(a.Domain.URI, a.Type.URI)
			if err != nil {
				return nil, err
			}
			ids[i] = append(ids[i], ColumnID(st.ID, n.ColumnName, desc.Name, BulkAddModel))
		}
	}
	return ids, nil
}

// ModelColumns returns the columns a stored model declared, with their data.
func (c *Catalog) ModelColumns(ctx context.Context, modelID string) ([]*Column, error) {
	_, desc, err := c.getModel(ctx, modelID)
	if err != nil {
		return nil, err
	}
	byNode, err := declaredColumnIDs(desc)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, ids := range byNode {
		keys = append(keys, ids...)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: model %s declares no columns", ErrNotFound, modelID)
	}

	cols, err := c.columns.Find(ctx, storage.ByKeys[*Column](keys...))
	if err != nil {
		return nil, translate(err, "find columns of model %s", modelID)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: no columns of model %s are stored", ErrNotFound, modelID)
	}
	return cols, nil
}

// AppendResult summarizes a row-data batch.
type AppendResult struct {
	Rows           int `json:"rows"`
	ColumnsUpdated int `json:"columns_updated"`
}

// AppendModelData appends a newline-delimited batch of JSON records to the
// columns a stored model declared. Each declaring node's column receives the
// record field named after the column, in record order.
//
// Every record is parsed and checked for the required fields before any
// write. The appends themselves are independent: if a column is missing the
// remaining appends are abandoned with ErrNotFound and the columns already
// appended keep their new rows.
func (c *Catalog) AppendModelData(ctx context.Context, modelID string, body []byte) (AppendResult, error) {
	var res AppendResult

	_, desc, err := c.getModel(ctx, modelID)
	if err != nil {
		return res, err
	}

	records, err := parseRecords(body)
	if err != nil {
		return res, err
	}

	byNode, err := declaredColumnIDs(desc)
	if err != nil {
		return res, err
	}

	values := make(map[int][]string, len(byNode))
	for i := range byNode {
		name := desc.Graph.Nodes[i].ColumnName
		rows := make([]string, len(records))
		for r, rec := range records {
			raw, ok := rec[name]
			if !ok {
				return res, fmt.Errorf("%w: record %d has no field %q", ErrValidation, r+1, name)
			}
			if rows[r], err = fieldText(raw); err != nil {
				return res, fmt.Errorf("%w: record %d field %q: %v", ErrValidation, r+1, name, err)
			}
		}
		values[i] = rows
	}

	for i, n := range desc.Graph.Nodes {
		for _, colID := range byNode[i] {
			if err := c.AppendColumnData(ctx, colID, values[i]); err != nil {
				if errors.Is(err, ErrNotFound) {
					return res, fmt.Errorf("%w: a required column was not found: %s of model %s", ErrNotFound, n.ColumnName, modelID)
				}
				return res, err
			}
			res.ColumnsUpdated++
		}
	}
	res.Rows = len(records)

	c.logger.Debug("Appended model data", "model_id", modelID, "rows", res.Rows, "columns", res.ColumnsUpdated)
	return res, nil
}

func parseRecords(body []byte) ([]map[string]json.RawMessage, error) {
	var records []map[string]json.RawMessage
	for i, line := range strings.Split(string(body), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d is not a JSON object: %v", ErrValidation, i+1, err)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no records in body", ErrValidation)
	}
	return records, nil
}

// fieldText renders a record field as a row: strings verbatim, any other
// value as compact JSON.
func fieldText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	buf := new(bytes.Buffer)
	if err := json.Compact(buf, trimmed); err != nil {
		return "", err
	}
	return buf.String(), nil
}
