package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Recognized query parameters.
const (
	ParamClass            = "class"
	ParamProperty         = "property"
	ParamNamespaces       = "namespaces"
	ParamSourceNames      = "sourceNames"
	ParamColumnNames      = "columnNames"
	ParamColumnIDs        = "columnIds"
	ParamModels           = "models"
	ParamModelNames       = "modelNames"
	ParamModelIDs         = "modelIds"
	ParamModelDesc        = "modelDesc"
	ParamReturnColumns    = "returnColumns"
	ParamReturnColumnData = "returnColumnData"
	ParamDeleteAll        = "deleteAll"
	ParamShowAll          = "showAll"
	ParamColumnName       = "columnName"
	ParamSourceName       = "sourceName"
	ParamModel            = "model"
)

// Params consumes query parameters and rejects any the caller did not ask
// for. Call Err after reading every accepted parameter.
type Params struct {
	values url.Values
	taken  map[string]struct{}
}

// NewParams wraps v.
func NewParams(v url.Values) *Params {
	return &Params{values: v, taken: make(map[string]struct{})}
}

// String returns the first value of name, or "".
func (p *Params) String(name string) string {
	p.taken[name] = struct{}{}
	return p.values.Get(name)
}

// Set returns the comma-separated values of name, or nil when absent or empty.
func (p *Params) Set(name string) []string {
	raw := p.String(name)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Bool reports whether name equals "true", ignoring case.
func (p *Params) Bool(name string) bool {
	return strings.EqualFold(p.String(name), "true")
}

// Err returns ErrValidation naming every parameter that was supplied but not
// read.
func (p *Params) Err() error {
	var unknown []string
	for name := range p.values {
		if _, ok := p.taken[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("%w: the following query parameters are invalid: %s", ErrValidation, strings.Join(unknown, ", "))
}

// TypeFilter reads the type-level facets.
func (p *Params) TypeFilter() TypeFilter {
	return TypeFilter{
		Class:      normalizeURI(p.String(ParamClass)),
		Property:   normalizeURI(p.String(ParamProperty)),
		Namespaces: p.Set(ParamNamespaces),
	}
}

// ColumnFilter reads the column-level facets for the given owning type.
func (p *Params) ColumnFilter(typeID string) ColumnFilter {
	return ColumnFilter{
		TypeID:      typeID,
		SourceNames: p.Set(ParamSourceNames),
		ColumnNames: p.Set(ParamColumnNames),
		ColumnIDs:   p.Set(ParamColumnIDs),
		Models:      p.Set(ParamModels),
	}
}

// ModelFilter reads the model facets.
func (p *Params) ModelFilter() ModelFilter {
	return ModelFilter{
		IDs:         p.Set(ParamModelIDs),
		Names:       p.Set(ParamModelNames),
		Description: p.String(ParamModelDesc),
	}
}

// TypeQuery reads everything ListTypes accepts. ReturnColumnData implies
// ReturnColumns.
func (p *Params) TypeQuery() TypeQuery {
	q := TypeQuery{
		Types:             p.TypeFilter(),
		Columns:           p.ColumnFilter(""),
		IncludeColumns:    p.Bool(ParamReturnColumns),
		IncludeColumnData: p.Bool(ParamReturnColumnData),
	}
	if q.IncludeColumnData {
		q.IncludeColumns = true
	}
	return q
}

// TypeDeletion reads everything DeleteTypes accepts.
func (p *Params) TypeDeletion() TypeDeletion {
	return TypeDeletion{
		Types:   p.TypeFilter(),
		Columns: p.ColumnFilter(""),
		All:     p.Bool(ParamDeleteAll),
	}
}
