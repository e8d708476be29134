package catalogapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/export"
	"github.com/c360studio/semtypes/labeling"
)

// maxRequestBodySize limits request bodies. Model payloads and row batches
// can be large.
const maxRequestBodySize = 32 << 20 // 32 MB

// defaultSearchSize is the number of hits returned when size is not given.
const defaultSearchSize = 10

// Query parameters outside the catalog set.
const (
	paramType1    = "type1"
	paramType2    = "type2"
	paramRelation = "relation"
	paramQuery    = "q"
	paramSize     = "size"
	paramFormat   = "format"
)

// RegisterHTTPHandlers registers all catalog-api HTTP handlers under the given prefix.
// Handlers are registered as:
//
//	GET|POST|PUT|DELETE <prefix>/semantic_types
//	GET|POST|PUT|DELETE <prefix>/semantic_types/{typeID}/columns
//	GET|POST|PUT|DELETE <prefix>/columns/{columnID}/data
//	GET|POST|DELETE     <prefix>/models
//	GET|POST            <prefix>/models/{modelID}/data
//	GET|POST            <prefix>/relations
//	POST                <prefix>/features/{setName}
//	GET|DELETE          <prefix>/indexes/{name}
//	GET                 <prefix>/export
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	// Normalise: ensure leading slash and trailing slash.
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc(prefix+"semantic_types", c.instrument("semantic_types", c.handleTypes))
	mux.HandleFunc(prefix+"semantic_types/{typeID}/columns", c.instrument("columns", c.handleTypeColumns))
	mux.HandleFunc(prefix+"columns/{columnID}/data", c.instrument("column_data", c.handleColumnData))
	mux.HandleFunc(prefix+"models", c.instrument("models", c.handleModels))
	mux.HandleFunc(prefix+"models/{modelID}/data", c.instrument("model_data", c.handleModelData))
	mux.HandleFunc(prefix+"relations", c.instrument("relations", c.handleRelations))
	mux.HandleFunc(prefix+"features/{setName}", c.instrument("features", c.handleFeatures))
	mux.HandleFunc(prefix+"indexes/{name}", c.instrument("indexes", c.handleIndexes))
	mux.HandleFunc(prefix+"export", c.instrument("export", c.handleExport))
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument counts every request by operation and status.
func (c *Component) instrument(operation string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		c.metrics.requests.WithLabelValues(operation, strconv.Itoa(rec.status)).Inc()
	}
}

// ----------------------------------------------------------------------------
// /semantic_types
// ----------------------------------------------------------------------------

func (c *Component) handleTypes(w http.ResponseWriter, r *http.Request) {
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	p := catalog.NewParams(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		q := p.TypeQuery()
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		listings, err := svc.catalog.ListTypes(ctx, q)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listings)

	case http.MethodPost, http.MethodPut:
		class := p.String(catalog.ParamClass)
		property := p.String(catalog.ParamProperty)
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		id, err := svc.catalog.CreateType(ctx, class, property, r.Method == http.MethodPut)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, IDResponse{ID: id})

	case http.MethodDelete:
		d := p.TypeDeletion()
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		result, err := svc.catalog.DeleteTypes(ctx, d)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /semantic_types/{typeID}/columns
// ----------------------------------------------------------------------------

func (c *Component) handleTypeColumns(w http.ResponseWriter, r *http.Request) {
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	typeID := r.PathValue("typeID")
	p := catalog.NewParams(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		f := p.ColumnFilter(typeID)
		withData := p.Bool(catalog.ParamReturnColumnData)
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		columns, err := svc.catalog.ListColumns(ctx, f, withData)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, columns)

	case http.MethodPost, http.MethodPut:
		spec := catalog.ColumnSpec{
			TypeID:     typeID,
			ColumnName: p.String(catalog.ParamColumnName),
			SourceName: p.String(catalog.ParamSourceName),
			Model:      p.String(catalog.ParamModel),
		}
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		rows, err := readRows(w, r)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		spec.Data = rows
		id, err := svc.catalog.CreateColumn(ctx, spec, r.Method == http.MethodPut)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, IDResponse{ID: id})

	case http.MethodDelete:
		f := p.ColumnFilter(typeID)
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		n, err := svc.catalog.DeleteColumns(ctx, f)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"columns_deleted": n})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /columns/{columnID}/data
// ----------------------------------------------------------------------------

func (c *Component) handleColumnData(w http.ResponseWriter, r *http.Request) {
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	columnID := r.PathValue("columnID")
	if err := catalog.NewParams(r.URL.Query()).Err(); err != nil {
		c.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		col, err := svc.catalog.GetColumn(ctx, columnID)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newColumnDataResponse(col))

	case http.MethodPost, http.MethodPut:
		body, err := readBody(w, r)
		if err == nil && len(body) == 0 {
			err = fmt.Errorf("%w: empty request body", catalog.ErrValidation)
		}
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		rows := splitRows(string(body))
		if r.Method == http.MethodPost {
			err = svc.catalog.AppendColumnData(ctx, columnID, rows)
		} else {
			err = svc.catalog.ReplaceColumnData(ctx, columnID, rows)
		}
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RowsResponse{ID: columnID, Rows: len(rows)})

	case http.MethodDelete:
		if err := svc.catalog.ClearColumnData(ctx, columnID); err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, RowsResponse{ID: columnID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /models
// ----------------------------------------------------------------------------

func (c *Component) handleModels(w http.ResponseWriter, r *http.Request) {
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	p := catalog.NewParams(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		f := p.ModelFilter()
		showAll := p.Bool(catalog.ParamShowAll)
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		models, err := svc.catalog.ListModels(ctx, f, showAll)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, models)

	case http.MethodPost:
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		result, err := svc.catalog.IngestModel(ctx, body)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		c.metrics.observeIngest(result.TypesCreated, result.TypesExisted, result.ColumnsCreated, result.ColumnsExisted)
		writeJSON(w, http.StatusCreated, result)

	case http.MethodDelete:
		f := p.ModelFilter()
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		n, err := svc.catalog.DeleteModels(ctx, f)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"models_deleted": n})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /models/{modelID}/data
// ----------------------------------------------------------------------------

func (c *Component) handleModelData(w http.ResponseWriter, r *http.Request) {
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	modelID := r.PathValue("modelID")
	if err := catalog.NewParams(r.URL.Query()).Err(); err != nil {
		c.writeError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		columns, err := svc.catalog.ModelColumns(ctx, modelID)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, columns)

	case http.MethodPost:
		body, err := readBody(w, r)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		result, err := svc.catalog.AppendModelData(ctx, modelID, body)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /relations
// ----------------------------------------------------------------------------

// ObservationRequest is the body of POST /relations.
type ObservationRequest struct {
	Type1    string `json:"type1"`
	Type2    string `json:"type2"`
	Relation string `json:"relation"`
	WasTrue  bool   `json:"was_true"`
}

func (c *Component) handleRelations(w http.ResponseWriter, r *http.Request) {
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	p := catalog.NewParams(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		type1, type2, relation := p.String(paramType1), p.String(paramType2), p.String(paramRelation)
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		counter, err := svc.aggregator.Get(ctx, type1, type2, relation)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, counter)

	case http.MethodPost:
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		body, err := readBody(w, r)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		var req ObservationRequest
		if err := json.Unmarshal(body, &req); err != nil {
			c.writeError(w, r, fmt.Errorf("%w: invalid JSON body: %v", catalog.ErrValidation, err))
			return
		}
		counter, err := svc.aggregator.Observe(ctx, req.Type1, req.Type2, req.Relation, req.WasTrue)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, counter)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /features/{setName}
// ----------------------------------------------------------------------------

func (c *Component) handleFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	if err := catalog.NewParams(r.URL.Query()).Err(); err != nil {
		c.writeError(w, r, err)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	profile, err := labeling.ParseColumnProfile(body)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	setName := r.PathValue("setName")
	written, err := svc.indexer.IndexColumn(r.Context(), profile, setName)
	if err != nil {
		c.logger.Error("Feature indexing stopped early",
			"set_name", setName, "column", profile.Name, "written", written, "error", err)
		c.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"records": written})
}

// ----------------------------------------------------------------------------
// /indexes/{name}
// ----------------------------------------------------------------------------

func (c *Component) handleIndexes(w http.ResponseWriter, r *http.Request) {
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	name := r.PathValue("name")
	p := catalog.NewParams(r.URL.Query())

	switch r.Method {
	case http.MethodGet:
		query := p.String(paramQuery)
		rawSize := p.String(paramSize)
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		if query == "" {
			exists, err := svc.indexer.IndexExists(name)
			if err != nil {
				c.writeError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, IndexResponse{Name: name, Exists: exists})
			return
		}

		size := defaultSearchSize
		if rawSize != "" {
			size, err = strconv.Atoi(rawSize)
			if err != nil || size <= 0 {
				c.writeError(w, r, fmt.Errorf("%w: size must be a positive integer", catalog.ErrValidation))
				return
			}
		}
		hits, err := svc.search.Search(name, query, size)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, SearchResponse{Name: name, Hits: hits})

	case http.MethodDelete:
		if err := p.Err(); err != nil {
			c.writeError(w, r, err)
			return
		}
		deleted, err := svc.indexer.DeleteIndex(name)
		if err != nil {
			c.writeError(w, r, err)
			return
		}
		if !deleted {
			c.writeError(w, r, fmt.Errorf("%w: index %s", catalog.ErrNotFound, name))
			return
		}
		writeJSON(w, http.StatusOK, IndexResponse{Name: name})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// ----------------------------------------------------------------------------
// /export
// ----------------------------------------------------------------------------

// handleExport serializes the types selected by the type query parameters as
// RDF. An empty selection is an empty document.
func (c *Component) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	svc, err := c.running()
	if err != nil {
		c.writeError(w, r, err)
		return
	}
	p := catalog.NewParams(r.URL.Query())
	rawFormat := p.String(paramFormat)
	q := p.TypeQuery()
	if err := p.Err(); err != nil {
		c.writeError(w, r, err)
		return
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		c.writeError(w, r, fmt.Errorf("%w: %v", catalog.ErrValidation, err))
		return
	}

	listings, err := svc.catalog.ListTypes(r.Context(), q)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		c.writeError(w, r, err)
		return
	}
	exporter := export.NewExporter()
	exporter.AddListings(listings, q.IncludeColumnData)

	info, _ := export.GetFormatInfo(format)
	w.Header().Set("Content-Type", info.MIMEType)
	w.WriteHeader(http.StatusOK)
	if err := exporter.Write(w, format); err != nil {
		c.logger.Warn("Export write failed", "format", format, "error", err)
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// IDResponse is returned by creates.
type IDResponse struct {
	ID string `json:"id"`
}

// ColumnDataResponse is a column with its rows. Data is always present, empty
// for a cleared column.
type ColumnDataResponse struct {
	*catalog.Column
	Data []string `json:"data"`
}

func newColumnDataResponse(col *catalog.Column) ColumnDataResponse {
	data := col.Data
	if data == nil {
		data = []string{}
	}
	return ColumnDataResponse{Column: col, Data: data}
}

// RowsResponse reports the rows written to a column.
type RowsResponse struct {
	ID   string `json:"id"`
	Rows int    `json:"rows"`
}

// IndexResponse reports whether a search index exists.
type IndexResponse struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}

// SearchResponse lists the record ids matching a search.
type SearchResponse struct {
	Name string   `json:"name"`
	Hits []string `json:"hits"`
}

// statusFor maps an operation error to its HTTP status.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, errNotRunning):
		return http.StatusServiceUnavailable
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, catalog.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err with its mapped status. Server-side failures are
// logged and their detail is not returned.
func (c *Component) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		c.logger.Error("Catalog request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "Internal server error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

// readBody reads the request body up to maxRequestBodySize.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read body: %v", catalog.ErrValidation, err)
	}
	return body, nil
}

// readRows reads a newline-delimited body. One trailing newline is not a row;
// an empty body has no rows.
func readRows(w http.ResponseWriter, r *http.Request) ([]string, error) {
	body, err := readBody(w, r)
	if err != nil {
		return nil, err
	}
	return splitRows(string(body)), nil
}

func splitRows(body string) []string {
	body = strings.TrimSuffix(body, "\n")
	if body == "" {
		return []string{}
	}
	rows := strings.Split(body, "\n")
	for i, row := range rows {
		rows[i] = strings.TrimSuffix(row, "\r")
	}
	return rows
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
