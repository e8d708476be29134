package catalogapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/c360studio/semstreams/component"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/export"
	"github.com/c360studio/semtypes/labeling"
)

const personClass = "http://x.org/Person"

const personModel = `{
  "id": "m1",
  "name": "M",
  "description": "people",
  "graph": {"nodes": [
    {"columnName": "age", "userSemanticTypes": [
      {"domain": {"uri": "http://x.org/Person"}, "type": {"uri": "http://x.org/age"}}
    ]},
    {"label": "no assignments"}
  ]}
}`

// setupTestComponent creates a started Component on the memory backend.
func setupTestComponent(t *testing.T) *Component {
	t.Helper()
	disc, err := NewComponent(json.RawMessage(`{"backend":"memory"}`), component.Dependencies{})
	if err != nil {
		t.Fatalf("NewComponent: %v", err)
	}
	c := disc.(*Component)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop(time.Second) })
	return c
}

// registerHandlers wires the component's handlers into a fresh mux and returns a test server.
func registerHandlers(t *testing.T, c *Component) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("semtypes", mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// do sends a request and returns the status and body.
func do(t *testing.T, method, rawURL, body string) (int, string) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, rawURL, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, rawURL, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(data)
}

func decode(t *testing.T, body string, dst any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

func typesURL(srv *httptest.Server, params url.Values) string {
	return srv.URL + "/semtypes/semantic_types?" + params.Encode()
}

func createType(t *testing.T, srv *httptest.Server, class, property string) string {
	t.Helper()
	status, body := do(t, http.MethodPost, typesURL(srv, url.Values{"class": {class}, "property": {property}}), "")
	if status != http.StatusCreated {
		t.Fatalf("create type: status %d: %s", status, body)
	}
	var resp IDResponse
	decode(t, body, &resp)
	return resp.ID
}

func TestSemanticTypes_CreateListDelete(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))

	id := createType(t, srv, personClass, "name")
	if id != catalog.TypeID(personClass, "name") {
		t.Fatalf("id = %q", id)
	}

	// Repeated POST is a conflict.
	status, _ := do(t, http.MethodPost, typesURL(srv, url.Values{"class": {personClass}, "property": {"name"}}), "")
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}

	// PUT force-creates.
	status, _ = do(t, http.MethodPut, typesURL(srv, url.Values{"class": {personClass}, "property": {"name"}}), "")
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on PUT, got %d", status)
	}

	status, body := do(t, http.MethodGet, typesURL(srv, url.Values{"namespaces": {"http://x.org"}}), "")
	if status != http.StatusOK {
		t.Fatalf("list: status %d: %s", status, body)
	}
	var listings []catalog.TypeListing
	decode(t, body, &listings)
	if len(listings) != 1 || listings[0].Class != personClass {
		t.Fatalf("listings = %+v", listings)
	}

	status, body = do(t, http.MethodDelete, typesURL(srv, url.Values{"class": {personClass}}), "")
	if status != http.StatusOK {
		t.Fatalf("delete: status %d: %s", status, body)
	}
	var deleted catalog.DeleteResult
	decode(t, body, &deleted)
	if deleted.Types != 1 {
		t.Errorf("types deleted = %d", deleted.Types)
	}

	status, _ = do(t, http.MethodGet, typesURL(srv, nil), "")
	if status != http.StatusNotFound {
		t.Errorf("expected 404 for empty catalog, got %d", status)
	}
}

func TestSemanticTypes_Validation(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))

	tests := []struct {
		name   string
		method string
		params url.Values
	}{
		{name: "unknown param on list", method: http.MethodGet, params: url.Values{"colour": {"red"}}},
		{name: "column param on create", method: http.MethodPost, params: url.Values{"class": {personClass}, "property": {"p"}, "sourceNames": {"x"}}},
		{name: "relative class", method: http.MethodPost, params: url.Values{"class": {"Person"}, "property": {"p"}}},
		{name: "unknown param on delete", method: http.MethodDelete, params: url.Values{"everything": {"true"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, tt.method, typesURL(srv, tt.params), "")
			if status != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", status, body)
			}
		})
	}

	status, _ := do(t, http.MethodPatch, typesURL(srv, nil), "")
	if status != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", status)
	}
}

func TestColumns_AndData(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))
	typeID := createType(t, srv, personClass, "name")
	columnsURL := srv.URL + "/semtypes/semantic_types/" + typeID + "/columns"

	status, body := do(t, http.MethodPost, columnsURL+"?columnName=name&sourceName=crm", "ada\ngrace\n")
	if status != http.StatusCreated {
		t.Fatalf("create column: status %d: %s", status, body)
	}
	var created IDResponse
	decode(t, body, &created)
	if created.ID != catalog.ColumnID(typeID, "name", "crm", catalog.DefaultColumnModel) {
		t.Fatalf("column id = %q", created.ID)
	}

	status, _ = do(t, http.MethodPost, columnsURL+"?columnName=name&sourceName=crm", "")
	if status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}

	dataURL := srv.URL + "/semtypes/columns/" + created.ID + "/data"
	if status, body := do(t, http.MethodPost, dataURL, "linus\n"); status != http.StatusOK {
		t.Fatalf("append: status %d: %s", status, body)
	}

	status, body = do(t, http.MethodGet, dataURL, "")
	if status != http.StatusOK {
		t.Fatalf("get column: status %d", status)
	}
	var col catalog.Column
	decode(t, body, &col)
	if strings.Join(col.Data, ",") != "ada,grace,linus" {
		t.Fatalf("data = %v", col.Data)
	}

	// Listing without data omits rows.
	status, body = do(t, http.MethodGet, columnsURL, "")
	if status != http.StatusOK {
		t.Fatalf("list columns: status %d", status)
	}
	if strings.Contains(body, "ada") {
		t.Errorf("listing without returnColumnData leaked rows: %s", body)
	}
	status, body = do(t, http.MethodGet, columnsURL+"?returnColumnData=true", "")
	if status != http.StatusOK || !strings.Contains(body, "ada") {
		t.Errorf("listing with data: status %d: %s", status, body)
	}

	if status, _ := do(t, http.MethodPut, dataURL, "x"); status != http.StatusOK {
		t.Fatalf("replace: status %d", status)
	}
	if status, _ := do(t, http.MethodDelete, dataURL, ""); status != http.StatusOK {
		t.Fatalf("clear: status %d", status)
	}
	_, body = do(t, http.MethodGet, dataURL, "")
	col = catalog.Column{}
	decode(t, body, &col)
	if len(col.Data) != 0 {
		t.Errorf("data after clear = %v", col.Data)
	}
	// A cleared column still reports its rows, as an empty list.
	if !strings.Contains(body, `"data":[]`) {
		t.Errorf("cleared column should carry an empty data list: %s", body)
	}

	for _, method := range []string{http.MethodPost, http.MethodPut} {
		if status, _ := do(t, method, dataURL, ""); status != http.StatusBadRequest {
			t.Errorf("%s with empty body: status %d, want 400", method, status)
		}
	}
	if status, _ := do(t, http.MethodPost, dataURL, "\n"); status != http.StatusOK {
		t.Errorf("newline-only body: status %d, want 200", status)
	}

	if status, _ := do(t, http.MethodGet, dataURL+"?extra=1", ""); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown param, got %d", status)
	}

	status, body = do(t, http.MethodDelete, columnsURL+"?sourceNames=crm", "")
	if status != http.StatusOK || !strings.Contains(body, `"columns_deleted":1`) {
		t.Fatalf("delete columns: status %d: %s", status, body)
	}
	if status, _ := do(t, http.MethodGet, dataURL, ""); status != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func TestColumns_UnknownType(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))
	typeID := catalog.TypeID(personClass, "missing")

	status, _ := do(t, http.MethodPost, srv.URL+"/semtypes/semantic_types/"+typeID+"/columns?columnName=a&sourceName=b", "")
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestModels_IngestAndAppend(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))
	modelsURL := srv.URL + "/semtypes/models"

	status, body := do(t, http.MethodPost, modelsURL, personModel)
	if status != http.StatusCreated {
		t.Fatalf("ingest: status %d: %s", status, body)
	}
	var ingest catalog.IngestResult
	decode(t, body, &ingest)
	if ingest != (catalog.IngestResult{TypesCreated: 1, ColumnsCreated: 1}) {
		t.Fatalf("ingest = %+v", ingest)
	}

	if status, _ := do(t, http.MethodPost, modelsURL, personModel); status != http.StatusConflict {
		t.Fatalf("expected 409 on re-ingest, got %d", status)
	}

	dataURL := modelsURL + "/m1/data"
	status, body = do(t, http.MethodPost, dataURL, "{\"age\": 36}\n{\"age\": \"40\"}\n")
	if status != http.StatusOK {
		t.Fatalf("append: status %d: %s", status, body)
	}
	var appended catalog.AppendResult
	decode(t, body, &appended)
	if appended.Rows != 2 || appended.ColumnsUpdated != 1 {
		t.Fatalf("append = %+v", appended)
	}

	if status, _ := do(t, http.MethodPost, dataURL, `{"name": "x"}`); status != http.StatusBadRequest {
		t.Errorf("expected 400 for missing field, got %d", status)
	}

	status, body = do(t, http.MethodGet, dataURL, "")
	if status != http.StatusOK {
		t.Fatalf("model columns: status %d", status)
	}
	var columns []catalog.Column
	decode(t, body, &columns)
	if len(columns) != 1 || strings.Join(columns[0].Data, ",") != "36,40" {
		t.Fatalf("columns = %+v", columns)
	}

	status, body = do(t, http.MethodGet, modelsURL+"?modelNames=M", "")
	if status != http.StatusOK || strings.Contains(body, "payload") {
		t.Fatalf("list models: status %d: %s", status, body)
	}
	status, body = do(t, http.MethodGet, modelsURL+"?modelNames=M&showAll=true", "")
	if status != http.StatusOK || !strings.Contains(body, "payload") {
		t.Fatalf("list models showAll: status %d: %s", status, body)
	}

	if status, _ := do(t, http.MethodGet, modelsURL+"/nope/data", ""); status != http.StatusNotFound {
		t.Errorf("expected 404 for unknown model, got %d", status)
	}

	status, body = do(t, http.MethodDelete, modelsURL+"?modelIds=m1", "")
	if status != http.StatusOK || !strings.Contains(body, `"models_deleted":1`) {
		t.Fatalf("delete models: status %d: %s", status, body)
	}
}

func TestRelations(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))
	relationsURL := srv.URL + "/semtypes/relations"

	for _, wasTrue := range []bool{true, false, true} {
		body, _ := json.Marshal(ObservationRequest{Type1: "A", Type2: "B", Relation: "r", WasTrue: wasTrue})
		if status, resp := do(t, http.MethodPost, relationsURL, string(body)); status != http.StatusOK {
			t.Fatalf("observe: status %d: %s", status, resp)
		}
	}

	status, body := do(t, http.MethodGet, relationsURL+"?type1=A&type2=B&relation=r", "")
	if status != http.StatusOK {
		t.Fatalf("get: status %d: %s", status, body)
	}
	var counter labeling.RelationCounter
	decode(t, body, &counter)
	if counter.TrueCount != 2 || counter.TotalCount != 3 {
		t.Fatalf("counter = %+v", counter)
	}

	if status, _ := do(t, http.MethodGet, relationsURL+"?type1=A&type2=B&relation=other", ""); status != http.StatusNotFound {
		t.Errorf("expected 404, got %d", status)
	}
	if status, _ := do(t, http.MethodPost, relationsURL, `{"type1":`); status != http.StatusBadRequest {
		t.Errorf("expected 400 for bad JSON, got %d", status)
	}
	if status, _ := do(t, http.MethodPost, relationsURL, `{"type1":"A"}`); status != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", status)
	}
}

func TestFeaturesAndIndexes(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))
	indexURL := srv.URL + "/semtypes/indexes/set1"

	status, body := do(t, http.MethodGet, indexURL, "")
	if status != http.StatusOK || !strings.Contains(body, `"exists":false`) {
		t.Fatalf("exists before: status %d: %s", status, body)
	}

	profile := `{"name":"city","semantic_type":"t","source_name":"s","num_fraction":0,
		"textual":"amsterdam rotterdam","values":["amsterdam","rotterdam"]}`
	status, body = do(t, http.MethodPost, srv.URL+"/semtypes/features/set1", profile)
	if status != http.StatusCreated || !strings.Contains(body, `"records":2`) {
		t.Fatalf("index features: status %d: %s", status, body)
	}

	if status, _ := do(t, http.MethodPost, srv.URL+"/semtypes/features/set1", `{"name":"c","semantic_type":"t","num_fraction":0,"entropy":1}`); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown metric, got %d", status)
	}

	status, body = do(t, http.MethodGet, indexURL, "")
	if status != http.StatusOK || !strings.Contains(body, `"exists":true`) {
		t.Fatalf("exists after: status %d: %s", status, body)
	}

	status, body = do(t, http.MethodGet, indexURL+"?q=rotterdam&size=5", "")
	if status != http.StatusOK {
		t.Fatalf("search: status %d: %s", status, body)
	}
	var hits SearchResponse
	decode(t, body, &hits)
	if len(hits.Hits) == 0 {
		t.Errorf("expected hits for rotterdam")
	}

	if status, _ := do(t, http.MethodGet, indexURL+"?q=x&size=zero", ""); status != http.StatusBadRequest {
		t.Errorf("expected 400 for bad size, got %d", status)
	}

	if status, _ := do(t, http.MethodDelete, indexURL, ""); status != http.StatusOK {
		t.Fatalf("delete index: status %d", status)
	}
	if status, _ := do(t, http.MethodDelete, indexURL, ""); status != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", status)
	}
}

func TestExport(t *testing.T) {
	srv := registerHandlers(t, setupTestComponent(t))

	// Nothing stored yet: an empty document, not 404.
	status, body := do(t, http.MethodGet, srv.URL+"/semtypes/export?format=ntriples", "")
	if status != http.StatusOK || body != "" {
		t.Fatalf("empty export: status %d body %q", status, body)
	}

	if status, body := do(t, http.MethodPost, srv.URL+"/semtypes/models", personModel); status != http.StatusCreated {
		t.Fatalf("ingest: status %d: %s", status, body)
	}

	resp, err := http.Get(srv.URL + "/semtypes/export?returnColumns=true")
	if err != nil {
		t.Fatalf("GET export: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("export: status %d: %s", resp.StatusCode, data)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/turtle" {
		t.Errorf("Content-Type = %q", ct)
	}
	typeID := catalog.TypeID(personClass, "http://x.org/age")
	for _, want := range []string{
		"<" + export.TypeIRI(typeID) + ">",
		`st:columnName "age"`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("export missing %q:\n%s", want, data)
		}
	}

	status, body = do(t, http.MethodGet, srv.URL+"/semtypes/export?format=jsonld&class="+url.QueryEscape("http://x.org/Other"), "")
	if status != http.StatusOK {
		t.Fatalf("filtered export: status %d: %s", status, body)
	}
	var doc export.JSONLDDocument
	decode(t, body, &doc)
	if len(doc.Graph) != 0 {
		t.Errorf("expected empty graph, got %d nodes", len(doc.Graph))
	}

	if status, _ := do(t, http.MethodGet, srv.URL+"/semtypes/export?format=rdfxml", ""); status != http.StatusBadRequest {
		t.Errorf("unknown format: status %d, want 400", status)
	}
	if status, _ := do(t, http.MethodGet, srv.URL+"/semtypes/export?bogus=1", ""); status != http.StatusBadRequest {
		t.Errorf("unknown parameter: status %d, want 400", status)
	}
	if status, _ := do(t, http.MethodPost, srv.URL+"/semtypes/export", ""); status != http.StatusMethodNotAllowed {
		t.Errorf("POST export: status %d, want 405", status)
	}
}

func TestHandlers_NotRunning(t *testing.T) {
	disc, err := NewComponent(json.RawMessage(`{"backend":"memory"}`), component.Dependencies{})
	if err != nil {
		t.Fatalf("NewComponent: %v", err)
	}
	srv := registerHandlers(t, disc.(*Component))

	status, _ := do(t, http.MethodGet, srv.URL+"/semtypes/semantic_types", "")
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
}

func TestSplitRows(t *testing.T) {
	tests := []struct {
		body string
		want []string
	}{
		{body: "", want: []string{}},
		{body: "\n", want: []string{}},
		{body: "a", want: []string{"a"}},
		{body: "a\nb\n", want: []string{"a", "b"}},
		{body: "a\r\n\nb", want: []string{"a", "", "b"}},
		{body: "a\n\n", want: []string{"a", ""}},
	}
	for _, tt := range tests {
		got := splitRows(tt.body)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitRows(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
