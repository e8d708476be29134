// Package main writes the OpenAPI 3.0 document of the catalog HTTP API from
// the specs its components register with semstreams.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/semstreams/service"
	"gopkg.in/yaml.v3"

	catalogapi "github.com/c360studio/semtypes/processor/catalog-api"
)

const schemaPrefix = "#/components/schemas/"

func main() {
	out := flag.String("o", "./specs/openapi.v3.yaml", "Output path for the OpenAPI document")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL written into the document")
	names := flag.String("components", catalogapi.ComponentName, "Comma-separated components to document")
	flag.Parse()

	specs, err := selectSpecs(service.GetAllOpenAPISpecs(), strings.Split(*names, ","))
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("generating OpenAPI document from %d component(s)", len(specs))

	doc, err := generate(specs, *serverURL)
	if err != nil {
		log.Fatalf("generate: %v", err)
	}
	if missing := unresolvedRefs(doc); len(missing) > 0 {
		log.Fatalf("unresolved schema references: %s", strings.Join(missing, ", "))
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		log.Fatalf("create output directory: %v", err)
	}
	if err := writeYAMLFile(*out, doc); err != nil {
		log.Fatalf("write: %v", err)
	}
	log.Printf("wrote %s (%d paths, %d schemas)", *out, len(doc.Paths), len(doc.Components.Schemas))
}

type document struct {
	OpenAPI    string               `yaml:"openapi"`
	Info       info                 `yaml:"info"`
	Servers    []server             `yaml:"servers"`
	Tags       []tag                `yaml:"tags,omitempty"`
	Paths      map[string]*pathItem `yaml:"paths"`
	Components components           `yaml:"components"`
}

type info struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
}

type server struct {
	URL string `yaml:"url"`
}

type tag struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

type components struct {
	Schemas map[string]*schema `yaml:"schemas"`
}

type pathItem struct {
	Get    *operation `yaml:"get,omitempty"`
	Post   *operation `yaml:"post,omitempty"`
	Put    *operation `yaml:"put,omitempty"`
	Patch  *operation `yaml:"patch,omitempty"`
	Delete *operation `yaml:"delete,omitempty"`
}

type operation struct {
	Summary     string               `yaml:"summary"`
	Description string               `yaml:"description,omitempty"`
	Tags        []string             `yaml:"tags,omitempty"`
	Parameters  []parameter          `yaml:"parameters,omitempty"`
	RequestBody *requestBody         `yaml:"requestBody,omitempty"`
	Responses   map[string]*response `yaml:"responses"`
}

type parameter struct {
	Name        string  `yaml:"name"`
	In          string  `yaml:"in"`
	Description string  `yaml:"description,omitempty"`
	Required    bool    `yaml:"required,omitempty"`
	Schema      *schema `yaml:"schema"`
}

type requestBody struct {
	Description string               `yaml:"description,omitempty"`
	Required    bool                 `yaml:"required,omitempty"`
	Content     map[string]mediaType `yaml:"content"`
}

type response struct {
	Description string               `yaml:"description"`
	Content     map[string]mediaType `yaml:"content,omitempty"`
}

type mediaType struct {
	Schema *schema `yaml:"schema"`
}

// schema is the subset of JSON Schema the catalog types need. An empty
// schema accepts any value.
type schema struct {
	Ref                  string             `yaml:"$ref,omitempty"`
	Type                 string             `yaml:"type,omitempty"`
	Format               string             `yaml:"format,omitempty"`
	Description          string             `yaml:"description,omitempty"`
	Items                *schema            `yaml:"items,omitempty"`
	Properties           map[string]*schema `yaml:"properties,omitempty"`
	Required             []string           `yaml:"required,omitempty"`
	AdditionalProperties *schema            `yaml:"additionalProperties,omitempty"`
}

func refTo(name string) *schema {
	if strings.HasPrefix(name, schemaPrefix) {
		return &schema{Ref: name}
	}
	return &schema{Ref: schemaPrefix + name}
}

// selectSpecs picks the named components from the registry. The registry
// also holds the semstreams runtime services, which are not part of this API.
func selectSpecs(all map[string]*service.OpenAPISpec, names []string) (map[string]*service.OpenAPISpec, error) {
	out := make(map[string]*service.OpenAPISpec, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		spec, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("no OpenAPI spec registered for %q", name)
		}
		out[name] = spec
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no components selected")
	}
	return out, nil
}

// generate merges the registered specs into one document. Components are
// visited by name so output is stable; two components claiming the same
// method on a path is an error.
func generate(specs map[string]*service.OpenAPISpec, serverURL string) (*document, error) {
	doc := &document{
		OpenAPI: "3.0.3",
		Info: info{
			Title:       "Semtypes API",
			Description: "Semantic type catalog: types, columns, bulk models, labeling statistics and RDF export",
			Version:     "1.0.0",
		},
		Servers:    []server{{URL: serverURL}},
		Paths:      make(map[string]*pathItem),
		Components: components{Schemas: make(map[string]*schema)},
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	sb := newSchemaBuilder()
	tags := make(map[string]string)
	for _, name := range names {
		spec := specs[name]
		for _, t := range spec.Tags {
			if _, ok := tags[t.Name]; !ok {
				tags[t.Name] = t.Description
			}
		}
		for path, ps := range spec.Paths {
			item, ok := doc.Paths[path]
			if !ok {
				item = &pathItem{}
				doc.Paths[path] = item
			}
			if err := item.merge(ps); err != nil {
				return nil, fmt.Errorf("%s: %s: %w", name, path, err)
			}
		}
		sb.register(spec.ResponseTypes...)
		sb.register(spec.RequestBodyTypes...)
	}

	schemas, err := sb.build()
	if err != nil {
		return nil, err
	}
	doc.Components.Schemas = schemas

	tagNames := make([]string, 0, len(tags))
	for n := range tags {
		tagNames = append(tagNames, n)
	}
	sort.Strings(tagNames)
	for _, n := range tagNames {
		doc.Tags = append(doc.Tags, tag{Name: n, Description: tags[n]})
	}
	return doc, nil
}

func (p *pathItem) merge(ps service.PathSpec) error {
	slots := []struct {
		method string
		dst    **operation
		src    *service.OperationSpec
	}{
		{"GET", &p.Get, ps.GET},
		{"POST", &p.Post, ps.POST},
		{"PUT", &p.Put, ps.PUT},
		{"PATCH", &p.Patch, ps.PATCH},
		{"DELETE", &p.Delete, ps.DELETE},
	}
	for _, s := range slots {
		if s.src == nil {
			continue
		}
		if *s.dst != nil {
			return fmt.Errorf("%s registered twice", s.method)
		}
		*s.dst = convertOperation(s.src)
	}
	return nil
}

func convertOperation(op *service.OperationSpec) *operation {
	out := &operation{
		Summary:     op.Summary,
		Description: op.Description,
		Tags:        op.Tags,
		Responses:   make(map[string]*response, len(op.Responses)),
	}
	for _, p := range op.Parameters {
		out.Parameters = append(out.Parameters, parameter{
			Name:        p.Name,
			In:          p.In,
			Description: p.Description,
			Required:    p.Required || p.In == "path",
			Schema:      &schema{Type: p.Schema.Type, Format: p.Schema.Format},
		})
	}
	if rb := op.RequestBody; rb != nil {
		contentType := rb.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		out.RequestBody = &requestBody{
			Description: rb.Description,
			Required:    rb.Required,
			Content:     map[string]mediaType{contentType: {Schema: bodySchema(contentType, rb.SchemaRef, false)}},
		}
	}
	for code, r := range op.Responses {
		resp := &response{Description: r.Description}
		if r.SchemaRef != "" || r.ContentType != "" {
			contentType := r.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			resp.Content = map[string]mediaType{contentType: {Schema: bodySchema(contentType, r.SchemaRef, r.IsArray)}}
		}
		out.Responses[code] = resp
	}
	return out
}

// bodySchema describes a payload: a reference when one is named, otherwise
// a JSON value or plain text.
func bodySchema(contentType, ref string, isArray bool) *schema {
	var s *schema
	switch {
	case ref != "":
		s = refTo(ref)
	case contentType == "application/json" || strings.HasSuffix(contentType, "+json"):
		s = &schema{}
	default:
		s = &schema{Type: "string"}
	}
	if isArray {
		return &schema{Type: "array", Items: s}
	}
	return s
}

var (
	timeType = reflect.TypeOf(time.Time{})
	rawType  = reflect.TypeOf(json.RawMessage{})
)

// schemaBuilder derives component schemas from registered Go types. Nested
// struct types that are themselves registered become references.
type schemaBuilder struct {
	order []reflect.Type
	names map[reflect.Type]string
}

func newSchemaBuilder() *schemaBuilder {
	return &schemaBuilder{names: make(map[reflect.Type]string)}
}

func (b *schemaBuilder) register(types ...reflect.Type) {
	for _, t := range types {
		for t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if _, ok := b.names[t]; ok {
			continue
		}
		b.names[t] = t.Name()
		b.order = append(b.order, t)
	}
}

func (b *schemaBuilder) build() (map[string]*schema, error) {
	out := make(map[string]*schema, len(b.order))
	for _, t := range b.order {
		name := b.names[t]
		if _, taken := out[name]; taken {
			return nil, fmt.Errorf("schema name %s used by two types", name)
		}
		if t.Kind() != reflect.Struct {
			return nil, fmt.Errorf("%s: registered type must be a struct", t)
		}
		s, err := b.structSchema(t)
		if err != nil {
			return nil, err
		}
		out[name] = s
	}
	return out, nil
}

// schemaFor describes t where it appears as a field or element.
func (b *schemaBuilder) schemaFor(t reflect.Type) (*schema, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		return &schema{Type: "string", Format: "date-time"}, nil
	case rawType:
		return &schema{}, nil
	}
	if name, ok := b.names[t]; ok {
		return refTo(name), nil
	}

	switch t.Kind() {
	case reflect.String:
		return &schema{Type: "string"}, nil
	case reflect.Bool:
		return &schema{Type: "boolean"}, nil
	case reflect.Int, reflect.Int32:
		return &schema{Type: "integer", Format: "int32"}, nil
	case reflect.Int64:
		return &schema{Type: "integer", Format: "int64"}, nil
	case reflect.Float64:
		return &schema{Type: "number", Format: "double"}, nil
	case reflect.Slice:
		items, err := b.schemaFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &schema{Type: "array", Items: items}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%s: map keys must be strings", t)
		}
		values, err := b.schemaFor(t.Elem())
		if err != nil {
			return nil, err
		}
		return &schema{Type: "object", AdditionalProperties: values}, nil
	case reflect.Struct:
		return b.structSchema(t)
	default:
		return nil, fmt.Errorf("%s: unsupported kind %s", t, t.Kind())
	}
}

// structSchema follows encoding/json field rules: untagged embedded structs
// are flattened and an outer field shadows an embedded one of the same name.
// Fields without omitempty are required.
func (b *schemaBuilder) structSchema(t reflect.Type) (*schema, error) {
	s := &schema{Type: "object", Properties: make(map[string]*schema)}
	required := make(map[string]bool)
	var order []string
	set := func(name string, fs *schema, req bool) {
		if _, seen := s.Properties[name]; !seen {
			order = append(order, name)
		}
		s.Properties[name] = fs
		required[name] = req
	}

	var embedded, direct []reflect.StructField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tagName, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		inner := f.Type
		if inner.Kind() == reflect.Pointer {
			inner = inner.Elem()
		}
		if f.Anonymous && tagName == "" && inner.Kind() == reflect.Struct {
			embedded = append(embedded, f)
			continue
		}
		if f.IsExported() && tagName != "-" {
			direct = append(direct, f)
		}
	}

	for _, f := range embedded {
		inner := f.Type
		if inner.Kind() == reflect.Pointer {
			inner = inner.Elem()
		}
		es, err := b.structSchema(inner)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		req := make(map[string]bool, len(es.Required))
		for _, r := range es.Required {
			req[r] = true
		}
		names := make([]string, 0, len(es.Properties))
		for n := range es.Properties {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			set(n, es.Properties[n], req[n])
		}
	}

	for _, f := range direct {
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" {
			name = f.Name
		}
		fs, err := b.schemaFor(f.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name(), f.Name, err)
		}
		if desc := f.Tag.Get("description"); desc != "" {
			fs.Description = desc
		}
		set(name, fs, !strings.Contains(opts, "omitempty") && f.Type.Kind() != reflect.Pointer)
	}

	for _, n := range order {
		if required[n] {
			s.Required = append(s.Required, n)
		}
	}
	return s, nil
}

// unresolvedRefs lists schema references that name no component.
func unresolvedRefs(doc *document) []string {
	var missing []string
	seen := make(map[string]bool)
	var visit func(s *schema)
	visit = func(s *schema) {
		if s == nil {
			return
		}
		if s.Ref != "" {
			name := strings.TrimPrefix(s.Ref, schemaPrefix)
			if _, ok := doc.Components.Schemas[name]; !ok && !seen[s.Ref] {
				seen[s.Ref] = true
				missing = append(missing, s.Ref)
			}
		}
		visit(s.Items)
		visit(s.AdditionalProperties)
		for _, p := range s.Properties {
			visit(p)
		}
	}

	for _, item := range doc.Paths {
		for _, op := range []*operation{item.Get, item.Post, item.Put, item.Patch, item.Delete} {
			if op == nil {
				continue
			}
			if op.RequestBody != nil {
				for _, mt := range op.RequestBody.Content {
					visit(mt.Schema)
				}
			}
			for _, r := range op.Responses {
				for _, mt := range r.Content {
					visit(mt.Schema)
				}
			}
		}
	}
	for _, s := range doc.Components.Schemas {
		visit(s)
	}
	sort.Strings(missing)
	return missing
}

func writeYAMLFile(filename string, doc *document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	header := "# Semtypes API, OpenAPI 3.0\n# Generated by cmd/openapi-generator from registered components. Do not edit.\n\n"
	if err := os.WriteFile(filename, append([]byte(header), data...), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}
