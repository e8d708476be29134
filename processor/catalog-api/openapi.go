package catalogapi

import (
	"reflect"

	"github.com/c360studio/semstreams/service"

	"github.com/c360studio/semtypes/catalog"
	"github.com/c360studio/semtypes/labeling"
)

func init() {
	service.RegisterOpenAPISpec(ComponentName, catalogAPIOpenAPISpec())
}

// OpenAPISpec implements the OpenAPIProvider interface.
func (c *Component) OpenAPISpec() *service.OpenAPISpec {
	return catalogAPIOpenAPISpec()
}

func pathParam(name, description string) service.ParameterSpec {
	return service.ParameterSpec{
		Name:        name,
		In:          "path",
		Required:    true,
		Description: description,
		Schema:      service.Schema{Type: "string"},
	}
}

func queryParam(name, description string) service.ParameterSpec {
	return service.ParameterSpec{
		Name:        name,
		In:          "query",
		Description: description,
		Schema:      service.Schema{Type: "string"},
	}
}

func jsonResponse(description, schema string) service.ResponseSpec {
	return service.ResponseSpec{
		Description: description,
		ContentType: "application/json",
		SchemaRef:   "#/components/schemas/" + schema,
	}
}

func jsonArrayResponse(description, schema string) service.ResponseSpec {
	r := jsonResponse(description, schema)
	r.IsArray = true
	return r
}

func bodySpec(contentType, description, schema string) *service.RequestBodySpec {
	b := &service.RequestBodySpec{Description: description, ContentType: contentType, Required: true}
	if schema != "" {
		b.SchemaRef = "#/components/schemas/" + schema
	}
	return b
}

// catalogAPIOpenAPISpec returns the OpenAPI specification for catalog-api
// endpoints under the default prefix.
func catalogAPIOpenAPISpec() *service.OpenAPISpec {
	typeFilters := []service.ParameterSpec{
		queryParam(catalog.ParamClass, "Class URI"),
		queryParam(catalog.ParamProperty, "Property URI"),
		queryParam(catalog.ParamNamespaces, "Comma-separated class namespaces"),
		queryParam(catalog.ParamSourceNames, "Comma-separated column source names"),
		queryParam(catalog.ParamColumnNames, "Comma-separated column names"),
		queryParam(catalog.ParamColumnIDs, "Comma-separated column ids"),
		queryParam(catalog.ParamModels, "Comma-separated column model tags"),
	}
	listFlags := []service.ParameterSpec{
		queryParam(catalog.ParamReturnColumns, "Include columns (true/false)"),
		queryParam(catalog.ParamReturnColumnData, "Include columns with their rows (true/false)"),
	}
	modelFilters := []service.ParameterSpec{
		queryParam(catalog.ParamModelIDs, "Comma-separated model ids"),
		queryParam(catalog.ParamModelNames, "Comma-separated model names"),
		queryParam(catalog.ParamModelDesc, "Exact model description"),
	}
	columnFacets := typeFilters[3:]
	typeID := pathParam("typeID", "Semantic type id")
	newColumn := []service.ParameterSpec{
		typeID,
		queryParam(catalog.ParamColumnName, "Column name"),
		queryParam(catalog.ParamSourceName, "Source name"),
		queryParam(catalog.ParamModel, "Model tag"),
	}
	columnID := pathParam("columnID", "Column id")
	modelID := pathParam("modelID", "Model id")

	invalid := service.ResponseSpec{Description: "Invalid or unknown parameter"}
	notFound := service.ResponseSpec{Description: "Nothing matches"}
	conflict := service.ResponseSpec{Description: "Already exists"}

	return &service.OpenAPISpec{
		Tags: []service.TagSpec{
			{Name: "Types", Description: "Semantic types and their columns"},
			{Name: "Models", Description: "Bulk model ingestion and row data"},
			{Name: "Labeling", Description: "Relation statistics, column features, and search indexes"},
		},
		Paths: map[string]service.PathSpec{
			"/semtypes/semantic_types": {
				GET: &service.OperationSpec{
					Summary:    "List semantic types",
					Tags:       []string{"Types"},
					Parameters: append(append([]service.ParameterSpec{}, typeFilters...), listFlags...),
					Responses: map[string]service.ResponseSpec{
						"200": jsonArrayResponse("Matching types", "TypeListing"),
						"400": invalid,
						"404": notFound,
					},
				},
				POST: &service.OperationSpec{
					Summary: "Create a semantic type",
					Tags:    []string{"Types"},
					Parameters: []service.ParameterSpec{
						queryParam(catalog.ParamClass, "Class URI"),
						queryParam(catalog.ParamProperty, "Property URI"),
					},
					Responses: map[string]service.ResponseSpec{
						"201": jsonResponse("Type created", "IDResponse"),
						"400": invalid,
						"409": conflict,
					},
				},
				PUT: &service.OperationSpec{
					Summary:     "Force-create a semantic type",
					Description: "Deletes an existing type with the same id and its columns, then creates it",
					Tags:        []string{"Types"},
					Parameters: []service.ParameterSpec{
						queryParam(catalog.ParamClass, "Class URI"),
						queryParam(catalog.ParamProperty, "Property URI"),
					},
					Responses: map[string]service.ResponseSpec{
						"201": jsonResponse("Type created", "IDResponse"),
						"400": invalid,
					},
				},
				DELETE: &service.OperationSpec{
					Summary:     "Delete semantic types",
					Description: "Deletes the matching types and all of their columns",
					Tags:        []string{"Types"},
					Parameters:  append(append([]service.ParameterSpec{}, typeFilters...), queryParam(catalog.ParamDeleteAll, "Required to delete without filters")),
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Deletion counts", "DeleteResult"),
						"400": invalid,
						"404": notFound,
					},
				},
			},
			"/semtypes/semantic_types/{typeID}/columns": {
				GET: &service.OperationSpec{
					Summary:    "List columns of a type",
					Tags:       []string{"Types"},
					Parameters: append(append([]service.ParameterSpec{typeID}, columnFacets...), queryParam(catalog.ParamReturnColumnData, "Include rows (true/false)")),
					Responses: map[string]service.ResponseSpec{
						"200": jsonArrayResponse("Columns", "Column"),
						"404": notFound,
					},
				},
				POST: &service.OperationSpec{
					Summary:     "Create a column",
					Description: "Body is newline-delimited rows",
					Tags:        []string{"Types"},
					Parameters:  newColumn,
					Responses: map[string]service.ResponseSpec{
						"201": jsonResponse("Column created", "IDResponse"),
						"404": notFound,
						"409": conflict,
					},
				},
				PUT: &service.OperationSpec{
					Summary:    "Force-create a column",
					Tags:       []string{"Types"},
					Parameters: newColumn,
					Responses: map[string]service.ResponseSpec{
						"201": jsonResponse("Column created", "IDResponse"),
						"404": notFound,
					},
				},
				DELETE: &service.OperationSpec{
					Summary:    "Delete columns of a type",
					Tags:       []string{"Types"},
					Parameters: append([]service.ParameterSpec{typeID}, columnFacets...),
					Responses: map[string]service.ResponseSpec{
						"200": {Description: "Number of deleted columns", ContentType: "application/json"},
						"404": notFound,
					},
				},
			},
			"/semtypes/columns/{columnID}/data": {
				GET: &service.OperationSpec{
					Summary:    "Get a column with its rows",
					Tags:       []string{"Types"},
					Parameters: []service.ParameterSpec{columnID},
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Column", "ColumnDataResponse"),
						"404": notFound,
					},
				},
				POST: &service.OperationSpec{
					Summary:     "Append rows",
					Tags:        []string{"Types"},
					Parameters:  []service.ParameterSpec{columnID},
					RequestBody: bodySpec("text/plain", "One row per line", ""),
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Rows appended", "RowsResponse"),
						"400": invalid,
						"404": notFound,
					},
				},
				PUT: &service.OperationSpec{
					Summary:     "Replace rows",
					Tags:        []string{"Types"},
					Parameters:  []service.ParameterSpec{columnID},
					RequestBody: bodySpec("text/plain", "One row per line", ""),
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Rows replaced", "RowsResponse"),
						"400": invalid,
						"404": notFound,
					},
				},
				DELETE: &service.OperationSpec{
					Summary:    "Clear rows",
					Tags:       []string{"Types"},
					Parameters: []service.ParameterSpec{columnID},
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Rows cleared", "RowsResponse"),
						"404": notFound,
					},
				},
			},
			"/semtypes/models": {
				GET: &service.OperationSpec{
					Summary:    "List models",
					Tags:       []string{"Models"},
					Parameters: append(append([]service.ParameterSpec{}, modelFilters...), queryParam(catalog.ParamShowAll, "Include stored payloads (true/false)")),
					Responses: map[string]service.ResponseSpec{
						"200": jsonArrayResponse("Models", "Model"),
						"404": notFound,
					},
				},
				POST: &service.OperationSpec{
					Summary:     "Ingest a model",
					Description: "Creates the model's semantic types and bulk_add columns and stores the model",
					Tags:        []string{"Models"},
					RequestBody: bodySpec("application/json", "Model document with its semantic type assignments", ""),
					Responses: map[string]service.ResponseSpec{
						"201": jsonResponse("Ingestion counts", "IngestResult"),
						"400": invalid,
						"409": conflict,
					},
				},
				DELETE: &service.OperationSpec{
					Summary:    "Delete models",
					Tags:       []string{"Models"},
					Parameters: modelFilters,
					Responses: map[string]service.ResponseSpec{
						"200": {Description: "Number of deleted models", ContentType: "application/json"},
						"404": notFound,
					},
				},
			},
			"/semtypes/models/{modelID}/data": {
				GET: &service.OperationSpec{
					Summary:    "Get the columns of a model",
					Tags:       []string{"Models"},
					Parameters: []service.ParameterSpec{modelID},
					Responses: map[string]service.ResponseSpec{
						"200": jsonArrayResponse("Columns with rows", "Column"),
						"404": notFound,
					},
				},
				POST: &service.OperationSpec{
					Summary:     "Append records to a model's columns",
					Description: "Body is newline-delimited JSON records keyed by column name",
					Tags:        []string{"Models"},
					Parameters:  []service.ParameterSpec{modelID},
					RequestBody: bodySpec("application/x-ndjson", "One JSON record per line", ""),
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Append counts", "AppendResult"),
						"400": invalid,
						"404": notFound,
					},
				},
			},
			"/semtypes/relations": {
				GET: &service.OperationSpec{
					Summary: "Get relation statistics",
					Tags:    []string{"Labeling"},
					Parameters: []service.ParameterSpec{
						queryParam(paramType1, "First semantic type"),
						queryParam(paramType2, "Second semantic type"),
						queryParam(paramRelation, "Relation name"),
					},
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Counter", "RelationCounter"),
						"404": notFound,
					},
				},
				POST: &service.OperationSpec{
					Summary:     "Record a relation observation",
					Tags:        []string{"Labeling"},
					RequestBody: bodySpec("application/json", "Observation", "ObservationRequest"),
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Updated counter", "RelationCounter"),
						"400": invalid,
					},
				},
			},
			"/semtypes/features/{setName}": {
				POST: &service.OperationSpec{
					Summary:     "Index column features",
					Description: "Body is an array of column profiles; one record is written per metric",
					Tags:        []string{"Labeling"},
					Parameters:  []service.ParameterSpec{pathParam("setName", "Feature set name")},
					RequestBody: bodySpec("application/json", "Column profiles", ""),
					Responses: map[string]service.ResponseSpec{
						"201": {Description: "Number of records written", ContentType: "application/json"},
						"400": invalid,
					},
				},
			},
			"/semtypes/indexes/{name}": {
				GET: &service.OperationSpec{
					Summary:     "Check or search an index",
					Description: "Without q, reports whether the index exists",
					Tags:        []string{"Labeling"},
					Parameters: []service.ParameterSpec{
						pathParam("name", "Index name"),
						queryParam(paramQuery, "Search query"),
						queryParam(paramSize, "Maximum number of hits"),
					},
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Existence or search hits", "SearchResponse"),
						"400": invalid,
					},
				},
				DELETE: &service.OperationSpec{
					Summary:    "Delete an index",
					Tags:       []string{"Labeling"},
					Parameters: []service.ParameterSpec{pathParam("name", "Index name")},
					Responses: map[string]service.ResponseSpec{
						"200": jsonResponse("Index deleted", "IndexResponse"),
						"404": notFound,
					},
				},
			},
			"/semtypes/export": {
				GET: &service.OperationSpec{
					Summary:     "Export semantic types as RDF",
					Description: "Accepts the semantic type filters; format is turtle, ntriples or jsonld",
					Tags:        []string{"Types"},
					Parameters:  append(append(append([]service.ParameterSpec{}, typeFilters...), listFlags...), queryParam(paramFormat, "Output format")),
					Responses: map[string]service.ResponseSpec{
						"200": {Description: "RDF document", ContentType: "text/turtle"},
						"400": invalid,
					},
				},
			},
		},
		ResponseTypes: []reflect.Type{
			reflect.TypeOf(catalog.TypeListing{}),
			reflect.TypeOf(catalog.Column{}),
			reflect.TypeOf(catalog.Model{}),
			reflect.TypeOf(catalog.IngestResult{}),
			reflect.TypeOf(catalog.AppendResult{}),
			reflect.TypeOf(catalog.DeleteResult{}),
			reflect.TypeOf(labeling.RelationCounter{}),
			reflect.TypeOf(ColumnDataResponse{}),
			reflect.TypeOf(IDResponse{}),
			reflect.TypeOf(RowsResponse{}),
			reflect.TypeOf(IndexResponse{}),
			reflect.TypeOf(SearchResponse{}),
		},
		RequestBodyTypes: []reflect.Type{
			reflect.TypeOf(ObservationRequest{}),
		},
	}
}
