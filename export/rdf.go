// Package export serializes semantic types and their columns as RDF.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/c360studio/semtypes/catalog"
)

// Catalog vocabulary.
const (
	Namespace       = "https://semtypes.dev/ontology#"
	EntityNamespace = "https://semtypes.dev/id/"

	ClassSemanticType = Namespace + "SemanticType"
	ClassColumn       = Namespace + "Column"

	PredicateClass        = Namespace + "class"
	PredicateProperty     = Namespace + "property"
	PredicateNamespace    = Namespace + "namespace"
	PredicateSemanticType = Namespace + "semanticType"
	PredicateColumnName   = Namespace + "columnName"
	PredicateSourceName   = Namespace + "sourceName"
	PredicateModel        = Namespace + "model"
	PredicateRowCount     = Namespace + "rowCount"
)

const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// Triple is a predicate-object pair of an entity.
type Triple struct {
	Predicate string
	Object    Term
}

// Entity is a subject with its rdf:type values and triples.
type Entity struct {
	IRI     string
	Types   []string
	Triples []Triple
}

// Exporter collects catalog entities and serializes them.
type Exporter struct {
	entities []Entity
	prefixes map[string]string
}

func NewExporter() *Exporter {
	return &Exporter{prefixes: map[string]string{
		"rdf": "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
		"xsd": xsdNamespace,
		"st":  Namespace,
		"id":  EntityNamespace,
	}}
}

// TypeIRI returns the IRI of a semantic type.
func TypeIRI(typeID string) string {
	return EntityNamespace + "type/" + typeID
}

// ColumnIRI returns the IRI of a column.
func ColumnIRI(columnID string) string {
	return EntityNamespace + "column/" + columnID
}

func (e *Exporter) Len() int { return len(e.entities) }

// AddType adds a semantic type. The class is always a URI; the property is
// written as an IRI only when it is one.
func (e *Exporter) AddType(t *catalog.SemanticType) {
	e.entities = append(e.entities, Entity{
		IRI:   TypeIRI(t.ID),
		Types: []string{ClassSemanticType},
		Triples: []Triple{
			{PredicateClass, IRI(t.Class)},
			{PredicateProperty, Resource(t.Property)},
			{PredicateNamespace, String(t.Namespace)},
		},
	})
}

// AddColumn adds a column linked to its semantic type. withRowCount adds the
// number of stored rows and needs a column read with its data.
func (e *Exporter) AddColumn(c *catalog.Column, withRowCount bool) {
	triples := []Triple{
		{PredicateSemanticType, IRI(TypeIRI(c.TypeID))},
		{PredicateColumnName, String(c.ColumnName)},
		{PredicateSourceName, String(c.SourceName)},
		{PredicateModel, String(c.Model)},
	}
	if withRowCount {
		triples = append(triples, Triple{PredicateRowCount, Integer(len(c.Data))})
	}
	e.entities = append(e.entities, Entity{
		IRI:     ColumnIRI(c.ID),
		Types:   []string{ClassColumn},
		Triples: triples,
	})
}

// AddListings adds every listed type followed by its columns.
func (e *Exporter) AddListings(listings []catalog.TypeListing, withRowCounts bool) {
	for _, l := range listings {
		e.AddType(l.SemanticType)
		for _, c := range l.Columns {
			e.AddColumn(c, withRowCounts)
		}
	}
}

// Write serializes the collected entities to w.
func (e *Exporter) Write(w io.Writer, format Format) error {
	info, ok := GetFormatInfo(format)
	if !ok {
		return fmt.Errorf("unsupported format %q", format)
	}
	return info.newEnc(e.prefixes).encode(w, e.entities)
}

// Export returns the serialized entities as a string.
func (e *Exporter) Export(format Format) (string, error) {
	var b strings.Builder
	if err := e.Write(&b, format); err != nil {
		return "", err
	}
	return b.String(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
