package export

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// encoder writes entities in one serialization.
type encoder interface {
	encode(w io.Writer, entities []Entity) error
}

// turtleEncoder groups each subject's triples and abbreviates IRIs under a
// declared prefix when the local part is a plain name.
type turtleEncoder struct {
	prefixes map[string]string
	order    []string
}

// plainLocal is the subset of Turtle PN_LOCAL written unescaped.
var plainLocal = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func newTurtleEncoder(prefixes map[string]string) encoder {
	return &turtleEncoder{prefixes: prefixes, order: sortedKeys(prefixes)}
}

func (t *turtleEncoder) iri(s string) string {
	for _, p := range t.order {
		ns := t.prefixes[p]
		if local, ok := strings.CutPrefix(s, ns); ok && plainLocal.MatchString(local) {
			return p + ":" + local
		}
	}
	return "<" + escapeIRI(s) + ">"
}

func (t *turtleEncoder) term(o Term) string {
	switch v := o.(type) {
	case IRI:
		return t.iri(string(v))
	case Literal:
		lit := `"` + escapeLiteral(v.Lexical) + `"`
		if v.Datatype != "" {
			lit += "^^" + t.iri(v.Datatype)
		}
		return lit
	default:
		panic(fmt.Sprintf("export: unknown term %T", o))
	}
}

func (t *turtleEncoder) encode(w io.Writer, entities []Entity) error {
	var b strings.Builder
	for _, p := range t.order {
		fmt.Fprintf(&b, "@prefix %s: <%s> .\n", p, escapeIRI(t.prefixes[p]))
	}
	for _, e := range entities {
		b.WriteString("\n")
		b.WriteString(t.iri(e.IRI))
		var objects []string
		for _, typ := range e.Types {
			objects = append(objects, "a "+t.iri(typ))
		}
		for _, tr := range e.Triples {
			objects = append(objects, t.iri(tr.Predicate)+" "+t.term(tr.Object))
		}
		b.WriteString("\n    ")
		b.WriteString(strings.Join(objects, " ;\n    "))
		b.WriteString(" .\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type ntriplesEncoder struct{}

func ntriplesTerm(o Term) string {
	switch v := o.(type) {
	case IRI:
		return "<" + escapeIRI(string(v)) + ">"
	case Literal:
		lit := `"` + escapeLiteral(v.Lexical) + `"`
		if v.Datatype != "" {
			lit += "^^<" + escapeIRI(v.Datatype) + ">"
		}
		return lit
	default:
		panic(fmt.Sprintf("export: unknown term %T", o))
	}
}

func (ntriplesEncoder) encode(w io.Writer, entities []Entity) error {
	var b strings.Builder
	line := func(s, p string, o Term) {
		fmt.Fprintf(&b, "<%s> <%s> %s .\n", escapeIRI(s), escapeIRI(p), ntriplesTerm(o))
	}
	for _, e := range entities {
		for _, typ := range e.Types {
			line(e.IRI, rdfType, IRI(typ))
		}
		for _, tr := range e.Triples {
			line(e.IRI, tr.Predicate, tr.Object)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// JSONLDDocument is the shape of an exported JSON-LD document: a prefix
// context and a flat graph of nodes keyed by full predicate IRIs.
type JSONLDDocument struct {
	Context map[string]string `json:"@context"`
	Graph   []map[string]any  `json:"@graph"`
}

type jsonldEncoder struct {
	prefixes map[string]string
}

func newJSONLDEncoder(prefixes map[string]string) encoder {
	return &jsonldEncoder{prefixes: prefixes}
}

func jsonldValue(o Term) any {
	switch v := o.(type) {
	case IRI:
		return map[string]string{"@id": string(v)}
	case Literal:
		switch v.Datatype {
		case "":
			return v.Lexical
		case xsdInteger:
			// JSON numbers are read back as xsd:integer.
			return json.Number(v.Lexical)
		default:
			return map[string]string{"@value": v.Lexical, "@type": v.Datatype}
		}
	default:
		panic(fmt.Sprintf("export: unknown term %T", o))
	}
}

func (j *jsonldEncoder) encode(w io.Writer, entities []Entity) error {
	doc := JSONLDDocument{Context: j.prefixes, Graph: make([]map[string]any, 0, len(entities))}
	for _, e := range entities {
		node := map[string]any{"@id": e.IRI}
		if len(e.Types) > 0 {
			node["@type"] = e.Types
		}
		for _, tr := range e.Triples {
			node[tr.Predicate] = jsonldValue(tr.Object)
		}
		doc.Graph = append(doc.Graph, node)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json-ld: %w", err)
	}
	return nil
}
