package export

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
)

const (
	xsdNamespace = "http://www.w3.org/2001/XMLSchema#"
	xsdInteger   = xsdNamespace + "integer"
)

// Term is the object of a triple: an IRI or a Literal.
type Term interface {
	isTerm()
}

// IRI refers to a resource. Writers percent-encode the characters an IRI
// cannot contain.
type IRI string

// Literal is a lexical value with an optional datatype IRI. An empty
// Datatype is a plain string.
type Literal struct {
	Lexical  string
	Datatype string
}

func (IRI) isTerm()     {}
func (Literal) isTerm() {}

// String returns a plain string literal.
func String(s string) Literal { return Literal{Lexical: s} }

// Integer returns an xsd:integer literal.
func Integer(n int) Literal {
	return Literal{Lexical: strconv.Itoa(n), Datatype: xsdInteger}
}

// Resource returns s as an IRI when it is an absolute URI with a scheme,
// and as a string literal otherwise. Catalog properties need not be URIs.
func Resource(s string) Term {
	if s != "" && govalidator.IsRequestURL(s) {
		return IRI(s)
	}
	return String(s)
}

// escapeIRI percent-encodes control characters, space and <>"{}|^`\ so the
// result can sit between angle brackets.
func escapeIRI(s string) string {
	if !strings.ContainsFunc(s, illegalInIRI) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if !illegalInIRI(r) {
			b.WriteRune(r)
			continue
		}
		var buf [utf8.UTFMax]byte
		n := utf8.EncodeRune(buf[:], r)
		for _, c := range buf[:n] {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func illegalInIRI(r rune) bool {
	if r <= 0x20 || r == 0x7f {
		return true
	}
	return strings.ContainsRune("<>\"{}|^`\\", r)
}

// escapeLiteral escapes a string for a double-quoted Turtle or N-Triples
// literal.
func escapeLiteral(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
