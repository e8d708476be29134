package export

import (
	"fmt"
	"strings"
)

// Format names an RDF serialization.
type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "ntriples"
	FormatJSONLD   Format = "jsonld"
)

// FormatInfo is the media type and file extension of a format.
type FormatInfo struct {
	Name      Format
	MIMEType  string
	Extension string
	aliases   []string
	newEnc    func(prefixes map[string]string) encoder
}

var formats = []FormatInfo{
	{
		Name:      FormatTurtle,
		MIMEType:  "text/turtle",
		Extension: ".ttl",
		aliases:   []string{"ttl"},
		newEnc:    newTurtleEncoder,
	},
	{
		Name:      FormatNTriples,
		MIMEType:  "application/n-triples",
		Extension: ".nt",
		aliases:   []string{"nt", "n-triples"},
		newEnc:    func(map[string]string) encoder { return &ntriplesEncoder{} },
	},
	{
		Name:      FormatJSONLD,
		MIMEType:  "application/ld+json",
		Extension: ".jsonld",
		aliases:   []string{"json-ld"},
		newEnc:    newJSONLDEncoder,
	},
}

// GetFormatInfo returns the registered details of format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	for _, f := range formats {
		if f.Name == format {
			return f, true
		}
	}
	return FormatInfo{}, false
}

// ParseFormat resolves a format name, alias or file extension, ignoring case.
// An empty name is Turtle.
func ParseFormat(name string) (Format, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "."))
	if key == "" {
		return FormatTurtle, nil
	}
	for _, f := range formats {
		if key == string(f.Name) || "."+key == f.Extension {
			return f.Name, nil
		}
		for _, a := range f.aliases {
			if key == a {
				return f.Name, nil
			}
		}
	}
	return "", fmt.Errorf("unsupported format %q", name)
}
