package export

import "testing"

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTurtle, false},
		{"turtle", FormatTurtle, false},
		{"TTL", FormatTurtle, false},
		{".nt", FormatNTriples, false},
		{"N-Triples", FormatNTriples, false},
		{"json-ld", FormatJSONLD, false},
		{".jsonld", FormatJSONLD, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGetFormatInfo(t *testing.T) {
	info, ok := GetFormatInfo(FormatTurtle)
	if !ok {
		t.Fatal("turtle format not registered")
	}
	if info.MIMEType != "text/turtle" || info.Extension != ".ttl" {
		t.Errorf("unexpected turtle info: %+v", info)
	}
	if _, ok := GetFormatInfo(Format("unknown")); ok {
		t.Error("unknown format should not be registered")
	}
}

func TestResource(t *testing.T) {
	tests := []struct {
		in   string
		want Term
	}{
		{"http://x.org/name", IRI("http://x.org/name")},
		{"urn:isbn:123", IRI("urn:isbn:123")},
		{"name", String("name")},
		{"has name>", String("has name>")},
		{"/relative/path", String("/relative/path")},
		{"", String("")},
	}
	for _, tt := range tests {
		if got := Resource(tt.in); got != tt.want {
			t.Errorf("Resource(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestEscapeIRI(t *testing.T) {
	tests := map[string]string{
		"http://x.org/a":       "http://x.org/a",
		"http://x.org/a b":     "http://x.org/a%20b",
		"http://x.org/<p>":     "http://x.org/%3Cp%3E",
		`http://x.org/"q"|^\`:  "http://x.org/%22q%22%7C%5E%5C",
		"http://x.org/é":       "http://x.org/é",
		"http://x.org/\x01tab": "http://x.org/%01tab",
	}
	for in, want := range tests {
		if got := escapeIRI(in); got != want {
			t.Errorf("escapeIRI(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEscapeLiteral(t *testing.T) {
	got := escapeLiteral("a\"b\\c\nd\te\x01")
	want := `a\"b\\c\nd\te\u0001`
	if got != want {
		t.Errorf("escapeLiteral = %q, want %q", got, want)
	}
}

func TestTurtleIRI_Compaction(t *testing.T) {
	enc := newTurtleEncoder(map[string]string{"st": Namespace, "id": EntityNamespace}).(*turtleEncoder)
	tests := map[string]string{
		ClassColumn:                 "st:Column",
		TypeIRI("ABC-DEF"):          "<" + TypeIRI("ABC-DEF") + ">",
		"http://elsewhere.org/x":    "<http://elsewhere.org/x>",
		Namespace + "has space":     "<" + Namespace + "has%20space>",
		Namespace + "1starts-digit": "<" + Namespace + "1starts-digit>",
	}
	for in, want := range tests {
		if got := enc.iri(in); got != want {
			t.Errorf("iri(%q) = %q, want %q", in, got, want)
		}
	}
}
