package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeID(t *testing.T) {
	id := TypeID("http://x.org/Person", "name")
	assert.Equal(t, EncodeSegment("http://x.org/Person")+"-"+EncodeSegment("name"), id)
	assert.Equal(t, id, TypeID("http://x.org/Person", "name"))
	assert.NotEqual(t, id, TypeID("http://x.org/Person", "age"))

	class, property, err := DecodeTypeID(id)
	require.NoError(t, err)
	assert.Equal(t, "http://x.org/Person", class)
	assert.Equal(t, "name", property)
}

func TestEncodeSegment_NeverContainsDivider(t *testing.T) {
	for _, s := range []string{"", "-", "a-b", "--", "http://x-y.org/a-b", "日本語-テキスト"} {
		enc := EncodeSegment(s)
		assert.NotContains(t, enc, Divider, "segment %q", s)
		dec, err := DecodeSegment(enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}
}

func TestOwningTypeID_RoundTrip(t *testing.T) {
	typeID := TypeID("http://x.org/Person", "name-with-dashes")
	tests := []struct {
		column, source, model string
	}{
		{"age", "people.csv", "default"},
		{"a-b-c", "src-1", "bulk_add"},
		{"", "", ""},
		{"first name", "db/table", "m-1"},
	}
	for _, tt := range tests {
		t.Run(tt.column+"|"+tt.source+"|"+tt.model, func(t *testing.T) {
			colID := ColumnID(typeID, tt.column, tt.source, tt.model)
			assert.Equal(t, 4, strings.Count(colID, Divider))

			owner, err := OwningTypeID(colID)
			require.NoError(t, err)
			assert.Equal(t, typeID, owner)

			key, err := DecodeColumnID(colID)
			require.NoError(t, err)
			assert.Equal(t, ColumnKey{TypeID: typeID, ColumnName: tt.column, SourceName: tt.source, Model: tt.model}, key)
		})
	}
}

func TestOwningTypeID_Malformed(t *testing.T) {
	for _, id := range []string{"", "A-B", "A-B-C-D", "A-B-C-D-E-F"} {
		_, err := OwningTypeID(id)
		assert.ErrorIs(t, err, ErrValidation, "id %q", id)
	}

	_, err := DecodeColumnID("A-B-C-D-1")
	assert.ErrorIs(t, err, ErrValidation)
	_, _, err = DecodeTypeID("onlyone")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRelationKey(t *testing.T) {
	k := RelationKey("a-1", "b", "r")
	assert.Equal(t, 2, strings.Count(k, Divider))
	assert.NotEqual(t, k, RelationKey("a", "1-b", "r"))
}
