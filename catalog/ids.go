package catalog

import (
	"encoding/base32"
	"fmt"
	"strings"
)

// Divider separates encoded segments in type and column ids. It is outside
// the segment alphabet, so splitting on it is always positional. Changing
// either the divider or the encoding invalidates every stored id.
const Divider = "-"

// segmentEncoding is unpadded RFC 4648 base32: A-Z and 2-7 only, which also
// keeps every id a valid KV key.
var segmentEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeSegment encodes one human-entered id component.
func EncodeSegment(s string) string {
	return segmentEncoding.EncodeToString([]byte(s))
}

// DecodeSegment reverses EncodeSegment.
func DecodeSegment(s string) (string, error) {
	b, err := segmentEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w: undecodable id segment %q", ErrValidation, s)
	}
	return string(b), nil
}

// TypeID derives the id of the semantic type (class, property).
func TypeID(class, property string) string {
	return EncodeSegment(class) + Divider + EncodeSegment(property)
}

// ColumnID derives the id of a column from its owning type id and names.
func ColumnID(typeID, columnName, sourceName, model string) string {
	return strings.Join([]string{
		typeID,
		EncodeSegment(columnName),
		EncodeSegment(sourceName),
		EncodeSegment(model),
	}, Divider)
}

// OwningTypeID returns the type id embedded in a column id: its first two
// segments.
func OwningTypeID(columnID string) (string, error) {
	parts := strings.Split(columnID, Divider)
	if len(parts) != 5 {
		return "", fmt.Errorf("%w: column id must have 5 segments, got %d", ErrValidation, len(parts))
	}
	return parts[0] + Divider + parts[1], nil
}

// DecodeTypeID returns the class and property a type id was derived from.
func DecodeTypeID(typeID string) (class, property string, err error) {
	parts := strings.Split(typeID, Divider)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: type id must have 2 segments, got %d", ErrValidation, len(parts))
	}
	if class, err = DecodeSegment(parts[0]); err != nil {
		return "", "", err
	}
	if property, err = DecodeSegment(parts[1]); err != nil {
		return "", "", err
	}
	return class, property, nil
}

// ColumnKey is the decoded form of a column id.
type ColumnKey struct {
	TypeID     string
	ColumnName string
	SourceName string
	Model      string
}

// DecodeColumnID splits a column id into its components.
func DecodeColumnID(columnID string) (ColumnKey, error) {
	typeID, err := OwningTypeID(columnID)
	if err != nil {
		return ColumnKey{}, err
	}
	if _, _, err := DecodeTypeID(typeID); err != nil {
		return ColumnKey{}, err
	}

	parts := strings.Split(columnID, Divider)[2:]
	decoded := make([]string, len(parts))
	for i, p := range parts {
		if decoded[i], err = DecodeSegment(p); err != nil {
			return ColumnKey{}, err
		}
	}
	return ColumnKey{
		TypeID:     typeID,
		ColumnName: decoded[0],
		SourceName: decoded[1],
		Model:      decoded[2],
	}, nil
}

// RelationKey derives the storage key of a relation counter.
func RelationKey(type1, type2, relation string) string {
	return strings.Join([]string{
		EncodeSegment(type1),
		EncodeSegment(type2),
		EncodeSegment(relation),
	}, Divider)
}
