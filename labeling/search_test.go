package labeling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtypes/catalog"
)

func TestBleveIndexes_OnDisk(t *testing.T) {
	dir := t.TempDir()
	idx, err := NewBleveIndexes(dir)
	require.NoError(t, err)

	require.NoError(t, idx.Index("people", "r1", &FeatureRecord{ID: "r1", Name: "first_name", Text: "ada lovelace"}))
	require.NoError(t, idx.Index("people", "r2", &FeatureRecord{ID: "r2", Name: "city", Text: "london"}))
	require.NoError(t, idx.Close())

	// Reopened from disk.
	idx, err = NewBleveIndexes(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	exists, err := idx.Exists("people")
	require.NoError(t, err)
	assert.True(t, exists)

	hits, err := idx.Search("people", "lovelace", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, hits)

	require.NoError(t, idx.Delete("people"))
	exists, err = idx.Exists("people")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = idx.Search("people", "ada", 10)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestBleveIndexes_InvalidName(t *testing.T) {
	idx, err := NewBleveIndexes("")
	require.NoError(t, err)

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		_, err := idx.Exists(name)
		assert.ErrorIs(t, err, catalog.ErrValidation, "name %q", name)
	}
}
