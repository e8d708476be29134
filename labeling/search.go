package labeling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/c360studio/semtypes/catalog"
)

// BleveIndexes keeps one bleve index per set name. With a directory each
// index lives at dir/<name>.bleve; without one, indexes are memory only and
// vanish on Close.
type BleveIndexes struct {
	dir string

	mu   sync.Mutex
	open map[string]bleve.Index
}

// NewBleveIndexes creates the index set rooted at dir ("" for memory only).
func NewBleveIndexes(dir string) (*BleveIndexes, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
	}
	return &BleveIndexes{dir: dir, open: make(map[string]bleve.Index)}, nil
}

func validIndexName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid index name %q", catalog.ErrValidation, name)
	}
	return nil
}

func (b *BleveIndexes) path(name string) string {
	return filepath.Join(b.dir, name+".bleve")
}

// Exists reports whether the index has been created.
func (b *BleveIndexes) Exists(name string) (bool, error) {
	if err := validIndexName(name); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.open[name]; ok {
		return true, nil
	}
	if b.dir == "" {
		return false, nil
	}
	_, err := os.Stat(b.path(name))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("stat index %s: %w", name, err)
	}
}

// Index adds doc to the named index under id, creating the index on first
// use.
func (b *BleveIndexes) Index(name, id string, doc any) error {
	if err := validIndexName(name); err != nil {
		return err
	}
	b.mu.Lock()
	idx, err := b.openLocked(name)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	if err := idx.Index(id, doc); err != nil {
		return fmt.Errorf("index document %s into %s: %w", id, name, err)
	}
	return nil
}

func (b *BleveIndexes) openLocked(name string) (bleve.Index, error) {
	if idx, ok := b.open[name]; ok {
		return idx, nil
	}

	var idx bleve.Index
	var err error
	switch {
	case b.dir == "":
		idx, err = bleve.NewMemOnly(bleve.NewIndexMapping())
	default:
		idx, err = bleve.Open(b.path(name))
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(b.path(name), bleve.NewIndexMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", name, err)
	}
	b.open[name] = idx
	return idx, nil
}

// Search runs a query-string query against the named index and returns the
// matching document ids, best first.
func (b *BleveIndexes) Search(name, queryString string, size int) ([]string, error) {
	exists, err := b.Exists(name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: index %s", catalog.ErrNotFound, name)
	}
	b.mu.Lock()
	idx, err := b.openLocked(name)
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(queryString), size, 0, false)
	res, err := idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", name, err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Delete closes and removes the named index.
func (b *BleveIndexes) Delete(name string) error {
	if err := validIndexName(name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if idx, ok := b.open[name]; ok {
		delete(b.open, name)
		if err := idx.Close(); err != nil {
			return fmt.Errorf("close index %s: %w", name, err)
		}
	}
	if b.dir == "" {
		return nil
	}
	if err := os.RemoveAll(b.path(name)); err != nil {
		return fmt.Errorf("remove index %s: %w", name, err)
	}
	return nil
}

// Close closes every open index.
func (b *BleveIndexes) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for name, idx := range b.open {
		if err := idx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index %s: %w", name, err))
		}
		delete(b.open, name)
	}
	return errors.Join(errs...)
}
