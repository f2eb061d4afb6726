package catalog

import (
	"golang.org/x/exp/slices"

	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/types"
)

// Index is a composite secondary (or primary-key) index: an ordered map
// from a composite-key string (types.BuildCompositeKey) to the row-ids that
// share it. Unlike the teacher's single-value B+Tree, a key here can carry
// several row-ids, so non-unique indexes and range/prefix scans are both
// backed by one structure: a slices-maintained sorted key list plus a
// key->bucket map.
type Index struct {
	Meta types.IndexMetadata

	keys    []string            // sorted, unique composite keys
	buckets map[string][]uint64 // composite key -> row-ids, insertion order
}

func newIndex(meta types.IndexMetadata) *Index {
	return &Index{Meta: meta, buckets: make(map[string][]uint64)}
}

func (idx *Index) Clear() {
	idx.keys = idx.keys[:0]
	idx.buckets = make(map[string][]uint64)
}

func (idx *Index) keyFor(row types.Row) string {
	values := make([]types.Value, 0, len(idx.Meta.Columns))
	for _, colIdx := range idx.columnIndices() {
		if colIdx < len(row.Values) {
			values = append(values, row.Values[colIdx])
		} else {
			values = append(values, types.NullValue())
		}
	}
	return types.BuildCompositeKey(values)
}

// columnIndices is resolved lazily by the catalog when the index is
// created (see CreateIndex) and cached on Meta via ColumnPositions.
func (idx *Index) columnIndices() []int { return idx.Meta.ColumnPositions }

func (idx *Index) insert(row types.Row) {
	key := idx.keyFor(row)
	bucket, ok := idx.buckets[key]
	if !ok {
		pos, _ := slices.BinarySearch(idx.keys, key)
		idx.keys = slices.Insert(idx.keys, pos, key)
	}
	idx.buckets[key] = append(bucket, row.ID)
}

func (idx *Index) remove(row types.Row) {
	key := idx.keyFor(row)
	bucket, ok := idx.buckets[key]
	if !ok {
		return
	}
	n := bucket[:0]
	for _, id := range bucket {
		if id != row.ID {
			n = append(n, id)
		}
	}
	if len(n) == 0 {
		delete(idx.buckets, key)
		if pos, found := slices.BinarySearch(idx.keys, key); found {
			idx.keys = slices.Delete(idx.keys, pos, pos+1)
		}
	} else {
		idx.buckets[key] = n
	}
}

// wouldViolate reports whether inserting/updating row would collide with an
// existing different row under this unique index.
func (idx *Index) wouldViolate(row types.Row, excludeRowID uint64, hasExclude bool) (bool, string) {
	key := idx.keyFor(row)
	bucket, ok := idx.buckets[key]
	if !ok {
		return false, key
	}
	for _, id := range bucket {
		if hasExclude && id == excludeRowID {
			continue
		}
		return true, key
	}
	return false, key
}

func (idx *Index) displayValues(key string) []string {
	return []string{key}
}

// RowsForExactKey returns the row-ids stored under one exact composite key.
func (idx *Index) RowsForExactKey(values []types.Value) []uint64 {
	key := types.BuildCompositeKey(values)
	return append([]uint64(nil), idx.buckets[key]...)
}

// RowsForPrefix returns every row-id whose composite key equals the
// encoding of the given prefix values or continues it with the NUL
// separator, in key order — used for partial composite-index lookups
// (e.g. WHERE a = ? AND b = ? on a 3-column index).
func (idx *Index) RowsForPrefix(prefixValues []types.Value) []uint64 {
	prefix := types.BuildCompositeKey(prefixValues)
	start, _ := slices.BinarySearch(idx.keys, prefix)
	var out []uint64
	for i := start; i < len(idx.keys); i++ {
		k := idx.keys[i]
		if k != prefix && (len(k) <= len(prefix) || k[:len(prefix)] != prefix || k[len(prefix)] != 0) {
			break
		}
		out = append(out, idx.buckets[k]...)
	}
	return out
}

// CreateIndex builds a new secondary index over the given columns from the
// table's current rows. Returns TwoPrimaryKeys-style errors are not
// applicable here; an existing index of the same name is simply replaced.
func (c *Catalog) CreateIndex(tableName string, meta types.IndexMetadata) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()

	meta.ColumnPositions = make([]int, len(meta.Columns))
	for i, col := range meta.Columns {
		pos, ok := t.Schema.FindColumn(col)
		if !ok {
			t.mu.Unlock()
			return errors.UnknownColumn(col, errors.ContextGeneral)
		}
		meta.ColumnPositions[i] = pos
	}

	idx := newIndex(meta)
	for _, row := range t.Rows {
		idx.insert(row)
	}
	t.Indexes[meta.Name] = idx
	t.mu.Unlock()
	return c.SaveCatalog()
}

func (c *Catalog) DropIndex(tableName, indexName string) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.Indexes[indexName]; !ok {
		return errors.IndexNotFound(indexName)
	}
	delete(t.Indexes, indexName)
	return nil
}

// RebuildAllIndexes recomputes every index's buckets from the table's
// current rows, used after a bulk load (recovery, Sandstone snapshot
// restore) where indexes were not maintained incrementally.
func (c *Catalog) RebuildAllIndexes(tableName string) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, idx := range t.Indexes {
		idx.Clear()
		for _, row := range t.Rows {
			idx.insert(row)
		}
	}
	return nil
}

func (c *Catalog) GetIndex(tableName, indexName string) (*Index, error) {
	t, err := c.get(tableName)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.Indexes[indexName]
	if !ok {
		return nil, errors.IndexNotFound(indexName)
	}
	return idx, nil
}

func (c *Catalog) ListIndexes(tableName string) ([]types.IndexMetadata, error) {
	t, err := c.get(tableName)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.IndexMetadata, 0, len(t.Indexes))
	for _, idx := range t.Indexes {
		out = append(out, idx.Meta)
	}
	return out, nil
}

// FindIndexForColumns returns the best index usable as a prefix for
// queryColumns (longest-matching-prefix wins), or ok=false if none exists.
func (c *Catalog) FindIndexForColumns(tableName string, queryColumns []string) (*Index, int, bool) {
	t, err := c.get(tableName)
	if err != nil {
		return nil, 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *Index
	bestMatched := 0
	for _, idx := range t.Indexes {
		if matched, ok := idx.Meta.MatchesColumns(queryColumns); ok && matched > bestMatched {
			best, bestMatched = idx, matched
		}
	}
	return best, bestMatched, best != nil
}

func (c *Catalog) GetPrimaryKeyIndex(tableName string) (*Index, bool) {
	t, err := c.get(tableName)
	if err != nil {
		return nil, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, idx := range t.Indexes {
		if idx.Meta.IsPrimary {
			return idx, true
		}
	}
	return nil, false
}
