package catalog

import (
	"sync"

	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/types"
)

// TableData holds one table's schema, row heap, and secondary indexes.
type TableData struct {
	mu sync.RWMutex

	Schema  types.TableSchema
	Rows    map[uint64]types.Row
	Indexes map[string]*Index // index name -> Index
}

func newTableData(schema types.TableSchema) *TableData {
	return &TableData{
		Schema:  schema,
		Rows:    make(map[uint64]types.Row),
		Indexes: make(map[string]*Index),
	}
}

// InsertRow adds a new row, maintaining every secondary index. Returns
// DuplicateEntry if a unique index (including a primary-key index, when
// one has been created) already holds the same composite key for a
// different row.
func (c *Catalog) InsertRow(tableName string, row types.Row) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.Rows[row.ID]; exists {
		return errors.InternalError("row %d already exists in table %q", row.ID, tableName)
	}
	for _, idx := range t.Indexes {
		if idx.Meta.Unique {
			if violates, key := idx.wouldViolate(row, 0, false); violates {
				return errors.DuplicateEntry(idx.displayValues(key))
			}
		}
	}
	t.Rows[row.ID] = row
	for _, idx := range t.Indexes {
		idx.insert(row)
	}
	return nil
}

// RestoreRow re-inserts a row during recovery/rollback without re-checking
// unique constraints (the row previously passed them, or is being restored
// to the exact state it had before a delete).
func (c *Catalog) RestoreRow(tableName string, row types.Row) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Rows[row.ID] = row
	for _, idx := range t.Indexes {
		idx.insert(row)
	}
	return nil
}

func (c *Catalog) GetRow(tableName string, rowID uint64) (types.Row, bool, error) {
	t, err := c.get(tableName)
	if err != nil {
		return types.Row{}, false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.Rows[rowID]
	return row, ok, nil
}

// UpdateRow replaces a row's values in place. Used by both live UPDATE
// statements and WAL redo/undo, which is why it takes already-resolved
// new values rather than a delta.
func (c *Catalog) UpdateRow(tableName string, rowID uint64, newValues []types.Value) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	old, exists := t.Rows[rowID]
	if !exists {
		return errors.InternalError("row %d not found in table %q", rowID, tableName)
	}
	updated := types.NewRow(rowID, newValues)
	for _, idx := range t.Indexes {
		if idx.Meta.Unique {
			if violates, key := idx.wouldViolate(updated, rowID, true); violates {
				return errors.DuplicateEntry(idx.displayValues(key))
			}
		}
	}
	for _, idx := range t.Indexes {
		idx.remove(old)
	}
	t.Rows[rowID] = updated
	for _, idx := range t.Indexes {
		idx.insert(updated)
	}
	return nil
}

func (c *Catalog) DeleteRow(tableName string, rowID uint64) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	row, exists := t.Rows[rowID]
	if !exists {
		return nil // deleting a row already absent is a no-op (idempotent redo)
	}
	delete(t.Rows, rowID)
	for _, idx := range t.Indexes {
		idx.remove(row)
	}
	return nil
}

// ScanTable returns every row in the table, in row-id order, for the
// caller to filter (pkg/query's scan planner narrows this via indexes
// before falling back to a full scan).
func (c *Catalog) ScanTable(tableName string) ([]types.Row, error) {
	t, err := c.get(tableName)
	if err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]types.Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		rows = append(rows, row)
	}
	sortRowsByID(rows)
	return rows, nil
}

func sortRowsByID(rows []types.Row) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j-1].ID > rows[j].ID; j-- {
			rows[j-1], rows[j] = rows[j], rows[j-1]
		}
	}
}

// compactRowIDsLocked reassigns every row a contiguous id in 1..n (ordered
// by the table's current row-id order) and rebuilds every index against
// the renumbered rows. Callers must already hold t.mu for writing.
func (t *TableData) compactRowIDsLocked() {
	rows := make([]types.Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		rows = append(rows, row)
	}
	sortRowsByID(rows)

	newRows := make(map[uint64]types.Row, len(rows))
	for i, row := range rows {
		newID := uint64(i + 1)
		newRows[newID] = types.NewRow(newID, row.Values)
	}
	t.Rows = newRows

	for _, idx := range t.Indexes {
		idx.Clear()
		for _, row := range newRows {
			idx.insert(row)
		}
	}
	t.Schema.AutoIncrementCounter = uint64(len(rows))
}

// ReplaceTableRows atomically swaps a table's entire row set, as used by
// Sandstone's background flusher writing a CRDT-merged snapshot back to the
// catalog. Indexes are rebuilt from scratch against the new rows.
func (c *Catalog) ReplaceTableRows(tableName string, rows map[uint64]types.Row) error {
	t, err := c.get(tableName)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Rows = rows
	for _, idx := range t.Indexes {
		idx.Clear()
		for _, row := range rows {
			idx.insert(row)
		}
	}
	return nil
}

// CheckUniqueViolation reports whether values at columnIndices already
// appear in another row of the table. A NULL in any key column never
// violates uniqueness (SQL NULL != NULL semantics).
func (c *Catalog) CheckUniqueViolation(tableName string, columnIndices []int, values []types.Value, excludeRowID *uint64) (bool, error) {
	t, err := c.get(tableName)
	if err != nil {
		return false, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	keyValues := make([]types.Value, 0, len(columnIndices))
	for _, idx := range columnIndices {
		if idx < len(values) {
			keyValues = append(keyValues, values[idx])
		}
	}
	for _, v := range keyValues {
		if v.IsNull() {
			return false, nil
		}
	}

	for rowID, row := range t.Rows {
		if excludeRowID != nil && rowID == *excludeRowID {
			continue
		}
		matches := true
		for _, idx := range columnIndices {
			if idx >= len(row.Values) || idx >= len(values) || !row.Values[idx].Equal(values[idx]) {
				matches = false
				break
			}
		}
		if matches {
			return true, nil
		}
	}
	return false, nil
}
