package sandstone

import "github.com/bobboyms/minisql-core/pkg/types"

// pageTable is the in-memory table-name -> row-id -> values map Sandstone
// writes into directly; the catalog's on-disk copy only catches up when
// the background flusher runs.
type pageTable struct {
	rows      map[string]map[uint64][]types.Value
	nextRowID map[string]uint64
}

func newPageTable() *pageTable {
	return &pageTable{
		rows:      make(map[string]map[uint64][]types.Value),
		nextRowID: make(map[string]uint64),
	}
}

func (p *pageTable) initTable(tableName string) {
	if _, ok := p.rows[tableName]; !ok {
		p.rows[tableName] = make(map[uint64][]types.Value)
	}
	if _, ok := p.nextRowID[tableName]; !ok {
		p.nextRowID[tableName] = 1
	}
}

// insert assigns the next auto-increment row id for tableName and stores
// values under it, returning the assigned id.
func (p *pageTable) insert(tableName string, values []types.Value) uint64 {
	p.initTable(tableName)
	rowID := p.nextRowID[tableName]
	p.nextRowID[tableName] = rowID + 1
	p.rows[tableName][rowID] = values
	return rowID
}

// insertAt stores values under an explicit row id, used by CRDT merge and
// by loadFromStorage where the id is already decided.
func (p *pageTable) insertAt(tableName string, rowID uint64, values []types.Value) {
	p.initTable(tableName)
	p.rows[tableName][rowID] = values
	if rowID >= p.nextRowID[tableName] {
		p.nextRowID[tableName] = rowID + 1
	}
}

func (p *pageTable) update(tableName string, rowID uint64, values []types.Value) bool {
	table, ok := p.rows[tableName]
	if !ok {
		return false
	}
	if _, exists := table[rowID]; !exists {
		return false
	}
	table[rowID] = values
	return true
}

func (p *pageTable) delete(tableName string, rowID uint64) bool {
	table, ok := p.rows[tableName]
	if !ok {
		return false
	}
	if _, exists := table[rowID]; !exists {
		return false
	}
	delete(table, rowID)
	return true
}

func (p *pageTable) scan(tableName string) []types.Row {
	table, ok := p.rows[tableName]
	if !ok {
		return nil
	}
	out := make([]types.Row, 0, len(table))
	for id, values := range table {
		out = append(out, types.NewRow(id, values))
	}
	return out
}

func (p *pageTable) get(tableName string, rowID uint64) (types.Row, bool) {
	table, ok := p.rows[tableName]
	if !ok {
		return types.Row{}, false
	}
	values, ok := table[rowID]
	if !ok {
		return types.Row{}, false
	}
	return types.NewRow(rowID, values), true
}

// allRows returns a snapshot of tableName's rows, keyed by id, for the
// flusher to hand to the catalog's ReplaceTableRows.
func (p *pageTable) allRows(tableName string) map[uint64]types.Row {
	table, ok := p.rows[tableName]
	if !ok {
		return map[uint64]types.Row{}
	}
	out := make(map[uint64]types.Row, len(table))
	for id, values := range table {
		out[id] = types.NewRow(id, values)
	}
	return out
}

// loadFromStorage seeds tableName's page from rows already on disk,
// e.g. on engine startup before the first mutation touches the table.
func (p *pageTable) loadFromStorage(tableName string, rows []types.Row) {
	p.initTable(tableName)
	var maxID uint64
	for _, row := range rows {
		p.rows[tableName][row.ID] = row.Values
		if row.ID > maxID {
			maxID = row.ID
		}
	}
	p.nextRowID[tableName] = maxID + 1
}
