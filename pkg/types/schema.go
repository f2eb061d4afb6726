package types

import "strings"

// EngineKind is the closed set of storage engines a table may select.
// Kept in pkg/types (rather than pkg/engine) because TableSchema embeds it
// and pkg/engine already depends on pkg/types — this avoids an import cycle.
type EngineKind int

const (
	EngineGranite EngineKind = iota
	EngineSandstone
)

func (k EngineKind) String() string {
	switch k {
	case EngineGranite:
		return "Granite"
	case EngineSandstone:
		return "Sandstone"
	default:
		return "Unknown"
	}
}

// EngineKindFromName parses an engine name case-insensitively, as required
// by `CREATE TABLE ... ENGINE = Granite|Sandstone`.
func EngineKindFromName(name string) (EngineKind, bool) {
	switch strings.ToUpper(name) {
	case "GRANITE":
		return EngineGranite, true
	case "SANDSTONE":
		return EngineSandstone, true
	default:
		return 0, false
	}
}

// ColumnDef describes one column in a table schema.
type ColumnDef struct {
	Name          string `bson:"name"`
	DataType      DataType `bson:"data_type"`
	Nullable      bool   `bson:"nullable"`
	Default       *Value `bson:"default,omitempty"`
	PrimaryKey    bool   `bson:"primary_key"`
	AutoIncrement bool   `bson:"auto_increment"`
	// Collate names an optional column-level collation used by case/locale
	// aware string comparison in pkg/query. Empty means binary comparison.
	Collate string `bson:"collate,omitempty"`
}

// TableSchema is the authoritative description of one table, as persisted
// in catalog.json.
type TableSchema struct {
	Name                 string      `bson:"name" json:"name"`
	Columns               []ColumnDef `bson:"columns" json:"columns"`
	AutoIncrementCounter uint64      `bson:"auto_increment_counter" json:"auto_increment_counter"`
	Engine                EngineKind  `bson:"engine_type" json:"engine_type"`
}

// FindColumn returns the index of the named column, case-insensitively.
func (s *TableSchema) FindColumn(name string) (int, bool) {
	for i, c := range s.Columns {
		if strings.EqualFold(c.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// ColumnNames returns column names in declaration order.
func (s *TableSchema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeyColumns returns the indices of every primary-key column, in
// declaration order.
func (s *TableSchema) PrimaryKeyColumns() []int {
	var idx []int
	for i, c := range s.Columns {
		if c.PrimaryKey {
			idx = append(idx, i)
		}
	}
	return idx
}

// AutoIncrementColumn returns the index of the auto-increment column, if any.
func (s *TableSchema) AutoIncrementColumn() (int, bool) {
	for i, c := range s.Columns {
		if c.AutoIncrement {
			return i, true
		}
	}
	return 0, false
}

// IndexMetadata describes one secondary (or primary) index in the catalog.
type IndexMetadata struct {
	Name      string   `bson:"name" json:"name"`
	TableName string   `bson:"table_name" json:"table_name"`
	Columns   []string `bson:"columns" json:"columns"`
	Unique    bool     `bson:"unique" json:"unique"`
	IsPrimary bool     `bson:"is_primary" json:"is_primary"`

	// ColumnPositions caches each Columns entry's index into the owning
	// table's Schema.Columns, resolved once when the index is created.
	// Not persisted: it is recomputed from Columns on catalog load.
	ColumnPositions []int `bson:"-" json:"-"`
}

// MatchesColumns returns the number of leading query columns that match
// this index's column list as a prefix, or (0, false) if none match.
func (m *IndexMetadata) MatchesColumns(queryColumns []string) (int, bool) {
	if len(queryColumns) == 0 || len(m.Columns) == 0 {
		return 0, false
	}
	matched := 0
	for i, idxCol := range m.Columns {
		if i < len(queryColumns) && strings.EqualFold(idxCol, queryColumns[i]) {
			matched++
		} else {
			break
		}
	}
	if matched == 0 {
		return 0, false
	}
	return matched, true
}

// CoversColumnsExactly reports whether queryColumns is exactly this index's
// column list (same length, same order, case-insensitive).
func (m *IndexMetadata) CoversColumnsExactly(queryColumns []string) bool {
	if len(queryColumns) != len(m.Columns) {
		return false
	}
	for i, c := range m.Columns {
		if !strings.EqualFold(c, queryColumns[i]) {
			return false
		}
	}
	return true
}

// CanUseForColumns reports whether queryColumns form a prefix of this
// index's column list.
func (m *IndexMetadata) CanUseForColumns(queryColumns []string) bool {
	if len(queryColumns) == 0 || len(queryColumns) > len(m.Columns) {
		return false
	}
	for i, q := range queryColumns {
		if !strings.EqualFold(q, m.Columns[i]) {
			return false
		}
	}
	return true
}

// Row is one stored record: a row-id unique within its table, and a value
// vector matching the table's column order.
type Row struct {
	ID     uint64  `bson:"id" json:"id"`
	Values []Value `bson:"values" json:"values"`
}

func NewRow(id uint64, values []Value) Row {
	return Row{ID: id, Values: values}
}

// CloneValues returns a shallow copy of the row's value vector, used when a
// caller needs an independent slice (e.g. undo-log snapshots).
func (r Row) CloneValues() []Value {
	out := make([]Value, len(r.Values))
	copy(out, r.Values)
	return out
}
