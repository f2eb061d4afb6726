// Package catalog owns the in-memory table/index maps and their on-disk
// persistence: catalog.json (schemas + index metadata) plus one .dat file
// of length-prefixed BSON rows per table. It has no notion of transactions or WAL — callers in
// pkg/granite and pkg/sandstone apply already-decided mutations here.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/types"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Catalog is the authoritative map of tables and their row/index data for
// one data directory. Safe for concurrent use.
type Catalog struct {
	dataDir string

	mu     sync.RWMutex
	tables map[string]*TableData
}

func New(dataDir string) *Catalog {
	return &Catalog{dataDir: dataDir, tables: make(map[string]*TableData)}
}

func (c *Catalog) DataDir() string { return c.dataDir }

func validateTableName(name string) error {
	if len(name) > 255 {
		return errors.InvalidTableName(name, "longer than 255 bytes")
	}
	if !validTableName.MatchString(name) {
		return errors.InvalidTableName(name, "must start with a letter or underscore and contain only alphanumerics/underscore")
	}
	return nil
}

func (c *Catalog) tablePath(name string) string {
	return filepath.Join(c.dataDir, fmt.Sprintf("%s.dat", name))
}

func (c *Catalog) catalogPath() string {
	return filepath.Join(c.dataDir, "catalog.json")
}

// CreateTable registers a brand-new table with an empty row set. Returns
// TableAlreadyExists if the name is taken.
func (c *Catalog) CreateTable(schema types.TableSchema) error {
	if err := validateTableName(schema.Name); err != nil {
		return err
	}
	if pk := schema.PrimaryKeyColumns(); len(pk) > 1 {
		return errors.TwoPrimaryKeys(len(pk))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.tables[schema.Name]; exists {
		return errors.TableAlreadyExists(schema.Name)
	}
	c.tables[schema.Name] = newTableData(schema)
	return nil
}

// ApplySchema installs (or overwrites) a table's schema without touching its
// row data, as used by recovery replaying a CreateTable log record.
func (c *Catalog) ApplySchema(schema types.TableSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tables[schema.Name]; ok {
		t.mu.Lock()
		t.Schema = schema
		t.mu.Unlock()
		return nil
	}
	c.tables[schema.Name] = newTableData(schema)
	return nil
}

func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.tables[name]; !ok {
		return errors.TableNotFound(name)
	}
	delete(c.tables, name)
	return os.Remove(c.tablePath(name))
}

func (c *Catalog) TruncateTable(name string) error {
	t, err := c.get(name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Rows = make(map[uint64]types.Row)
	for _, idx := range t.Indexes {
		idx.Clear()
	}
	return nil
}

func (c *Catalog) get(name string) (*TableData, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[name]
	if !ok {
		return nil, errors.TableNotFound(name)
	}
	return t, nil
}

func (c *Catalog) GetSchema(name string) (types.TableSchema, error) {
	t, err := c.get(name)
	if err != nil {
		return types.TableSchema{}, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Schema, nil
}

func (c *Catalog) UpdateSchema(schema types.TableSchema) error {
	t, err := c.get(schema.Name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Schema = schema
	return nil
}

func (c *Catalog) TableExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tables[name]
	return ok
}

func (c *Catalog) ListTables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// NextRowID allocates the next auto-increment value for the table and
// advances its counter. Tables with no auto-increment column still get a
// monotonic row-id sequence from the same counter.
func (c *Catalog) NextRowID(name string) (uint64, error) {
	t, err := c.get(name)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Schema.AutoIncrementCounter++
	return t.Schema.AutoIncrementCounter, nil
}

// UpdateAutoIncrementIfNeeded bumps the counter forward when an explicit
// insert supplies a row-id/PK value higher than anything seen so far, so a
// later auto-increment never collides with it.
func (c *Catalog) UpdateAutoIncrementIfNeeded(name string, value uint64) error {
	t, err := c.get(name)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if value > t.Schema.AutoIncrementCounter {
		t.Schema.AutoIncrementCounter = value
	}
	return nil
}

func (c *Catalog) GetAutoIncrement(name string) (uint64, error) {
	t, err := c.get(name)
	if err != nil {
		return 0, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Schema.AutoIncrementCounter, nil
}

// FlushAll persists every table and the catalog metadata to disk.
func (c *Catalog) FlushAll() error {
	c.mu.RLock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	c.mu.RUnlock()

	for _, name := range names {
		if err := c.SaveTable(name); err != nil {
			return err
		}
	}
	return c.SaveCatalog()
}
