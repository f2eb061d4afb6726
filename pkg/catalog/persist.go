package catalog

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/types"
)

// catalogFile is the on-disk shape of catalog.json: one schema and its
// index metadata per table.
type catalogFile struct {
	Tables map[string]tableCatalogEntry `json:"tables"`
}

type tableCatalogEntry struct {
	Schema  types.TableSchema     `json:"schema"`
	Indexes []types.IndexMetadata `json:"indexes"`
}

// SaveCatalog atomically writes catalog.json (temp file + rename), the same
// crash-safe pattern the teacher's checkpoint writer uses for wal.checkpoint.
func (c *Catalog) SaveCatalog() error {
	c.mu.RLock()
	out := catalogFile{Tables: make(map[string]tableCatalogEntry, len(c.tables))}
	for name, t := range c.tables {
		t.mu.RLock()
		entry := tableCatalogEntry{Schema: t.Schema}
		for _, idx := range t.Indexes {
			entry.Indexes = append(entry.Indexes, idx.Meta)
		}
		t.mu.RUnlock()
		out.Tables[name] = entry
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.JsonError("marshal catalog: %v", err)
	}
	return atomicWriteFile(c.catalogPath(), data)
}

func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.IoError("create data dir %q: %v", dir, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.IoError("write temp file %q: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.IoError("rename %q to %q: %v", tmp, path, err)
	}
	return nil
}

// LoadCatalog reads catalog.json and every table's .dat file into memory.
// A missing catalog.json means a fresh data directory, not an error.
func LoadCatalog(dataDir string) (*Catalog, error) {
	c := New(dataDir)

	data, err := os.ReadFile(filepath.Join(dataDir, "catalog.json"))
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, errors.IoError("read catalog.json: %v", err)
	}

	var cf catalogFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, errors.JsonError("parse catalog.json: %v", err)
	}

	for name, entry := range cf.Tables {
		t := newTableData(entry.Schema)
		c.tables[name] = t
		for _, meta := range entry.Indexes {
			meta.ColumnPositions = make([]int, len(meta.Columns))
			for i, col := range meta.Columns {
				pos, _ := entry.Schema.FindColumn(col)
				meta.ColumnPositions[i] = pos
			}
			t.Indexes[meta.Name] = newIndex(meta)
		}
		if err := c.loadTableRows(name); err != nil {
			return nil, err
		}
		if err := c.RebuildAllIndexes(name); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SaveTable rewrites one table's .dat file as a sequence of
// length-prefixed BSON-encoded rows, replacing whatever was there before.
// Row-ids are written unchanged; renumbering them is Vacuum's job.
func (c *Catalog) SaveTable(name string) error {
	t, err := c.get(name)
	if err != nil {
		return err
	}
	t.mu.RLock()
	rows := make([]types.Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		rows = append(rows, row)
	}
	t.mu.RUnlock()
	sortRowsByID(rows)

	tmp := c.tablePath(name) + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.IoError("create temp table file %q: %v", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		raw, err := bson.Marshal(row)
		if err != nil {
			f.Close()
			return errors.JsonError("marshal row %d of table %q: %v", row.ID, name, err)
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			f.Close()
			return errors.IoError("write row length: %v", err)
		}
		if _, err := w.Write(raw); err != nil {
			f.Close()
			return errors.IoError("write row payload: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return errors.IoError("flush table file: %v", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.IoError("fsync table file: %v", err)
	}
	if err := f.Close(); err != nil {
		return errors.IoError("close table file: %v", err)
	}
	return os.Rename(tmp, c.tablePath(name))
}

func (c *Catalog) loadTableRows(name string) error {
	path := c.tablePath(name)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.IoError("open table file %q: %v", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	t, err := c.get(name)
	if err != nil {
		return err
	}
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return errors.IoError("read row length in %q: %v", path, err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		raw := make([]byte, n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return errors.IoError("read row payload in %q: %v", path, err)
		}
		var row types.Row
		if err := bson.Unmarshal(raw, &row); err != nil {
			return errors.JsonError("unmarshal row in %q: %v", path, err)
		}
		t.Rows[row.ID] = row
	}
	return nil
}
