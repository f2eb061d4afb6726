package catalog

import (
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bobboyms/minisql-core/pkg/errors"
)

// Vacuum reclaims space and compacts row-ids: for every table it snapshots
// the current .dat file as a zstd-compressed sibling generation (kept for
// forensic recovery, never read back by this package), reassigns row-ids
// to a contiguous 1..n sequence in current row-id order, rebuilds every
// index against the renumbered rows, and rewrites the table file from the
// result. Row values and index query results are unchanged by a Vacuum —
// only the row-ids and the on-disk layout are.
func (c *Catalog) Vacuum() error {
	c.mu.RLock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	c.mu.RUnlock()

	for _, name := range names {
		if err := c.backupTableGeneration(name); err != nil {
			return err
		}
		t, err := c.get(name)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.compactRowIDsLocked()
		t.mu.Unlock()
	}
	return c.FlushAll()
}

// backupTableGeneration zstd-compresses the table's current on-disk .dat
// file (the pre-vacuum generation) into a sibling "<name>.dat.<ts>.zst"
// file before Vacuum's SaveTable call overwrites it. A table that was
// never flushed yet (no .dat file on disk) has nothing to back up.
func (c *Catalog) backupTableGeneration(name string) error {
	src := c.tablePath(name)
	data, err := os.ReadFile(src)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.IoError("read table file %q for vacuum backup: %v", src, err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return errors.IoError("create zstd encoder: %v", err)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(data, nil)

	dst := src + "." + strconv.FormatInt(time.Now().UnixNano(), 10) + ".zst"
	if err := os.WriteFile(dst, compressed, 0o644); err != nil {
		return errors.IoError("write vacuum backup %q: %v", dst, err)
	}
	return nil
}
