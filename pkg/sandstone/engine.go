// Package sandstone implements the eventual-consistency storage engine:
// an in-memory page table written synchronously, a background flusher
// that lazily persists dirty tables, and a delta-state CRDT layer so two
// replicas' writes converge without coordinating on every mutation.
package sandstone

import (
	"context"

	"github.com/bobboyms/minisql-core/internal/engine"
	"github.com/bobboyms/minisql-core/internal/logging"
	"github.com/bobboyms/minisql-core/internal/metrics"
	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/types"
)

var _ engine.Handler = (*Engine)(nil)

// Engine is the Sandstone storage engine: SupportsTransactions and
// SupportsIndexes are both false, so the dispatcher never routes index
// lookups or atomic multi-statement commits here.
type Engine struct {
	state   *sharedState
	catalog *catalog.Catalog
	config  Config
	flusher *flusher
	log     *logging.Logger
}

// New starts the background flusher immediately; callers must call
// Shutdown before dropping the Engine, since Go has no destructor to run
// a final flush automatically. reg may be nil: every metrics call this
// package makes is then a no-op.
func New(cat *catalog.Catalog, config Config, log *logging.Logger, reg *metrics.Registry) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	state := newSharedState()
	e := &Engine{
		state:   state,
		catalog: cat,
		config:  config,
		log:     log,
	}
	e.flusher = newFlusher(state, cat, config.FlushInterval, log, reg)
	return e
}

// Shutdown performs a final flush of any dirty tables and stops the
// background worker. Safe to call once; the test harness must invoke it
// for every Engine it constructs to avoid leaking the flusher goroutine.
func (e *Engine) Shutdown() {
	e.flusher.stop()
}

// InitTable loads tableName's current on-disk rows into the page table,
// if the page table doesn't already have a page for it. Idempotent.
func (e *Engine) InitTable(_ context.Context, name string) error {
	e.state.pagesMu.Lock()
	defer e.state.pagesMu.Unlock()

	if _, ok := e.state.pages.rows[name]; ok {
		return nil
	}
	rows, err := e.catalog.ScanTable(name)
	if err != nil {
		return err
	}
	e.state.pages.loadFromStorage(name, rows)
	return nil
}

// Insert mutates the page table directly (no WAL involvement), assigns a
// per-table sequential row id, marks the table dirty, and — when
// EnableDeltaCRDT is set — records an Upsert delta stamped with the
// table's freshly-ticked Lamport clock.
func (e *Engine) Insert(_ context.Context, _ uint64, name string, values []types.Value) (uint64, error) {
	e.state.pagesMu.Lock()
	rowID := e.state.pages.insert(name, values)
	e.state.pagesMu.Unlock()

	e.state.markDirty(name)
	if e.config.EnableDeltaCRDT {
		e.state.deltaStateFor(name).recordOperation(name, DeltaOperation{
			Op:     OpUpsert,
			RowID:  rowID,
			Values: values,
		})
	}
	return rowID, nil
}

// Update replaces rowID's values in the page table and records a delta
// analogous to Insert's.
func (e *Engine) Update(_ context.Context, _ uint64, name string, rowID uint64, _, newValues []types.Value) (bool, error) {
	e.state.pagesMu.Lock()
	ok := e.state.pages.update(name, rowID, newValues)
	e.state.pagesMu.Unlock()
	if !ok {
		return false, nil
	}

	e.state.markDirty(name)
	if e.config.EnableDeltaCRDT {
		e.state.deltaStateFor(name).recordOperation(name, DeltaOperation{
			Op:     OpUpsert,
			RowID:  rowID,
			Values: newValues,
		})
	}
	return true, nil
}

// Delete removes rowID from the page table and records a Delete
// (tombstone) delta.
func (e *Engine) Delete(_ context.Context, _ uint64, name string, rowID uint64, _ []types.Value) (bool, error) {
	e.state.pagesMu.Lock()
	ok := e.state.pages.delete(name, rowID)
	e.state.pagesMu.Unlock()
	if !ok {
		return false, nil
	}

	e.state.markDirty(name)
	if e.config.EnableDeltaCRDT {
		e.state.deltaStateFor(name).recordOperation(name, DeltaOperation{
			Op:    OpDelete,
			RowID: rowID,
		})
	}
	return true, nil
}

// Scan returns every row currently in the page table for name.
func (e *Engine) Scan(_ context.Context, name string) ([]types.Row, error) {
	e.state.pagesMu.RLock()
	defer e.state.pagesMu.RUnlock()
	return e.state.pages.scan(name), nil
}

// GetRow returns a single row by id, for callers (merge, tests) that
// don't want a full scan.
func (e *Engine) GetRow(name string, rowID uint64) (types.Row, bool) {
	e.state.pagesMu.RLock()
	defer e.state.pagesMu.RUnlock()
	return e.state.pages.get(name, rowID)
}

// Flush forces an immediate out-of-cycle write of name's current rows to
// the catalog, bypassing the flusher's interval.
func (e *Engine) Flush(_ context.Context, name string) error {
	e.state.pagesMu.RLock()
	rows := e.state.pages.allRows(name)
	e.state.pagesMu.RUnlock()
	return e.catalog.ReplaceTableRows(name, rows)
}

func (e *Engine) SupportsTransactions() bool { return false }
func (e *Engine) SupportsIndexes() bool      { return false }

// BeginTransaction, CommitTransaction and RollbackTransaction are no-ops:
// Sandstone has no transaction concept of its own (documented MyISAM-style
// behavior — writes are visible immediately and are not atomic across
// statements).
func (e *Engine) BeginTransaction(_ uint64) error { return nil }

func (e *Engine) CommitTransaction(_ uint64) (bool, error) { return true, nil }

func (e *Engine) RollbackTransaction(_ uint64) error { return nil }

// PendingDeltas drains and returns every delta produced for name since
// the last drain, for a caller that wants to ship them to a peer replica.
func (e *Engine) PendingDeltas(name string) []DeltaState {
	return e.state.deltaStateFor(name).drainPendingDeltas()
}

// MergeDelta applies a peer-produced delta using last-write-wins
// conflict resolution: operations whose timestamp is not newer than the
// row's last-seen timestamp are skipped (making repeated merges of the
// same delta idempotent), the rest are applied to the page table, the
// table is marked dirty, and the local Lamport clock advances to
// max(local, incoming).
func (e *Engine) MergeDelta(delta DeltaState) error {
	if delta.TableName == "" {
		return errors.InternalError("delta has no table name")
	}
	applied := e.state.deltaStateFor(delta.TableName).mergeDelta(delta)
	if len(applied) == 0 {
		return nil
	}

	e.state.pagesMu.Lock()
	for _, op := range applied {
		switch op.Op {
		case OpUpsert:
			e.state.pages.insertAt(delta.TableName, op.RowID, op.Values)
		case OpDelete:
			e.state.pages.delete(delta.TableName, op.RowID)
		}
	}
	e.state.pagesMu.Unlock()

	e.state.markDirty(delta.TableName)
	return nil
}
