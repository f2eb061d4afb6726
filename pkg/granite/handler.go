// Package granite implements the ACID storage engine: every mutation is
// logged to the write-ahead log via pkg/txn before (or, for inserts,
// immediately after row-id assignment alongside) being applied to
// pkg/catalog, so a crash can always redo committed work and undo
// whatever was still in flight.
package granite

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/bobboyms/minisql-core/internal/engine"
	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/txn"
	"github.com/bobboyms/minisql-core/pkg/types"
)

var _ engine.Handler = (*Handler)(nil)

// Handler wraps the catalog and transaction manager behind the uniform
// engine interface. Fully transactional and index-capable.
type Handler struct {
	catalog *catalog.Catalog
	txns    *txn.Manager
}

func New(cat *catalog.Catalog, txns *txn.Manager) *Handler {
	return &Handler{catalog: cat, txns: txns}
}

// InitTable is a no-op: Granite tables are always ready, either freshly
// created or already loaded by the catalog at startup.
func (h *Handler) InitTable(_ context.Context, _ string) error { return nil }

func duplicateEntryError(schema types.TableSchema, pkCols []int, values []types.Value) error {
	pkValues := make([]string, 0, len(pkCols))
	for _, idx := range pkCols {
		if idx < len(values) {
			pkValues = append(pkValues, values[idx].String())
		}
	}
	return errors.DuplicateEntry(pkValues)
}

// Insert checks primary-key uniqueness, applies the row to the catalog
// (which assigns the row id), then logs the Insert to the WAL.
func (h *Handler) Insert(_ context.Context, txnID uint64, name string, values []types.Value) (uint64, error) {
	schema, err := h.catalog.GetSchema(name)
	if err != nil {
		return 0, err
	}
	pkCols := schema.PrimaryKeyColumns()
	if len(pkCols) > 0 {
		violates, err := h.catalog.CheckUniqueViolation(name, pkCols, values, nil)
		if err != nil {
			return 0, err
		}
		if violates {
			return 0, duplicateEntryError(schema, pkCols, values)
		}
	}

	rowID, err := h.catalog.NextRowID(name)
	if err != nil {
		return 0, err
	}
	row := types.NewRow(rowID, values)
	if err := h.catalog.InsertRow(name, row); err != nil {
		return 0, err
	}

	if err := h.txns.LogInsert(txn.TxnId(txnID), name, rowID, values); err != nil {
		return 0, err
	}
	return rowID, nil
}

// Update checks primary-key uniqueness against the new values (excluding
// the row being updated), logs the Update to the WAL first so the undo
// log reflects it even if the apply step below fails partway, then
// applies it to the catalog.
func (h *Handler) Update(_ context.Context, txnID uint64, name string, rowID uint64, old, newValues []types.Value) (bool, error) {
	schema, err := h.catalog.GetSchema(name)
	if err != nil {
		return false, err
	}
	pkCols := schema.PrimaryKeyColumns()
	if len(pkCols) > 0 {
		violates, err := h.catalog.CheckUniqueViolation(name, pkCols, newValues, &rowID)
		if err != nil {
			return false, err
		}
		if violates {
			return false, duplicateEntryError(schema, pkCols, newValues)
		}
	}

	if err := h.txns.LogUpdate(txn.TxnId(txnID), name, rowID, old, newValues); err != nil {
		return false, err
	}
	if err := h.catalog.UpdateRow(name, rowID, newValues); err != nil {
		return false, err
	}
	return true, nil
}

// Delete logs the Delete (carrying the row's prior values for undo) then
// removes it from the catalog.
func (h *Handler) Delete(_ context.Context, txnID uint64, name string, rowID uint64, old []types.Value) (bool, error) {
	if err := h.txns.LogDelete(txn.TxnId(txnID), name, rowID, old); err != nil {
		return false, err
	}
	if err := h.catalog.DeleteRow(name, rowID); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Handler) Scan(_ context.Context, name string) ([]types.Row, error) {
	return h.catalog.ScanTable(name)
}

var asyncSavesOnce sync.Once
var asyncSavesEnabled bool

// asyncSaves reads MINISQL_ASYNC_SAVES once per process — the one
// sanctioned piece of global mutable state, a process-wide toggle rather
// than per-call configuration.
func asyncSaves() bool {
	asyncSavesOnce.Do(func() {
		v := os.Getenv("MINISQL_ASYNC_SAVES")
		asyncSavesEnabled = v != "" && v != "0"
	})
	return asyncSavesEnabled
}

// Flush persists name's table file. When MINISQL_ASYNC_SAVES is set, the
// write happens on a background goroutine and errors are only logged —
// acceptable because the WAL, not the table snapshot, is the durability
// authority.
func (h *Handler) Flush(_ context.Context, name string) error {
	if asyncSaves() {
		go func() {
			if err := h.catalog.SaveTable(name); err != nil {
				fmt.Fprintf(os.Stderr, "granite: async save of %q failed: %v\n", name, err)
			}
		}()
		return nil
	}
	return h.catalog.SaveTable(name)
}

func (h *Handler) SupportsTransactions() bool { return true }
func (h *Handler) SupportsIndexes() bool      { return true }

// BeginTransaction is a no-op at this layer: the transaction manager's
// Begin() is called by the dispatcher/executor before any handler method
// runs, since the txn id must exist before Insert/Update/Delete can log
// against it.
func (h *Handler) BeginTransaction(_ uint64) error { return nil }

// CommitTransaction performs the durable WAL commit and always reports
// having done (potential) work.
func (h *Handler) CommitTransaction(txnID uint64) (bool, error) {
	if err := h.txns.CommitDurable(txn.TxnId(txnID)); err != nil {
		return false, err
	}
	return true, nil
}

// RollbackTransaction is a no-op at this layer: the transaction manager
// owns undo replay (pkg/txn.Manager.Rollback), which the caller invokes
// itself with the catalog Rollback needs; engine.Dispatcher.Rollback does
// not call it.
func (h *Handler) RollbackTransaction(_ uint64) error { return nil }
