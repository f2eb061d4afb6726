package engine

import (
	"context"
	"sync"

	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/errors"
)

// Dispatcher resolves a table name to its owning engine's Handler and
// coordinates commit/rollback across whichever engines a transaction
// actually touched. It is the only component that needs to know both
// engines exist; callers (the executor) only ever see Handler.
type Dispatcher struct {
	catalog  *catalog.Catalog
	handlers map[Kind]Handler

	mu              sync.Mutex
	modifiedEngines map[TxnID]map[Kind]struct{}
}

// NewDispatcher wires a handler per engine kind. Both must be non-nil;
// a table whose schema names an engine with no registered handler is a
// configuration error surfaced at resolve time.
func NewDispatcher(cat *catalog.Catalog, granite, sandstone Handler) *Dispatcher {
	return &Dispatcher{
		catalog: cat,
		handlers: map[Kind]Handler{
			Granite:   granite,
			Sandstone: sandstone,
		},
		modifiedEngines: make(map[TxnID]map[Kind]struct{}),
	}
}

// Resolve returns the Handler owning tableName, per its schema's engine
// selector.
func (d *Dispatcher) Resolve(tableName string) (Handler, Kind, error) {
	schema, err := d.catalog.GetSchema(tableName)
	if err != nil {
		return nil, 0, err
	}
	h, ok := d.handlers[schema.Engine]
	if !ok {
		return nil, 0, errors.InternalError("no handler registered for engine %s", schema.Engine)
	}
	return h, schema.Engine, nil
}

// MarkModified records that txn touched (and actually mutated) a table
// owned by kind, so Commit/Rollback know which engines to notify.
func (d *Dispatcher) MarkModified(txn TxnID, kind Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.modifiedEngines[txn]
	if !ok {
		set = make(map[Kind]struct{})
		d.modifiedEngines[txn] = set
	}
	set[kind] = struct{}{}
}

func (d *Dispatcher) takeModified(txn TxnID) []Kind {
	d.mu.Lock()
	defer d.mu.Unlock()
	set := d.modifiedEngines[txn]
	delete(d.modifiedEngines, txn)
	out := make([]Kind, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// Commit asks every engine txn modified to commit, in Go map-iteration
// order — safe because each engine's CommitTransaction is independent
// and idempotent with respect to the others. It does not call
// txn.Manager.FinalizeCommit; the caller does that after Commit returns.
func (d *Dispatcher) Commit(txn TxnID) error {
	for _, kind := range d.takeModified(txn) {
		if _, err := d.handlers[kind].CommitTransaction(txn); err != nil {
			return err
		}
	}
	return nil
}

// Rollback asks every engine txn modified to roll back. It does not apply
// the Granite undo log; the caller invokes txn.Manager.Rollback for that.
func (d *Dispatcher) Rollback(txn TxnID) error {
	for _, kind := range d.takeModified(txn) {
		if err := d.handlers[kind].RollbackTransaction(txn); err != nil {
			return err
		}
	}
	return nil
}

// AlterEngine migrates tableName from its current engine to target:
// flush the source, initialize the table on the target (loading existing
// rows), then swap and persist the schema. The schema is only updated
// after both steps succeed, so no reader ever observes a schema pointing
// at an engine that hasn't finished loading the table.
func (d *Dispatcher) AlterEngine(ctx context.Context, tableName string, target Kind) error {
	source, _, err := d.Resolve(tableName)
	if err != nil {
		return err
	}
	if err := source.Flush(ctx, tableName); err != nil {
		return err
	}

	targetHandler, ok := d.handlers[target]
	if !ok {
		return errors.InternalError("no handler registered for engine %s", target)
	}
	if err := targetHandler.InitTable(ctx, tableName); err != nil {
		return err
	}

	schema, err := d.catalog.GetSchema(tableName)
	if err != nil {
		return err
	}
	schema.Engine = target
	if err := d.catalog.UpdateSchema(schema); err != nil {
		return err
	}
	return d.catalog.SaveCatalog()
}
