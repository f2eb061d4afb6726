package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/bobboyms/minisql-core/internal/engine"
	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/granite"
	"github.com/bobboyms/minisql-core/pkg/sandstone"
	"github.com/bobboyms/minisql-core/pkg/txn"
	"github.com/bobboyms/minisql-core/pkg/types"
)

func newTestDispatcher(t *testing.T) (*engine.Dispatcher, *catalog.Catalog, *txn.Manager, *sandstone.Engine) {
	t.Helper()
	dir := t.TempDir()
	cfg := txn.DefaultConfig()
	cfg.FsyncInterval = 2 * time.Millisecond
	cfg.BatchTimeout = 2 * time.Millisecond

	m, err := txn.NewManager(dir, cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Shutdown)

	cat := catalog.New(dir)
	if err := cat.CreateTable(types.TableSchema{
		Name: "g",
		Columns: []types.ColumnDef{
			{Name: "id", DataType: types.TypeInt, PrimaryKey: true},
		},
		Engine: types.EngineGranite,
	}); err != nil {
		t.Fatalf("CreateTable g: %v", err)
	}
	if err := cat.CreateTable(types.TableSchema{
		Name: "s",
		Columns: []types.ColumnDef{
			{Name: "id", DataType: types.TypeInt, PrimaryKey: true},
		},
		Engine: types.EngineSandstone,
	}); err != nil {
		t.Fatalf("CreateTable s: %v", err)
	}

	sandstoneCfg := sandstone.DefaultConfig()
	sandstoneCfg.FlushInterval = 5 * time.Millisecond
	sandEngine := sandstone.New(cat, sandstoneCfg, nil, nil)
	t.Cleanup(sandEngine.Shutdown)

	graniteHandler := granite.New(cat, m)
	d := engine.NewDispatcher(cat, graniteHandler, sandEngine)
	return d, cat, m, sandEngine
}

func TestResolveRoutesToCorrectEngine(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)

	_, kind, err := d.Resolve("g")
	if err != nil || kind != engine.Granite {
		t.Fatalf("expected Granite, got kind=%v err=%v", kind, err)
	}
	_, kind, err = d.Resolve("s")
	if err != nil || kind != engine.Sandstone {
		t.Fatalf("expected Sandstone, got kind=%v err=%v", kind, err)
	}
}

func TestCommitRoutesAcrossBothEngines(t *testing.T) {
	d, cat, m, _ := newTestDispatcher(t)
	ctx := context.Background()

	txnID, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	graniteHandler, _, _ := d.Resolve("g")
	if _, err := graniteHandler.Insert(ctx, uint64(txnID), "g", []types.Value{types.IntegerValue(1)}); err != nil {
		t.Fatalf("granite insert: %v", err)
	}
	d.MarkModified(txnID, engine.Granite)

	sandHandler, _, _ := d.Resolve("s")
	if _, err := sandHandler.Insert(ctx, uint64(txnID), "s", []types.Value{types.IntegerValue(1)}); err != nil {
		t.Fatalf("sandstone insert: %v", err)
	}
	d.MarkModified(txnID, engine.Sandstone)

	if err := d.Commit(txnID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := m.FinalizeCommit(txn.TxnId(txnID), cat); err != nil {
		t.Fatalf("FinalizeCommit: %v", err)
	}

	if _, ok, _ := cat.GetRow("g", 1); !ok {
		t.Error("Granite row should be durable after commit")
	}
}

func TestAlterEngineMigratesSchemaLast(t *testing.T) {
	d, cat, m, _ := newTestDispatcher(t)
	ctx := context.Background()

	txnID, _ := m.Begin()
	graniteHandler, _, _ := d.Resolve("g")
	if _, err := graniteHandler.Insert(ctx, uint64(txnID), "g", []types.Value{types.IntegerValue(7)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := m.CommitDurable(txn.TxnId(txnID)); err != nil {
		t.Fatalf("CommitDurable: %v", err)
	}
	if err := m.FinalizeCommit(txn.TxnId(txnID), cat); err != nil {
		t.Fatalf("FinalizeCommit: %v", err)
	}

	if err := d.AlterEngine(ctx, "g", engine.Sandstone); err != nil {
		t.Fatalf("AlterEngine: %v", err)
	}

	schema, err := cat.GetSchema("g")
	if err != nil {
		t.Fatalf("GetSchema: %v", err)
	}
	if schema.Engine != engine.Sandstone {
		t.Errorf("expected schema engine to be Sandstone after migration, got %v", schema.Engine)
	}
}
