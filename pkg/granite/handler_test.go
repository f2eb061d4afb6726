package granite

import (
	"context"
	"testing"
	"time"

	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/txn"
	"github.com/bobboyms/minisql-core/pkg/types"
)

func newTestHandler(t *testing.T) (*Handler, *catalog.Catalog, *txn.Manager) {
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

	c := catalog.New(dir)
	schema := types.TableSchema{
		Name: "users",
		Columns: []types.ColumnDef{
			{Name: "id", DataType: types.TypeInt, PrimaryKey: true},
			{Name: "name", DataType: types.TypeVarchar},
		},
		Engine: types.EngineGranite,
	}
	if err := c.CreateTable(schema); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return New(c, m), c, m
}

func TestInsertEnforcesPrimaryKeyUniqueness(t *testing.T) {
	h, _, m := newTestHandler(t)
	ctx := context.Background()

	txnID, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := h.Insert(ctx, uint64(txnID), "users", []types.Value{types.IntegerValue(1), types.StringValue("a")}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := h.Insert(ctx, uint64(txnID), "users", []types.Value{types.IntegerValue(1), types.StringValue("b")}); err == nil {
		t.Fatal("expected a duplicate primary key insert to fail")
	}
}

func TestInsertCommitIsDurableAndVisible(t *testing.T) {
	h, c, m := newTestHandler(t)
	ctx := context.Background()

	txnID, err := m.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rowID, err := h.Insert(ctx, uint64(txnID), "users", []types.Value{types.IntegerValue(1), types.StringValue("a")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ok, err := h.CommitTransaction(uint64(txnID)); err != nil || !ok {
		t.Fatalf("CommitTransaction: ok=%v err=%v", ok, err)
	}
	if err := m.FinalizeCommit(txn.TxnId(txnID), c); err != nil {
		t.Fatalf("FinalizeCommit: %v", err)
	}

	row, ok, err := c.GetRow("users", rowID)
	if err != nil || !ok {
		t.Fatalf("row missing after commit: ok=%v err=%v", ok, err)
	}
	if s, _ := row.Values[1].AsString(); s != "a" {
		t.Errorf("unexpected value %q", s)
	}
}

func TestUpdateAndDeleteRoundTrip(t *testing.T) {
	h, c, m := newTestHandler(t)
	ctx := context.Background()

	txnID, _ := m.Begin()
	rowID, err := h.Insert(ctx, uint64(txnID), "users", []types.Value{types.IntegerValue(1), types.StringValue("a")})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	old := []types.Value{types.IntegerValue(1), types.StringValue("a")}
	newValues := []types.Value{types.IntegerValue(1), types.StringValue("b")}
	if ok, err := h.Update(ctx, uint64(txnID), "users", rowID, old, newValues); err != nil || !ok {
		t.Fatalf("Update: ok=%v err=%v", ok, err)
	}
	row, _, _ := c.GetRow("users", rowID)
	if s, _ := row.Values[1].AsString(); s != "b" {
		t.Errorf("update did not apply, got %q", s)
	}

	if ok, err := h.Delete(ctx, uint64(txnID), "users", rowID, newValues); err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := c.GetRow("users", rowID); ok {
		t.Error("row should be gone after delete")
	}
}

func TestSupportsTransactionsAndIndexes(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if !h.SupportsTransactions() {
		t.Error("Granite must support transactions")
	}
	if !h.SupportsIndexes() {
		t.Error("Granite must support indexes")
	}
}
