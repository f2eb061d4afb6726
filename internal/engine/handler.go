// Package engine defines the capability interface both storage engines
// (Granite and Sandstone) implement, and the dispatcher that routes a
// table name to its owning engine and coordinates cross-engine commits.
package engine

import (
	"context"

	"github.com/bobboyms/minisql-core/pkg/types"
)

// TxnID identifies a transaction across both engines. Sandstone ignores
// it (it has no transactions of its own); Granite maps it to a
// pkg/txn.TxnId.
type TxnID = uint64

// Handler is the uniform surface the executor drives a DML/DDL operation
// through, regardless of which engine owns the target table.
type Handler interface {
	InitTable(ctx context.Context, name string) error
	Insert(ctx context.Context, txn TxnID, name string, values []types.Value) (uint64, error)
	Update(ctx context.Context, txn TxnID, name string, rowID uint64, old, new []types.Value) (bool, error)
	Delete(ctx context.Context, txn TxnID, name string, rowID uint64, old []types.Value) (bool, error)
	Scan(ctx context.Context, name string) ([]types.Row, error)
	Flush(ctx context.Context, name string) error
	SupportsTransactions() bool
	SupportsIndexes() bool
	BeginTransaction(txn TxnID) error
	CommitTransaction(txn TxnID) (bool, error)
	RollbackTransaction(txn TxnID) error
}

// Kind aliases the catalog's closed engine-variant set — dynamic dispatch
// here is deliberately over {Granite, Sandstone} only, mirroring
// original_source's EngineType enum rather than an open plugin model.
type Kind = types.EngineKind

const (
	Granite   = types.EngineGranite
	Sandstone = types.EngineSandstone
)
