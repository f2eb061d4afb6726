package txn

import "github.com/bobboyms/minisql-core/pkg/types"

// OpKind is the closed set of operations a LogRecord can carry.
type OpKind int

const (
	OpBegin OpKind = iota
	OpCommit
	OpRollback
	OpInsert
	OpUpdate
	OpDelete
	OpCreateTable
	OpDropTable
	OpTruncateTable
	OpCheckpoint
)

// LogOperation is a tagged union over every loggable WAL operation. Only
// the fields relevant to Op are populated; this mirrors the Rust original's
// enum but as a flat BSON-friendly struct, since Go has no sum types.
type LogOperation struct {
	Op OpKind `bson:"op"`

	Table      string        `bson:"table,omitempty"`
	RowID      uint64        `bson:"row_id,omitempty"`
	Values     []types.Value `bson:"values,omitempty"`
	OldValues  []types.Value `bson:"old_values,omitempty"`
	NewValues  []types.Value `bson:"new_values,omitempty"`
	Schema     *types.TableSchema `bson:"schema,omitempty"`
	ActiveTxns []TxnId       `bson:"active_txns,omitempty"`
}

// LogRecord is one WAL record: a committed fact about what a transaction
// did, tagged with the LSN it was assigned and the time it was written.
type LogRecord struct {
	LSN       Lsn          `bson:"lsn"`
	TxnID     TxnId        `bson:"txn_id"`
	Op        LogOperation `bson:"op_record"`
	TimestampMillis int64  `bson:"timestamp"`
}
