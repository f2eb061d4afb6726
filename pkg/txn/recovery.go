package txn

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/types"
	"github.com/bobboyms/minisql-core/pkg/wal"
)

type recoveryResult struct {
	nextLSN       Lsn
	nextTxnID     TxnId
	committedTxns map[TxnId]struct{}
}

// recoverFromWAL replays dataDir/wal.log against c: committed transactions
// are redone forward, transactions that were active when the process died
// (neither committed nor explicitly rolled back) are undone in reverse,
// and aborted transactions are skipped entirely since their undo already
// ran before the ROLLBACK record was written.
func recoverFromWAL(dataDir string, c *catalog.Catalog) (recoveryResult, error) {
	walPath := filepath.Join(dataDir, "wal.log")
	if _, err := os.Stat(walPath); os.IsNotExist(err) {
		return recoveryResult{nextLSN: 1, nextTxnID: 1, committedTxns: map[TxnId]struct{}{}}, nil
	}

	checkpointLSN := readCheckpointLSN(dataDir)

	reader, err := wal.NewWALReader(walPath)
	if err != nil {
		return recoveryResult{}, errors.IoError("open WAL for recovery: %v", err)
	}
	defer reader.Close()

	txnRecords := make(map[TxnId][]LogRecord)
	committed := make(map[TxnId]struct{})
	aborted := make(map[TxnId]struct{})

	var maxLSN Lsn
	var maxTxnID TxnId
	currentCheckpointLSN := checkpointLSN

	for {
		entry, err := reader.ReadEntry()
		if err != nil {
			break // io.EOF or a truncated tail record: stop replaying here
		}
		if entry.Header.PayloadLen == 0 {
			continue
		}

		payload := entry.Payload
		if entry.Header.Reserved&wal.FlagCompressed != 0 {
			decoded, err := snappy.Decode(nil, payload)
			if err != nil {
				wal.ReleaseEntry(entry)
				continue // skip malformed records rather than aborting recovery
			}
			payload = decoded
		}

		var record LogRecord
		if err := bson.Unmarshal(payload, &record); err != nil {
			wal.ReleaseEntry(entry)
			continue // skip malformed records rather than aborting recovery
		}
		wal.ReleaseEntry(entry)

		if record.LSN <= currentCheckpointLSN {
			if record.Op.Op == OpCheckpoint && record.LSN > currentCheckpointLSN {
				currentCheckpointLSN = record.LSN
			}
			continue
		}

		if record.LSN > maxLSN {
			maxLSN = record.LSN
		}
		if record.TxnID > maxTxnID {
			maxTxnID = record.TxnID
		}

		switch record.Op.Op {
		case OpBegin:
			txnRecords[record.TxnID] = nil
		case OpCommit:
			committed[record.TxnID] = struct{}{}
		case OpRollback:
			aborted[record.TxnID] = struct{}{}
		case OpCheckpoint:
			if record.LSN > currentCheckpointLSN {
				currentCheckpointLSN = record.LSN
			}
		default:
			// Only append to transactions we've actually seen a Begin for.
			// A checkpoint taken mid-transaction drops that txn's
			// pre-checkpoint Begin record (filtered above by the
			// record.LSN <= currentCheckpointLSN check), so its surviving
			// post-checkpoint DML records belong to an unknown TxnId here;
			// silently ignoring them (rather than tracking and undoing a
			// transaction we never saw begin) is the defensive behavior.
			if _, ok := txnRecords[record.TxnID]; ok {
				txnRecords[record.TxnID] = append(txnRecords[record.TxnID], record)
			}
		}
	}

	for txnID, records := range txnRecords {
		if _, ok := committed[txnID]; ok {
			for _, record := range records {
				if err := RedoOperation(record.Op, c); err != nil {
					return recoveryResult{}, err
				}
			}
		} else if _, ok := aborted[txnID]; !ok {
			for i := len(records) - 1; i >= 0; i-- {
				if err := UndoOperation(records[i].Op, c); err != nil {
					return recoveryResult{}, err
				}
			}
		}
	}

	if err := c.FlushAll(); err != nil {
		return recoveryResult{}, err
	}

	// max(checkpointLSN, maxLSN)+1 rather than a literal maxLSN+1: if the
	// checkpoint's own LSN is higher than anything seen in an empty
	// post-checkpoint tail, the naive translation would hand out an LSN
	// that has already been used by the checkpoint record itself.
	nextLSN := currentCheckpointLSN
	if maxLSN > nextLSN {
		nextLSN = maxLSN
	}
	nextLSN++

	return recoveryResult{
		nextLSN:       nextLSN,
		nextTxnID:     maxTxnID + 1,
		committedTxns: committed,
	}, nil
}

func readCheckpointLSN(dataDir string) Lsn {
	path := filepath.Join(dataDir, "wal.checkpoint")
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	var marker struct {
		LSN uint64 `json:"lsn"`
	}
	if err := json.Unmarshal(data, &marker); err != nil {
		return 0
	}
	return marker.LSN
}

// RedoOperation re-applies a logged operation's end state to the catalog.
// Insert is idempotent (skips if the row already exists, so replaying a
// record already reflected in a table snapshot is harmless); the rest
// overwrite unconditionally since update/delete/DDL are naturally
// idempotent when replayed forward.
func RedoOperation(op LogOperation, c *catalog.Catalog) error {
	switch op.Op {
	case OpInsert:
		if _, exists, err := c.GetRow(op.Table, op.RowID); err != nil {
			return err
		} else if !exists {
			return c.RestoreRow(op.Table, types.NewRow(op.RowID, op.Values))
		}
		return nil
	case OpUpdate:
		return c.UpdateRow(op.Table, op.RowID, op.NewValues)
	case OpDelete:
		return c.DeleteRow(op.Table, op.RowID)
	case OpCreateTable:
		if op.Schema != nil {
			return c.ApplySchema(*op.Schema)
		}
		return nil
	case OpTruncateTable:
		return c.TruncateTable(op.Table)
	default:
		return nil
	}
}

// UndoOperation reverses a logged operation, used both by live ROLLBACK
// and by recovery's reverse pass over in-flight transactions.
func UndoOperation(op LogOperation, c *catalog.Catalog) error {
	switch op.Op {
	case OpInsert:
		return c.DeleteRow(op.Table, op.RowID)
	case OpUpdate:
		return c.UpdateRow(op.Table, op.RowID, op.OldValues)
	case OpDelete:
		return c.RestoreRow(op.Table, types.NewRow(op.RowID, op.OldValues))
	default:
		return nil
	}
}
