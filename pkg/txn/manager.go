package txn

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobboyms/minisql-core/internal/metrics"
	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/types"
)

// Manager is Granite's transaction manager: it allocates LSNs and TxnIds,
// tracks active transactions and their undo logs, and drives the WAL
// worker for durability. One Manager owns one data directory's WAL.
type Manager struct {
	dataDir string
	config  Config

	worker  *worker
	latch   *commitLatch
	metrics *metrics.Registry

	currentLSN          atomic.Uint64
	nextTxnID           atomic.Uint64
	bytesSinceCheckpoint atomic.Uint64

	mu            sync.RWMutex
	active        map[TxnId]*Transaction
	committedTxns map[TxnId]struct{}
}

// NewManager opens (creating if absent) the WAL file under dataDir/wal.log
// and starts its group-commit worker goroutine.
func NewManager(dataDir string, config Config) (*Manager, error) {
	latch := newCommitLatch()
	w, err := newWorker(filepath.Join(dataDir, "wal.log"), config, latch)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		dataDir:       dataDir,
		config:        config,
		worker:        w,
		latch:         latch,
		active:        make(map[TxnId]*Transaction),
		committedTxns: make(map[TxnId]struct{}),
	}
	m.currentLSN.Store(1)
	m.nextTxnID.Store(1)
	return m, nil
}

// SetMetrics attaches a metrics registry the manager reports WAL write,
// fsync, and LSN activity to. A nil registry (the default) makes every
// reporting call a no-op, so this is optional.
func (m *Manager) SetMetrics(r *metrics.Registry) {
	m.metrics = r
}

func (m *Manager) checkpointPath() string {
	return filepath.Join(m.dataDir, "wal.checkpoint")
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (m *Manager) allocLSN() Lsn {
	return m.currentLSN.Add(1) - 1
}

// writeLog appends a record without waiting for it to become durable.
func (m *Manager) writeLog(record LogRecord) error {
	m.bytesSinceCheckpoint.Add(approxRecordSize(record))
	if err := m.worker.write(record); err != nil {
		return err
	}
	m.metrics.RecordWALWrite()
	m.metrics.SetWrittenLSN(uint64(record.LSN))
	return nil
}

// writeLogDurable appends a record and blocks until it has been fsynced.
func (m *Manager) writeLogDurable(record LogRecord) error {
	if err := m.writeLog(record); err != nil {
		return err
	}
	start := time.Now()
	err := m.worker.waitForDurable(record.LSN)
	m.metrics.ObserveCommitWait(time.Since(start))
	if err != nil {
		m.metrics.RecordWALFsyncError()
		return err
	}
	m.metrics.RecordWALFsync(1)
	m.metrics.SetDurableLSN(uint64(record.LSN))
	return nil
}

func approxRecordSize(r LogRecord) uint64 {
	size := uint64(64)
	size += uint64(len(r.Op.Table))
	size += uint64(len(r.Op.Values)+len(r.Op.OldValues)+len(r.Op.NewValues)) * 32
	return size
}

// DurableLSN returns the highest LSN known to be fsynced.
func (m *Manager) DurableLSN() Lsn { return m.latch.durable() }

// ForceSync flushes any buffered writes and returns the resulting durable LSN.
func (m *Manager) ForceSync() (Lsn, error) { return m.worker.forceSync() }

// Begin starts a new transaction. BEGIN is written non-durably: if the
// process crashes before COMMIT, recovery treats the transaction as never
// having happened.
func (m *Manager) Begin() (TxnId, error) {
	txnID := m.nextTxnID.Add(1) - 1
	lsn := m.allocLSN()

	record := LogRecord{LSN: lsn, TxnID: txnID, Op: LogOperation{Op: OpBegin}, TimestampMillis: nowMillis()}
	if err := m.writeLog(record); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.active[txnID] = newTransaction(txnID, lsn)
	m.mu.Unlock()
	return txnID, nil
}

func (m *Manager) requireActive(txnID TxnId) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.active[txnID]
	if !ok {
		return nil, errors.TransactionError("transaction %d not found", txnID)
	}
	if t.State != StateActive {
		return nil, errors.TransactionError("transaction %d is not active", txnID)
	}
	return t, nil
}

// LogInsert appends an Insert record to the WAL and the transaction's undo
// log (non-durable: durability is deferred to Commit).
func (m *Manager) LogInsert(txnID TxnId, table string, rowID uint64, values []types.Value) error {
	op := LogOperation{Op: OpInsert, Table: table, RowID: rowID, Values: values}
	return m.logAndRecordUndo(txnID, op)
}

// LogUpdate appends an Update record carrying both old and new values so a
// rollback can restore the row's prior state.
func (m *Manager) LogUpdate(txnID TxnId, table string, rowID uint64, oldValues, newValues []types.Value) error {
	op := LogOperation{Op: OpUpdate, Table: table, RowID: rowID, OldValues: oldValues, NewValues: newValues}
	return m.logAndRecordUndo(txnID, op)
}

// LogDelete appends a Delete record carrying the row's prior values so a
// rollback can restore it.
func (m *Manager) LogDelete(txnID TxnId, table string, rowID uint64, oldValues []types.Value) error {
	op := LogOperation{Op: OpDelete, Table: table, RowID: rowID, OldValues: oldValues}
	return m.logAndRecordUndo(txnID, op)
}

// LogCreateTable, LogDropTable, and LogTruncateTable record DDL. DDL is not
// undone on rollback in this model (mirroring the teacher's own scope:
// schema changes commit immediately), so they skip the undo log.
func (m *Manager) LogCreateTable(txnID TxnId, schema types.TableSchema) error {
	lsn := m.allocLSN()
	record := LogRecord{LSN: lsn, TxnID: txnID, Op: LogOperation{Op: OpCreateTable, Table: schema.Name, Schema: &schema}, TimestampMillis: nowMillis()}
	return m.writeLog(record)
}

func (m *Manager) LogDropTable(txnID TxnId, table string) error {
	lsn := m.allocLSN()
	record := LogRecord{LSN: lsn, TxnID: txnID, Op: LogOperation{Op: OpDropTable, Table: table}, TimestampMillis: nowMillis()}
	return m.writeLog(record)
}

func (m *Manager) LogTruncateTable(txnID TxnId, table string) error {
	lsn := m.allocLSN()
	record := LogRecord{LSN: lsn, TxnID: txnID, Op: LogOperation{Op: OpTruncateTable, Table: table}, TimestampMillis: nowMillis()}
	return m.writeLog(record)
}

func (m *Manager) logAndRecordUndo(txnID TxnId, op LogOperation) error {
	if _, err := m.requireActive(txnID); err != nil {
		return err
	}
	lsn := m.allocLSN()
	record := LogRecord{LSN: lsn, TxnID: txnID, Op: op, TimestampMillis: nowMillis()}
	if err := m.writeLog(record); err != nil {
		return err
	}
	m.mu.Lock()
	if t, ok := m.active[txnID]; ok {
		t.UndoLog = append(t.UndoLog, record)
	}
	m.mu.Unlock()
	return nil
}

// IsActive reports whether txnID is currently an open transaction.
func (m *Manager) IsActive(txnID TxnId) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[txnID]
	return ok
}

// AutoCommitTxnID is the reserved id used for statements executed outside
// an explicit transaction.
const AutoCommitTxnID TxnId = 0

// CommitDurable writes the COMMIT record and blocks until it is fsynced.
// Empty transactions (no logged operations) skip the WAL round-trip
// entirely, since there is nothing to make durable.
func (m *Manager) CommitDurable(txnID TxnId) error {
	m.mu.RLock()
	t, ok := m.active[txnID]
	if !ok {
		m.mu.RUnlock()
		return errors.TransactionError("transaction %d not found", txnID)
	}
	if t.State != StateActive {
		m.mu.RUnlock()
		return errors.TransactionError("transaction %d is not active", txnID)
	}
	empty := len(t.UndoLog) == 0
	m.mu.RUnlock()

	if empty {
		return nil
	}

	lsn := m.allocLSN()
	record := LogRecord{LSN: lsn, TxnID: txnID, Op: LogOperation{Op: OpCommit}, TimestampMillis: nowMillis()}
	return m.writeLogDurable(record)
}

// FinalizeCommit marks the transaction committed in memory and triggers an
// automatic checkpoint if enough WAL bytes have accumulated.
func (m *Manager) FinalizeCommit(txnID TxnId, c *catalog.Catalog) error {
	m.mu.Lock()
	if t, ok := m.active[txnID]; ok {
		t.State = StateCommitted
	}
	delete(m.active, txnID)
	m.committedTxns[txnID] = struct{}{}
	activeEmpty := len(m.active) == 0
	m.mu.Unlock()

	bytesWritten := m.bytesSinceCheckpoint.Load()
	if bytesWritten >= m.config.CheckpointThresholdBytes {
		_ = m.Checkpoint(c)
	} else if activeEmpty && bytesWritten >= 4096 {
		_ = m.Checkpoint(c)
	}
	return nil
}

// Commit performs the full durable-write-then-finalize sequence. Most
// callers should instead call CommitDurable then apply their engine's own
// commit bookkeeping before FinalizeCommit, so a multi-engine transaction
// can commit every engine between the two halves.
func (m *Manager) Commit(txnID TxnId, c *catalog.Catalog) error {
	if err := m.CommitDurable(txnID); err != nil {
		return err
	}
	return m.FinalizeCommit(txnID, c)
}

// Rollback applies the transaction's undo log in reverse order against the
// catalog, then writes a (non-durable) ROLLBACK record.
func (m *Manager) Rollback(txnID TxnId, c *catalog.Catalog) error {
	m.mu.RLock()
	t, ok := m.active[txnID]
	if !ok {
		m.mu.RUnlock()
		return errors.TransactionError("transaction %d not found", txnID)
	}
	if t.State != StateActive {
		m.mu.RUnlock()
		return errors.TransactionError("transaction %d is not active", txnID)
	}
	undoLog := append([]LogRecord(nil), t.UndoLog...)
	m.mu.RUnlock()

	for i := len(undoLog) - 1; i >= 0; i-- {
		if err := UndoOperation(undoLog[i].Op, c); err != nil {
			return err
		}
	}

	lsn := m.allocLSN()
	record := LogRecord{LSN: lsn, TxnID: txnID, Op: LogOperation{Op: OpRollback}, TimestampMillis: nowMillis()}
	if err := m.writeLog(record); err != nil {
		return err
	}

	m.mu.Lock()
	if t, ok := m.active[txnID]; ok {
		t.State = StateAborted
	}
	delete(m.active, txnID)
	activeEmpty := len(m.active) == 0
	m.mu.Unlock()

	bytesWritten := m.bytesSinceCheckpoint.Load()
	if activeEmpty && bytesWritten > 4096 {
		_ = m.Checkpoint(c)
	}
	return nil
}

type checkpointMarker struct {
	LSN        uint64  `json:"lsn"`
	ActiveTxns []TxnId `json:"active_txns"`
	Timestamp  int64   `json:"timestamp"`
	DurableLSN uint64  `json:"durable_lsn"`
}

// Checkpoint flushes every table to disk, forces a WAL fsync, writes a
// durable CHECKPOINT record plus a wal.checkpoint marker file, and — if no
// transaction is in flight — truncates the WAL log, since everything in it
// is now reflected in the table snapshots.
func (m *Manager) Checkpoint(c *catalog.Catalog) error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	if _, err := m.ForceSync(); err != nil {
		return err
	}

	m.mu.RLock()
	activeIDs := make([]TxnId, 0, len(m.active))
	for id := range m.active {
		activeIDs = append(activeIDs, id)
	}
	m.mu.RUnlock()

	lsn := m.allocLSN()
	record := LogRecord{
		LSN:   lsn,
		TxnID: AutoCommitTxnID,
		Op:    LogOperation{Op: OpCheckpoint, ActiveTxns: activeIDs},
		TimestampMillis: nowMillis(),
	}
	if err := m.writeLogDurable(record); err != nil {
		return err
	}

	marker := checkpointMarker{LSN: lsn, ActiveTxns: activeIDs, Timestamp: nowMillis(), DurableLSN: m.DurableLSN()}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return errors.JsonError("marshal checkpoint marker: %v", err)
	}
	if err := os.WriteFile(m.checkpointPath(), data, 0o644); err != nil {
		return errors.IoError("write checkpoint marker: %v", err)
	}

	if len(activeIDs) == 0 {
		if err := m.worker.truncate(); err != nil {
			return err
		}
		m.bytesSinceCheckpoint.Store(0)
	}
	return nil
}

// Recover replays the WAL from the last checkpoint against c, then advances
// this manager's LSN/TxnId counters past everything it saw.
func (m *Manager) Recover(c *catalog.Catalog) error {
	result, err := recoverFromWAL(m.dataDir, c)
	if err != nil {
		return err
	}
	m.currentLSN.Store(result.nextLSN)
	m.nextTxnID.Store(result.nextTxnID)

	m.mu.Lock()
	for id := range result.committedTxns {
		m.committedTxns[id] = struct{}{}
	}
	m.mu.Unlock()

	return m.Checkpoint(c)
}

// Shutdown stops the WAL worker goroutine, flushing any buffered writes
// first.
func (m *Manager) Shutdown() {
	m.worker.shutdown()
}
