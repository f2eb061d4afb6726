package txn

import (
	"bufio"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bobboyms/minisql-core/pkg/errors"
	"github.com/bobboyms/minisql-core/pkg/wal"
)

// snappyThreshold is the payload size above which a record is snappy
// compressed before being framed. Small records aren't worth the codec
// overhead; large JSON/Text values are, per §11's per-record compression
// home (zstd handles whole-file vacuum compaction separately).
const snappyThreshold = 256

// writeRequest is one pending append, answered on done once the record has
// been written to the OS buffer (not necessarily fsynced).
type writeRequest struct {
	record LogRecord
	done   chan error
}

type workerMessage struct {
	write     *writeRequest
	truncate  chan error
	forceSync chan forceSyncResult
	shutdown  chan struct{}
}

type forceSyncResult struct {
	lsn uint64
	err error
}

// worker is the dedicated goroutine that owns the WAL file: every append
// and every fsync happens here, so concurrent callers never race on the
// file descriptor. It batches writes for up to Config.BatchTimeout (or
// Config.MaxBatchSize records, whichever comes first) before fsyncing once
// for the whole batch — the "group commit" the spec calls for.
type worker struct {
	path    string
	config  Config
	latch   *commitLatch
	inbox   chan workerMessage
	done    chan struct{}
}

func newWorker(walPath string, config Config, latch *commitLatch) (*worker, error) {
	if err := os.MkdirAll(filepath.Dir(walPath), 0o755); err != nil {
		return nil, errors.IoError("create WAL directory: %v", err)
	}
	w := &worker{
		path:   walPath,
		config: config,
		latch:  latch,
		inbox:  make(chan workerMessage, 10000),
		done:   make(chan struct{}),
	}
	f, err := os.OpenFile(walPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errors.IoError("open WAL file %q: %v", walPath, err)
	}
	go w.run(f)
	return w, nil
}

func (w *worker) run(f *os.File) {
	defer f.Close()
	bw := bufio.NewWriterSize(f, 64*1024)

	var unfsyncedBytes int64
	var highestLSN uint64
	batchTimer := time.NewTimer(w.config.BatchTimeout)
	defer batchTimer.Stop()
	if w.config.BatchTimeout <= 0 {
		batchTimer.Stop()
	}

	pendingBatch := 0

	flush := func() error {
		if err := bw.Flush(); err != nil {
			return errors.IoError("flush WAL buffer: %v", err)
		}
		if err := f.Sync(); err != nil {
			return errors.IoError("fsync WAL file: %v", err)
		}
		unfsyncedBytes = 0
		pendingBatch = 0
		w.latch.signalDurable(highestLSN)
		return nil
	}

	for {
		select {
		case msg := <-w.inbox:
			switch {
			case msg.write != nil:
				req := msg.write
				entry := wal.AcquireEntry()
				entry.Header = wal.WALHeader{
					Magic:      wal.WALMagic,
					Version:    wal.WALVersion,
					EntryType:  entryTypeFor(req.record.Op.Op),
					LSN:        req.record.LSN,
					PayloadLen: 0,
				}
				payload, err := bson.Marshal(req.record)
				if err != nil {
					wal.ReleaseEntry(entry)
					req.done <- errors.JsonError("marshal log record: %v", err)
					continue
				}
				if len(payload) > snappyThreshold {
					payload = snappy.Encode(nil, payload)
					entry.Header.Reserved |= wal.FlagCompressed
				}
				entry.Payload = append(entry.Payload[:0], payload...)
				entry.Header.PayloadLen = uint32(len(payload))
				entry.Header.CRC32 = wal.CalculateCRC32(payload)

				n, err := entry.WriteTo(bw)
				wal.ReleaseEntry(entry)
				if err != nil {
					req.done <- errors.IoError("write WAL entry: %v", err)
					continue
				}
				unfsyncedBytes += n
				pendingBatch++
				if req.record.LSN > highestLSN {
					highestLSN = req.record.LSN
				}
				w.latch.updateWritten(req.record.LSN)
				req.done <- nil

				if w.config.FsyncInterval <= 0 ||
					pendingBatch >= w.config.MaxBatchSize ||
					unfsyncedBytes >= w.config.MaxUnfsyncedBytes {
					if err := flush(); err != nil {
						// surfaced to the next waiter via force-sync/commit wait timeout
						_ = err
					}
				}

			case msg.truncate != nil:
				_ = flush()
				if err := bw.Flush(); err != nil {
					msg.truncate <- errors.IoError("flush before truncate: %v", err)
					continue
				}
				if err := f.Truncate(0); err != nil {
					msg.truncate <- errors.IoError("truncate WAL file: %v", err)
					continue
				}
				if _, err := f.Seek(0, 0); err != nil {
					msg.truncate <- errors.IoError("seek WAL file: %v", err)
					continue
				}
				msg.truncate <- nil

			case msg.forceSync != nil:
				err := flush()
				msg.forceSync <- forceSyncResult{lsn: w.latch.durable(), err: err}

			case msg.shutdown != nil:
				_ = flush()
				w.latch.signalShutdown()
				close(msg.shutdown)
				return
			}

		case <-batchTimer.C:
			if pendingBatch > 0 {
				_ = flush()
			}
			if w.config.FsyncInterval > 0 {
				batchTimer.Reset(w.config.FsyncInterval)
			}
		}
	}
}

func entryTypeFor(op OpKind) uint8 {
	switch op {
	case OpInsert:
		return wal.EntryInsert
	case OpUpdate:
		return wal.EntryUpdate
	case OpDelete:
		return wal.EntryDelete
	case OpBegin:
		return wal.EntryBegin
	case OpCommit:
		return wal.EntryCommit
	case OpRollback:
		return wal.EntryAbort
	default:
		return wal.EntryInsert
	}
}

func (w *worker) write(record LogRecord) error {
	done := make(chan error, 1)
	w.inbox <- workerMessage{write: &writeRequest{record: record, done: done}}
	return <-done
}

func (w *worker) waitForDurable(lsn uint64) error {
	return w.latch.waitForDurable(lsn, 30*time.Second)
}

func (w *worker) forceSync() (uint64, error) {
	resp := make(chan forceSyncResult, 1)
	w.inbox <- workerMessage{forceSync: resp}
	r := <-resp
	return r.lsn, r.err
}

func (w *worker) truncate() error {
	resp := make(chan error, 1)
	w.inbox <- workerMessage{truncate: resp}
	return <-resp
}

func (w *worker) shutdown() {
	done := make(chan struct{})
	w.inbox <- workerMessage{shutdown: done}
	<-done
}
