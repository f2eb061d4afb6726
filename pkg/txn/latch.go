package txn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobboyms/minisql-core/pkg/errors"
)

// commitLatch lets many committing goroutines share one fsync: each waits
// on durableLSN to reach its own commit's LSN rather than calling fsync
// itself. The WAL worker goroutine is the only writer of durableLSN; every
// other goroutine only reads it and waits on the condition variable.
type commitLatch struct {
	mu         sync.Mutex
	cond       *sync.Cond
	durableLSN uint64
	writtenLSN uint64
	shutdown   atomic.Bool
}

func newCommitLatch() *commitLatch {
	l := &commitLatch{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *commitLatch) durable() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.durableLSN
}

// waitForDurable blocks until lsn has been fsynced, the latch is shut down,
// or timeout elapses.
func (l *commitLatch) waitForDurable(lsn uint64, timeout time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.durableLSN >= lsn {
		return nil
	}

	deadline := time.Now().Add(timeout)
	var timedOut atomic.Bool

	// sync.Cond has no Wait-with-timeout; a watchdog goroutine broadcasts
	// once the deadline passes so the waiter below always wakes up.
	timer := time.AfterFunc(timeout, func() {
		timedOut.Store(true)
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer timer.Stop()

	for l.durableLSN < lsn {
		if l.shutdown.Load() {
			return errors.IoError("WAL worker shutdown during wait for LSN %d", lsn)
		}
		if timedOut.Load() || time.Now().After(deadline) {
			return errors.IoError("timeout waiting for LSN %d to become durable (current: %d)", lsn, l.durableLSN)
		}
		l.cond.Wait()
	}
	return nil
}

// signalDurable publishes a new high-water mark and wakes every waiter.
func (l *commitLatch) signalDurable(lsn uint64) {
	l.mu.Lock()
	if lsn > l.durableLSN {
		l.durableLSN = lsn
	}
	l.cond.Broadcast()
	l.mu.Unlock()
}

func (l *commitLatch) updateWritten(lsn uint64) {
	l.mu.Lock()
	if lsn > l.writtenLSN {
		l.writtenLSN = lsn
	}
	l.mu.Unlock()
}

func (l *commitLatch) signalShutdown() {
	l.mu.Lock()
	l.shutdown.Store(true)
	l.cond.Broadcast()
	l.mu.Unlock()
}
