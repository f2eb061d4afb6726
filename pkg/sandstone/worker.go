package sandstone

import (
	"time"

	"github.com/bobboyms/minisql-core/internal/logging"
	"github.com/bobboyms/minisql-core/internal/metrics"
	"github.com/bobboyms/minisql-core/pkg/catalog"
)

// flusher is the background goroutine that periodically drains the dirty
// set and writes each dirty table's current page-table contents back to
// the catalog, so Sandstone's in-memory writes eventually reach disk.
type flusher struct {
	state    *sharedState
	catalog  *catalog.Catalog
	interval time.Duration
	log      *logging.Logger
	metrics  *metrics.Registry

	stopCh chan struct{}
	done   chan struct{}
}

func newFlusher(state *sharedState, cat *catalog.Catalog, interval time.Duration, log *logging.Logger, reg *metrics.Registry) *flusher {
	f := &flusher{
		state:    state,
		catalog:  cat,
		interval: interval,
		log:      log,
		metrics:  reg,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go f.loop()
	return f
}

func (f *flusher) loop() {
	defer close(f.done)
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			f.flushDirtyTables()
			return
		case <-ticker.C:
			f.flushDirtyTables()
		}
	}
}

func (f *flusher) flushDirtyTables() {
	dirty := f.state.drainDirty()
	if len(dirty) == 0 {
		return
	}
	f.log.Debug("flushing dirty tables", "count", len(dirty))

	for _, tableName := range dirty {
		start := time.Now()
		f.state.pagesMu.RLock()
		rows := f.state.pages.allRows(tableName)
		f.state.pagesMu.RUnlock()

		err := f.catalog.ReplaceTableRows(tableName, rows)
		f.metrics.ObserveSandstoneFlush(tableName, time.Since(start), err)
		if err != nil {
			f.log.Error("flush failed, retrying later", "table", tableName, "error", err)
			f.state.markDirty(tableName)
		}
	}
}

// stop signals the loop to perform one final flush and exit, and blocks
// until it has done so.
func (f *flusher) stop() {
	close(f.stopCh)
	<-f.done
}
