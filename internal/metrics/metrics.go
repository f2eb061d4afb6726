// Package metrics wires the storage core's counters, gauges, and
// histograms to Prometheus. Every exported method is safe to call on a
// nil *Registry: callers that don't want metrics simply don't construct
// one, rather than threading an enabled/disabled flag through every call
// site (txn.Manager.SetMetrics and sandstone.New's last argument accept a
// nil *Registry for exactly this reason).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector this module exposes.
type Registry struct {
	reg *prometheus.Registry

	walRecordsWritten prometheus.Counter
	walRecordsFsynced prometheus.Counter
	walFsyncErrors    prometheus.Counter
	durableLSN        prometheus.Gauge
	writtenLSN        prometheus.Gauge
	commitWaitSeconds prometheus.Histogram

	sandstoneFlushes      *prometheus.CounterVec
	sandstoneFlushErrors  *prometheus.CounterVec
	sandstoneFlushSeconds prometheus.Histogram
}

// New builds a Registry backed by a fresh prometheus.Registry (not the
// global DefaultRegisterer, so a process can run more than one storage
// core without collector-name collisions).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		walRecordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisql",
			Subsystem: "wal",
			Name:      "records_written_total",
			Help:      "WAL records appended to the buffered writer.",
		}),
		walRecordsFsynced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisql",
			Subsystem: "wal",
			Name:      "records_fsynced_total",
			Help:      "WAL records covered by a completed group-commit fsync.",
		}),
		walFsyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "minisql",
			Subsystem: "wal",
			Name:      "fsync_errors_total",
			Help:      "fsync calls against the WAL file that returned an error.",
		}),
		durableLSN: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minisql",
			Subsystem: "wal",
			Name:      "durable_lsn",
			Help:      "Highest LSN known to be fsynced to disk.",
		}),
		writtenLSN: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "minisql",
			Subsystem: "wal",
			Name:      "written_lsn",
			Help:      "Highest LSN written to the OS buffer, not necessarily fsynced.",
		}),
		commitWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "minisql",
			Subsystem: "txn",
			Name:      "commit_latch_wait_seconds",
			Help:      "Time a committing goroutine spent waiting on the commit latch for its LSN to become durable.",
			Buckets:   prometheus.DefBuckets,
		}),
		sandstoneFlushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minisql",
			Subsystem: "sandstone",
			Name:      "flush_cycles_total",
			Help:      "Dirty-table flush cycles completed by the Sandstone background flusher.",
		}, []string{"table"}),
		sandstoneFlushErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "minisql",
			Subsystem: "sandstone",
			Name:      "flush_errors_total",
			Help:      "Sandstone flush cycles that failed to persist a dirty table.",
		}, []string{"table"}),
		sandstoneFlushSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "minisql",
			Subsystem: "sandstone",
			Name:      "flush_duration_seconds",
			Help:      "Wall-clock duration of one Sandstone dirty-table flush.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.walRecordsWritten,
		r.walRecordsFsynced,
		r.walFsyncErrors,
		r.durableLSN,
		r.writtenLSN,
		r.commitWaitSeconds,
		r.sandstoneFlushes,
		r.sandstoneFlushErrors,
		r.sandstoneFlushSeconds,
	)
	return r
}

// Handler exposes the registry via the standard Prometheus text
// exposition format, for mounting on an HTTP mux.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) RecordWALWrite() {
	if r == nil {
		return
	}
	r.walRecordsWritten.Inc()
}

func (r *Registry) RecordWALFsync(records int) {
	if r == nil {
		return
	}
	r.walRecordsFsynced.Add(float64(records))
}

func (r *Registry) RecordWALFsyncError() {
	if r == nil {
		return
	}
	r.walFsyncErrors.Inc()
}

func (r *Registry) SetDurableLSN(lsn uint64) {
	if r == nil {
		return
	}
	r.durableLSN.Set(float64(lsn))
}

func (r *Registry) SetWrittenLSN(lsn uint64) {
	if r == nil {
		return
	}
	r.writtenLSN.Set(float64(lsn))
}

func (r *Registry) ObserveCommitWait(d time.Duration) {
	if r == nil {
		return
	}
	r.commitWaitSeconds.Observe(d.Seconds())
}

func (r *Registry) ObserveSandstoneFlush(table string, d time.Duration, err error) {
	if r == nil {
		return
	}
	r.sandstoneFlushes.WithLabelValues(table).Inc()
	r.sandstoneFlushSeconds.Observe(d.Seconds())
	if err != nil {
		r.sandstoneFlushErrors.WithLabelValues(table).Inc()
	}
}
