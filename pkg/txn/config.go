package txn

import "time"

// Config controls Granite's group-commit and deferred-fsync behavior: how
// long a batch of writes waits before being flushed, how large it can grow,
// and when an automatic checkpoint fires.
type Config struct {
	// BatchTimeout bounds how long the worker waits for more writes before
	// flushing whatever it has buffered.
	BatchTimeout time.Duration
	// MaxBatchSize forces a flush once this many records are buffered.
	MaxBatchSize int
	// CheckpointThresholdBytes triggers an automatic checkpoint once this
	// many bytes have been written since the last one.
	CheckpointThresholdBytes uint64
	// FsyncInterval is how often the worker fsyncs the WAL file in the
	// background. 0 means fsync after every batch (synchronous mode).
	FsyncInterval time.Duration
	// MaxUnfsyncedBytes forces an immediate fsync once this many bytes are
	// buffered but not yet durable, bounding memory growth under load.
	MaxUnfsyncedBytes int64
}

// DefaultConfig balances latency and throughput for most workloads.
func DefaultConfig() Config {
	return Config{
		BatchTimeout:             5 * time.Millisecond,
		MaxBatchSize:             128,
		CheckpointThresholdBytes: 10 * 1024 * 1024,
		FsyncInterval:            50 * time.Millisecond,
		MaxUnfsyncedBytes:        1 << 20,
	}
}

// SynchronousConfig fsyncs after every batch: lower throughput, lower
// per-commit latency variance.
func SynchronousConfig() Config {
	c := DefaultConfig()
	c.FsyncInterval = 0
	return c
}

// HighThroughputConfig trades commit latency for batching efficiency.
func HighThroughputConfig() Config {
	c := DefaultConfig()
	c.BatchTimeout = 10 * time.Millisecond
	c.MaxBatchSize = 512
	c.FsyncInterval = 100 * time.Millisecond
	c.MaxUnfsyncedBytes = 4 << 20
	return c
}
