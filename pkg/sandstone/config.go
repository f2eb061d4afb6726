package sandstone

import (
	"time"

	"github.com/google/uuid"
)

// Config tunes the background flusher and the delta-CRDT tracker. The
// three presets mirror the teacher's GraniteConfig pattern: a struct of
// knobs plus named constructors for the common tradeoffs.
type Config struct {
	// FlushInterval is how often the background worker drains the dirty
	// set and writes dirty tables back to the catalog.
	FlushInterval time.Duration
	// MaxDirtyTables records a dirty-table cap for the preset. The flusher
	// does not read it: dirty tables are written only on each FlushInterval
	// tick and at Shutdown, whatever this value is.
	MaxDirtyTables int
	// EnableDeltaCRDT turns on delta recording for every mutation, so
	// MergeDelta can later replay deltas produced by another replica.
	EnableDeltaCRDT bool
	// ReplicaID identifies this Sandstone instance in emitted deltas, for
	// future multi-replica exchange (the merge protocol itself never
	// ships deltas between processes).
	ReplicaID uuid.UUID
}

// DefaultConfig flushes once a second and never caps the dirty set.
func DefaultConfig() Config {
	return Config{
		FlushInterval:   time.Second,
		MaxDirtyTables:  0,
		EnableDeltaCRDT: true,
		ReplicaID:       uuid.New(),
	}
}

// HighThroughputConfig batches longer (5s) to amortize flush cost under
// write-heavy load, at the cost of a wider data-loss window.
func HighThroughputConfig() Config {
	c := DefaultConfig()
	c.FlushInterval = 5 * time.Second
	return c
}

// LowLatencyConfig flushes every 500ms and sets MaxDirtyTables to 10,
// trading throughput for a narrower data-loss window.
func LowLatencyConfig() Config {
	c := DefaultConfig()
	c.FlushInterval = 500 * time.Millisecond
	c.MaxDirtyTables = 10
	return c
}
