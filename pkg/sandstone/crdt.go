package sandstone

import "github.com/bobboyms/minisql-core/pkg/types"

// OpKind distinguishes the two delta operations Sandstone ever produces.
type OpKind int

const (
	OpUpsert OpKind = iota
	OpDelete
)

// DeltaOperation is one row-level change carried inside a DeltaState. Only
// the fields relevant to Op are populated — Go has no tagged union, so this
// mirrors the teacher's flat LogOperation struct (pkg/txn/log.go) rather
// than the Rust enum's per-variant fields.
type DeltaOperation struct {
	Op        OpKind
	RowID     uint64
	Values    []types.Value
	Timestamp uint64
}

// DeltaState is the unit of replication: one Lamport-stamped batch of row
// operations against a single table.
type DeltaState struct {
	TableName  string
	Timestamp  uint64
	Operations []DeltaOperation
}

// tableDeltaState is the delta-CRDT tracker for one table: a Lamport clock,
// the deltas produced locally but not yet drained by the flusher, and a
// last-write-wins timestamp per row used to resolve merge conflicts.
type tableDeltaState struct {
	clock         uint64
	pendingDeltas []DeltaState
	rowTimestamps map[uint64]uint64
}

func newTableDeltaState() *tableDeltaState {
	return &tableDeltaState{rowTimestamps: make(map[uint64]uint64)}
}

// recordOperation advances the local Lamport clock, stamps op with the new
// clock value, records it for LWW bookkeeping, and returns the resulting
// single-operation delta (which is also appended to the pending buffer).
//
// Unlike the Rust original, op arrives without its timestamp pre-set: the
// clock tick computed here is the only timestamp the operation is ever
// given, rather than a placeholder field overwritten in place.
func (s *tableDeltaState) recordOperation(tableName string, op DeltaOperation) DeltaState {
	s.clock++
	op.Timestamp = s.clock
	s.rowTimestamps[op.RowID] = s.clock

	delta := DeltaState{
		TableName:  tableName,
		Timestamp:  s.clock,
		Operations: []DeltaOperation{op},
	}
	s.pendingDeltas = append(s.pendingDeltas, delta)
	return delta
}

// mergeDelta applies an incoming delta using last-write-wins conflict
// resolution and returns only the operations actually applied (older
// writes for an already-seen row are silently dropped, making repeated
// merges of the same delta idempotent). The Lamport clock is then bumped
// to max(local, incoming) so causality is preserved regardless of arrival
// order — merge is commutative and associative by construction.
func (s *tableDeltaState) mergeDelta(delta DeltaState) []DeltaOperation {
	applied := make([]DeltaOperation, 0, len(delta.Operations))

	for _, op := range delta.Operations {
		if existingTS, ok := s.rowTimestamps[op.RowID]; ok && op.Timestamp <= existingTS {
			continue
		}
		s.rowTimestamps[op.RowID] = op.Timestamp
		applied = append(applied, op)
	}

	if delta.Timestamp > s.clock {
		s.clock = delta.Timestamp
	}

	return applied
}

// drainPendingDeltas returns and clears the buffer of locally produced
// deltas awaiting replication.
func (s *tableDeltaState) drainPendingDeltas() []DeltaState {
	out := s.pendingDeltas
	s.pendingDeltas = nil
	return out
}

func (s *tableDeltaState) currentClock() uint64 { return s.clock }
