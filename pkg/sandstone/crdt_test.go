package sandstone

import "testing"

func TestMergeDeltaIsIdempotent(t *testing.T) {
	state := newTableDeltaState()
	delta := DeltaState{
		TableName: "t",
		Timestamp: 10,
		Operations: []DeltaOperation{
			{Op: OpUpsert, RowID: 1, Timestamp: 10},
		},
	}

	applied1 := state.mergeDelta(delta)
	applied2 := state.mergeDelta(delta)
	applied3 := state.mergeDelta(delta)

	if len(applied1) != 1 {
		t.Fatalf("first merge: expected 1 applied op, got %d", len(applied1))
	}
	if len(applied2) != 0 || len(applied3) != 0 {
		t.Fatalf("repeated merges of the same delta must be no-ops, got %d and %d", len(applied2), len(applied3))
	}
}

func TestMergeDeltaIsCommutative(t *testing.T) {
	deltaA := DeltaState{
		TableName:  "t",
		Timestamp:  10,
		Operations: []DeltaOperation{{Op: OpUpsert, RowID: 1, Timestamp: 10}},
	}
	deltaB := DeltaState{
		TableName:  "t",
		Timestamp:  20,
		Operations: []DeltaOperation{{Op: OpUpsert, RowID: 2, Timestamp: 20}},
	}

	s1 := newTableDeltaState()
	s1.mergeDelta(deltaA)
	s1.mergeDelta(deltaB)

	s2 := newTableDeltaState()
	s2.mergeDelta(deltaB)
	s2.mergeDelta(deltaA)

	if s1.clock != s2.clock {
		t.Fatalf("clocks diverged: %d vs %d", s1.clock, s2.clock)
	}
	if len(s1.rowTimestamps) != len(s2.rowTimestamps) {
		t.Fatalf("row timestamp maps diverged in size")
	}
	for row, ts := range s1.rowTimestamps {
		if s2.rowTimestamps[row] != ts {
			t.Fatalf("row %d: timestamps diverged (%d vs %d)", row, ts, s2.rowTimestamps[row])
		}
	}
}

func TestMergeDeltaLWWNewerWins(t *testing.T) {
	state := newTableDeltaState()
	older := DeltaState{
		TableName:  "t",
		Timestamp:  10,
		Operations: []DeltaOperation{{Op: OpUpsert, RowID: 1, Timestamp: 10}},
	}
	newer := DeltaState{
		TableName:  "t",
		Timestamp:  20,
		Operations: []DeltaOperation{{Op: OpUpsert, RowID: 1, Timestamp: 20}},
	}

	// Apply newer first, then an older write for the same row must be dropped.
	applied1 := state.mergeDelta(newer)
	applied2 := state.mergeDelta(older)

	if len(applied1) != 1 {
		t.Fatalf("expected newer write to apply, got %d", len(applied1))
	}
	if len(applied2) != 0 {
		t.Fatalf("expected older write to be skipped by LWW, got %d applied", len(applied2))
	}
}

func TestMergeDeltaDeleteTombstone(t *testing.T) {
	state := newTableDeltaState()
	state.mergeDelta(DeltaState{
		TableName:  "t",
		Timestamp:  10,
		Operations: []DeltaOperation{{Op: OpUpsert, RowID: 1, Timestamp: 10}},
	})
	applied := state.mergeDelta(DeltaState{
		TableName:  "t",
		Timestamp:  20,
		Operations: []DeltaOperation{{Op: OpDelete, RowID: 1, Timestamp: 20}},
	})

	if len(applied) != 1 || applied[0].Op != OpDelete {
		t.Fatalf("expected one Delete operation to apply, got %+v", applied)
	}
}

func TestLamportClockAdvancesToIncoming(t *testing.T) {
	state := newTableDeltaState()
	if state.currentClock() != 0 {
		t.Fatalf("expected fresh clock to be 0, got %d", state.currentClock())
	}
	state.mergeDelta(DeltaState{
		TableName:  "t",
		Timestamp:  100,
		Operations: []DeltaOperation{{Op: OpUpsert, RowID: 1, Timestamp: 100}},
	})
	if state.currentClock() != 100 {
		t.Fatalf("expected clock to advance to 100, got %d", state.currentClock())
	}
}

func TestRecordOperationStampsIncrementingClock(t *testing.T) {
	state := newTableDeltaState()
	d1 := state.recordOperation("t", DeltaOperation{Op: OpUpsert, RowID: 1})
	d2 := state.recordOperation("t", DeltaOperation{Op: OpUpsert, RowID: 2})

	if d1.Timestamp != 1 || d2.Timestamp != 2 {
		t.Fatalf("expected clock to tick 1, 2; got %d, %d", d1.Timestamp, d2.Timestamp)
	}
	if d1.Operations[0].Timestamp != 1 || d2.Operations[0].Timestamp != 2 {
		t.Fatalf("expected each operation stamped with its own tick, got %d, %d",
			d1.Operations[0].Timestamp, d2.Operations[0].Timestamp)
	}
}
