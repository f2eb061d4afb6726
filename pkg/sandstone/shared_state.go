package sandstone

import "sync"

// sharedState is everything the public Engine methods and the background
// flusher goroutine touch concurrently. Three separate locks, matching the
// teacher's granularity in original_source's SandstoneSharedState: the page
// table is read far more often than written, the dirty set is touched on
// every mutation, and the CRDT map is written by local mutations only when
// EnableDeltaCRDT is on (MergeDelta and PendingDeltas use it either way).
type sharedState struct {
	pagesMu sync.RWMutex
	pages   *pageTable

	dirtyMu sync.Mutex
	dirty   map[string]struct{}

	crdtMu sync.RWMutex
	crdt   map[string]*tableDeltaState
}

func newSharedState() *sharedState {
	return &sharedState{
		pages: newPageTable(),
		dirty: make(map[string]struct{}),
		crdt:  make(map[string]*tableDeltaState),
	}
}

func (s *sharedState) markDirty(tableName string) {
	s.dirtyMu.Lock()
	s.dirty[tableName] = struct{}{}
	s.dirtyMu.Unlock()
}

// drainDirty returns and clears the set of dirty table names.
func (s *sharedState) drainDirty() []string {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	if len(s.dirty) == 0 {
		return nil
	}
	out := make([]string, 0, len(s.dirty))
	for name := range s.dirty {
		out = append(out, name)
	}
	s.dirty = make(map[string]struct{})
	return out
}

func (s *sharedState) dirtyCount() int {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	return len(s.dirty)
}

func (s *sharedState) deltaStateFor(tableName string) *tableDeltaState {
	s.crdtMu.Lock()
	defer s.crdtMu.Unlock()
	st, ok := s.crdt[tableName]
	if !ok {
		st = newTableDeltaState()
		s.crdt[tableName] = st
	}
	return st
}
