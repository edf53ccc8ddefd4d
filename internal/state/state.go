// Package state holds the supervisor's in-memory supervisory state: the
// derived status, the cooperative pause flag, the current work unit, and
// any pending reindex request. Every read-modify-write happens under one
// exclusive lock acquisition; paused is read separately without the lock
// so a chunk boundary check never blocks on whatever else is touching
// state.
package state

import (
	"sync"
	"sync/atomic"
)

// Status is the operator-facing status surfaced by the control API.
type Status string

const (
	StatusRunning    Status = "running"
	StatusPaused     Status = "paused"
	StatusReindexing Status = "reindexing"
)

// IndexProgress describes a work unit the supervisor is (or was)
// processing: a block range, the cursor within it, which strategy (if
// any) it's scoped to, and whether it's a reindex.
type IndexProgress struct {
	From      uint64
	To        uint64
	Current   uint64
	Strategy  string // empty means "all strategies"
	IsReindex bool
}

// Snapshot is an immutable copy of supervisory state, safe to read
// without further locking.
type Snapshot struct {
	Status         Status
	Paused         bool
	Head           uint64
	LastBlock      uint64
	Index          *IndexProgress
	PendingReindex *IndexProgress
}

// State is the supervisor's single source of truth for everything the
// control API and follower loop coordinate through.
type State struct {
	mu sync.RWMutex

	paused atomic.Bool

	status         Status
	head           uint64
	lastBlock      uint64
	index          *IndexProgress
	pendingReindex *IndexProgress
}

// New builds State with last_block seeded at startBlock and status
// running.
func New(startBlock uint64) *State {
	return &State{status: StatusRunning, lastBlock: startBlock}
}

// Snapshot returns a consistent copy of all fields, including paused.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Status:         s.status,
		Paused:         s.paused.Load(),
		Head:           s.head,
		LastBlock:      s.lastBlock,
		Index:          cloneProgress(s.index),
		PendingReindex: cloneProgress(s.pendingReindex),
	}
}

// HasPendingReindex reports whether a reindex request is queued, without
// taking a copy of the full state.
func (s *State) HasPendingReindex() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingReindex != nil
}

// Paused reads the cooperative pause flag without taking the state lock,
// so chunk-boundary checks never contend with API handlers or the
// follower's own lock-held writes.
func (s *State) Paused() bool {
	return s.paused.Load()
}

// Pause sets paused and status := Paused. Idempotent.
func (s *State) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused.Store(true)
	s.status = StatusPaused
}

// Resume clears paused. Status becomes Reindexing if the in-flight index
// is a reindex, else Running.
func (s *State) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused.Store(false)
	if s.index != nil && s.index.IsReindex {
		s.status = StatusReindexing
	} else {
		s.status = StatusRunning
	}
}

// SubmitReindex stores req as the pending reindex request, overwriting
// any existing one, and clears paused so the follower wakes up even
// while paused.
func (s *State) SubmitReindex(req IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reqCopy := req
	s.pendingReindex = &reqCopy
	s.paused.Store(false)
}

// Reset clears index and pending_reindex, sets status running, and
// clears paused. Persisted coverage is untouched; this only affects
// in-memory supervisory state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = nil
	s.pendingReindex = nil
	s.status = StatusRunning
	s.paused.Store(false)
}

// TakePendingReindex atomically removes and returns the pending reindex
// request, or nil if none is queued.
func (s *State) TakePendingReindex() *IndexProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	req := s.pendingReindex
	s.pendingReindex = nil
	return req
}

// SetIndex installs the current work unit and, when it's a reindex, sets
// status to Reindexing.
func (s *State) SetIndex(idx *IndexProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = idx
	if idx != nil && idx.IsReindex {
		s.status = StatusReindexing
	}
}

// UpdateCurrent advances the in-flight index's cursor. No-op if there is
// no in-flight index.
func (s *State) UpdateCurrent(cur uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		s.index.Current = cur
	}
}

// ClearIndex removes the in-flight index and, unless paused, sets status
// running. A queued reindex request does not affect the status set here.
func (s *State) ClearIndex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = nil
	if !s.paused.Load() {
		s.status = StatusRunning
	}
}

// SetHeadAndLastBlock publishes the latest observed chain tip and the
// supervisor's cursor into state.
func (s *State) SetHeadAndLastBlock(head, lastBlock uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.head = head
	s.lastBlock = lastBlock
}

// LastBlock returns the current block cursor under the read lock.
func (s *State) LastBlock() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastBlock
}

func cloneProgress(p *IndexProgress) *IndexProgress {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}
