// Package job runs replay processing jobs in the background and tracks
// their externally pollable status.
package job

import (
	"sync"
	"time"
)

// State is a job's lifecycle state. States only move forward: queued →
// processing → completed or failed. Terminal states are sticky.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) rank() int {
	switch s {
	case StateQueued:
		return 0
	case StateProcessing:
		return 1
	case StateCompleted, StateFailed:
		return 2
	}
	return -1
}

// Status is one job's externally visible state snapshot.
type Status struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Progress  int       `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a concurrent job-status table with TTL eviction of terminal
// entries. Jobs for distinct ids never interfere.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]Status
	ttl  time.Duration

	now func() time.Time
}

// DefaultTTL is how long finished jobs stay pollable.
const DefaultTTL = time.Hour

// NewStore creates a status store. A non-positive ttl falls back to
// DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		jobs: make(map[string]Status),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Create registers a new queued job. An existing job with the same id is
// reset only if it already finished.
func (s *Store) Create(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[id]; ok && !existing.State.Terminal() {
		return false
	}
	now := s.now()
	s.jobs[id] = Status{
		ID:        id,
		State:     StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return true
}

// Update advances a job's state and progress. Backward state transitions
// and updates to terminal jobs are silently refused; progress never
// decreases.
func (s *Store) Update(id string, state State, progress int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok || current.State.Terminal() || state.rank() < current.State.rank() {
		return false
	}
	current.State = state
	if progress > current.Progress {
		current.Progress = progress
	}
	current.UpdatedAt = s.now()
	s.jobs[id] = current
	return true
}

// Fail marks a job failed with a human-readable reason.
func (s *Store) Fail(id, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok || current.State.Terminal() {
		return false
	}
	current.State = StateFailed
	current.Error = reason
	current.UpdatedAt = s.now()
	s.jobs[id] = current
	return true
}

// Get returns a job's status snapshot.
func (s *Store) Get(id string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.jobs[id]
	return st, ok
}

// Delete removes a job entry.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// Len returns the number of tracked jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// Sweep evicts terminal jobs older than the TTL and returns how many
// were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, st := range s.jobs {
		if st.State.Terminal() && st.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
