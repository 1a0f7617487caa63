package store

import (
	"sync"
)

// Store serializes dispatch over the reducer. Readers get immutable
// snapshots and never block writers for longer than a pointer swap.
type Store struct {
	mu        sync.RWMutex
	state     State
	listeners []func(Action, State)
}

// New creates a store with empty state.
func New(maxPerColumn int) *Store {
	return &Store{state: NewState(maxPerColumn)}
}

// Dispatch applies a to the current state.
func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	s.state = Reduce(s.state, a)
	next := s.state
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(a, next)
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// OnDispatch registers fn to be called after every dispatch, outside the lock.
func (s *Store) OnDispatch(fn func(Action, State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}
