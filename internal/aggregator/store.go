package aggregator

import (
	"sync/atomic"

	"orderviews/internal/models"
)

// Store holds the current view snapshot behind a single atomic pointer. It is
// the only shared mutable resource in the engine: every read and write of
// ViewState goes through Read/Update, which serialize logically-concurrent
// transforms into one linearizable order without locks.
type Store struct {
	state atomic.Pointer[models.ViewState]
}

// NewStore creates a store seeded with the given snapshot.
func NewStore(initial *models.ViewState) *Store {
	s := &Store{}
	s.state.Store(initial)
	return s
}

// Update atomically applies transform to the current snapshot and returns the
// committed result. Under contention the transform is re-run against the
// newer snapshot (compare-and-swap retry), so transforms must be pure — this
// is why persistence is kept outside the transform.
func (s *Store) Update(transform func(*models.ViewState) *models.ViewState) *models.ViewState {
	for {
		current := s.state.Load()
		next := transform(current)
		if s.state.CompareAndSwap(current, next) {
			return next
		}
	}
}

// Read returns the latest committed snapshot. Non-blocking.
func (s *Store) Read() *models.ViewState {
	return s.state.Load()
}

// Replace swaps in a fresh snapshot unconditionally, used by reset.
func (s *Store) Replace(state *models.ViewState) *models.ViewState {
	s.state.Store(state)
	return state
}
