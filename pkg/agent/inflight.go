package agent

import "sync"

// InFlight tracks the transformation identifiers currently queued or being
// processed. An identifier is added at enqueue time and removed only when
// its pipeline terminates, so it appears at most once.
type InFlight struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewInFlight creates an empty in-flight set.
func NewInFlight() *InFlight {
	return &InFlight{ids: map[int64]struct{}{}}
}

// TryAdd adds the identifier and reports whether it was absent. A false
// return means the transformation is already queued or running.
func (s *InFlight) TryAdd(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove drops the identifier. Removing an absent identifier is a no-op.
func (s *InFlight) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Has reports whether the identifier is in flight.
func (s *InFlight) Has(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identifiers in flight.
func (s *InFlight) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
