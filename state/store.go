// Package state is the UI-visible snapshot container for shared entities.
// The mutation coordinator reads previous snapshots from a Store and writes
// predicted, confirmed, or rolled-back snapshots into it; list order is
// preserved so a failed deletion can reinsert an entity at its prior
// position.
package state

import "sync"

// Store holds entity snapshots of one kind, keyed by ID, in insertion
// order. Values are copied in and out, so a snapshot taken from the store
// is immune to later writes.
type Store[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

func NewStore[T any]() *Store[T] {
	return &Store[T]{items: make(map[string]T)}
}

// Get returns the current snapshot for id.
func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[id]
	return v, ok
}

// Put inserts or replaces the snapshot for id. New entities append to the
// list order.
func (s *Store[T]) Put(id string, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = v
}

// Replace overwrites the snapshot for id only if the entity is still
// present. It reports whether the write happened; a false return means the
// target disappeared while a request was in flight and the result must be
// discarded.
func (s *Store[T]) Replace(id string, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	s.items[id] = v
	return true
}

// Remove deletes the snapshot for id and returns its list position, for
// reinsertion if the removal has to be undone.
func (s *Store[T]) Remove(id string) (T, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[id]
	if !ok {
		var zero T
		return zero, -1, false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return v, i, true
		}
	}
	return v, -1, true
}

// Insert places a snapshot at a specific list position. Positions past the
// end append.
func (s *Store[T]) Insert(id string, v T, at int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		s.items[id] = v
		return
	}
	s.items[id] = v
	if at < 0 || at >= len(s.order) {
		s.order = append(s.order, id)
		return
	}
	s.order = append(s.order[:at], append([]string{id}, s.order[at:]...)...)
}

// Rename rebinds an entity to a new ID, keeping its list position. Used
// when a provisional client-side ID is replaced by the server-assigned one.
func (s *Store[T]) Rename(oldID, newID string, v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[oldID]; !ok {
		return false
	}
	delete(s.items, oldID)
	s.items[newID] = v
	for i, oid := range s.order {
		if oid == oldID {
			s.order[i] = newID
			break
		}
	}
	return true
}

// List returns all snapshots in list order.
func (s *Store[T]) List() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Len returns the number of stored snapshots.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
