package mapping

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ucbridge/ucbridge-go/pkg/midi"
)

// Set errors.
var (
	ErrNotFound    = errors.New("mapping not found")
	ErrDuplicateID = errors.New("duplicate mapping id")
)

// Set is a read-mostly mapping collection. Writers swap in a new slice so
// readers never observe a partial update.
type Set struct {
	mu    sync.RWMutex
	items []ParameterMapping
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{}
}

// Replace validates all mappings and swaps them in atomically. On error the
// set is unchanged.
func (s *Set) Replace(mappings []ParameterMapping) ([]ParameterMapping, error) {
	next := make([]ParameterMapping, 0, len(mappings))
	seen := make(map[string]bool, len(mappings))
	for i, m := range mappings {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("mapping %d: %w", i, err)
		}
		m = m.withID()
		if seen[m.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
		seen[m.ID] = true
		next = append(next, m)
	}

	s.mu.Lock()
	s.items = next
	s.mu.Unlock()
	return clone(next), nil
}

// Add validates m, assigns an ID if needed and appends it.
func (s *Set) Add(m ParameterMapping) (ParameterMapping, error) {
	if err := m.Validate(); err != nil {
		return ParameterMapping{}, err
	}
	m = m.withID()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.ID == m.ID {
			return ParameterMapping{}, fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
	}
	next := make([]ParameterMapping, len(s.items), len(s.items)+1)
	copy(next, s.items)
	s.items = append(next, m)
	return m, nil
}

// Remove deletes the mapping with id and returns it.
func (s *Set) Remove(id string) (ParameterMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.items {
		if m.ID != id {
			continue
		}
		next := make([]ParameterMapping, 0, len(s.items)-1)
		next = append(next, s.items[:i]...)
		next = append(next, s.items[i+1:]...)
		s.items = next
		return m, nil
	}
	return ParameterMapping{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Clear removes all mappings and returns them.
func (s *Set) Clear() []ParameterMapping {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.items
	s.items = nil
	return old
}

// Get returns the mapping with id.
func (s *Set) Get(id string) (ParameterMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.items {
		if m.ID == id {
			return m, true
		}
	}
	return ParameterMapping{}, false
}

// All returns a copy of every mapping in insertion order.
func (s *Set) All() []ParameterMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.items)
}

// Len returns the number of mappings.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// MatchMIDI returns the mappings msg feeds.
func (s *Set) MatchMIDI(msg midi.Message) []ParameterMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ParameterMapping
	for _, m := range s.items {
		if m.MatchesMIDI(msg) {
			out = append(out, m)
		}
	}
	return out
}

// MatchTarget returns the mappings targeting the device parameter.
func (s *Set) MatchTarget(deviceID, path string) []ParameterMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ParameterMapping
	for _, m := range s.items {
		if m.Target.DeviceID == deviceID && m.Target.Path == path {
			out = append(out, m)
		}
	}
	return out
}

// Targets reports whether any mapping targets the device parameter.
func (s *Set) Targets(deviceID, path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.items {
		if m.Target.DeviceID == deviceID && m.Target.Path == path {
			return true
		}
	}
	return false
}

func clone(ms []ParameterMapping) []ParameterMapping {
	if ms == nil {
		return nil
	}
	return append([]ParameterMapping(nil), ms...)
}
