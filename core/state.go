package core

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"sync"
)

// State is the run-scoped key/value mapping agents hand results through.
// Keys iterate in first-write order; overwriting a value keeps its position.
// It is safe for concurrent access.
type State struct {
	mu      sync.RWMutex
	keys    []string
	values  map[string]any
	lastKey string
}

// NewState builds a State seeded with the given values in sorted key order.
func NewState(seed map[string]any) *State {
	s := &State{values: make(map[string]any, len(seed))}
	for _, k := range slices.Sorted(maps.Keys(seed)) {
		s.setLocked(k, seed[k])
	}
	s.lastKey = ""
	return s
}

// Get returns the value and existence flag for a key.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Set writes a value, appending the key if it is new.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(key, value)
}

func (s *State) setLocked(key string, value any) {
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
	s.lastKey = key
}

// Merge applies the given keys in order, reading their values from values.
// Keys missing from values are skipped.
func (s *State) Merge(keys []string, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if v, ok := values[k]; ok {
			s.setLocked(k, v)
		}
	}
}

// Keys returns the keys in first-write order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Snapshot returns a shallow copy of the current values.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values)
}

// Clone returns an independent shallow copy preserving key order.
func (s *State) Clone() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := &State{keys: make([]string, len(s.keys)), values: maps.Clone(s.values), lastKey: s.lastKey}
	copy(c.keys, s.keys)
	if c.values == nil {
		c.values = map[string]any{}
	}
	return c
}

// LastWritten returns the most recently written key and its value.
func (s *State) LastWritten() (string, any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastKey == "" {
		return "", nil, false
	}
	return s.lastKey, s.values[s.lastKey], true
}

// MarshalJSON encodes the state as a JSON object preserving key order.
func (s *State) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(s.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
