package session

import (
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/agentpipe/core"
)

// InMemoryStore is a volatile SessionStore keeping run records in a process
// local map. It is safe for concurrent access and suited for tests and the
// demo server. Returned sessions are clones.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	maxRuns  int
	order    []string
}

// InMemoryOptions configures the InMemoryStore.
type InMemoryOptions struct {
	// MaxRuns evicts the oldest record once exceeded. Zero keeps everything.
	MaxRuns int
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore(optFns ...func(o *InMemoryOptions)) *InMemoryStore {
	opts := InMemoryOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &InMemoryStore{sessions: make(map[string]*core.Session), maxRuns: opts.MaxRuns}
}

// Create registers a new running session, overwriting any record with the same id.
func (s *InMemoryStore) Create(id, query string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[id]; !exists {
		s.order = append(s.order, id)
	}
	sess := core.NewSession(id, query)
	s.sessions[id] = sess
	s.evictLocked()
	return sess.Clone(), nil
}

// Get returns a clone of the session with the given id.
func (s *InMemoryStore) Get(id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return sess.Clone(), nil
}

// AppendEvent adds an event to an existing session.
func (s *InMemoryStore) AppendEvent(id string, ev core.Event) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	sess.AddEvent(ev)
	return nil
}

// Finish records the terminal status of a session.
func (s *InMemoryStore) Finish(id string, status core.SessionStatus, err error) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	sess.Finish(status, err)
	return nil
}

// List returns clones of all sessions, newest first.
func (s *InMemoryStore) List() ([]*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Session, 0, len(s.order))
	for _, id := range slices.Backward(s.order) {
		out = append(out, s.sessions[id].Clone())
	}
	return out, nil
}

func (s *InMemoryStore) evictLocked() {
	for s.maxRuns > 0 && len(s.order) > s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.sessions, oldest)
	}
}
