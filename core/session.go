package core

import (
	"errors"
	"maps"
	"sync"
	"time"
)

// ErrSessionNotFound is returned by SessionStore implementations for unknown ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStatus describes the lifecycle of a recorded run.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionSucceeded SessionStatus = "succeeded"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// Session is the persisted record of one pipeline run: the query, the
// ordered event history and the final state. It is safe for concurrent access.
//
// Contract:
//   - AddEvent applies the event's state delta to State
//   - GetEvents returns a defensive copy
//   - Clone copies maps and slices for safe divergence
type Session struct {
	ID      string         `json:"id"`
	Query   string         `json:"query"`
	Status  SessionStatus  `json:"status"`
	State   map[string]any `json:"state"`
	Events  []Event        `json:"events"`
	Error   string         `json:"error,omitempty"`
	Created time.Time      `json:"created"`
	Updated time.Time      `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates a running session record for the given run.
func NewSession(id, query string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:      id,
		Query:   query,
		Status:  SessionRunning,
		State:   map[string]any{},
		Events:  []Event{},
		Created: now,
		Updated: now,
	}
}

// AddEvent appends an event and folds its state delta into State.
func (s *Session) AddEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, ev)
	maps.Copy(s.State, ev.Actions.StateDelta)
	s.Updated = time.Now().UTC()
}

// Finish marks the session with a terminal status.
func (s *Session) Finish(status SessionStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = status
	if err != nil {
		s.Error = err.Error()
	}
	s.Updated = time.Now().UTC()
}

// GetEvents returns a defensive copy of the event history.
func (s *Session) GetEvents() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]Event, len(s.Events))
	copy(events, s.Events)
	return events
}

// Clone returns a copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:      s.ID,
		Query:   s.Query,
		Status:  s.Status,
		State:   maps.Clone(s.State),
		Events:  make([]Event, len(s.Events)),
		Error:   s.Error,
		Created: s.Created,
		Updated: s.Updated,
	}
	if clone.State == nil {
		clone.State = map[string]any{}
	}
	copy(clone.Events, s.Events)
	return clone
}

// SessionStore persists run records.
type SessionStore interface {
	Create(id, query string) (*Session, error)
	Get(id string) (*Session, error)
	AppendEvent(id string, event Event) error
	Finish(id string, status SessionStatus, err error) error
	List() ([]*Session, error)
}
