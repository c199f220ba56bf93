package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/agentpipe/core"
)

// EventSink collects events emitted through a RunContext built by NewRunContext.
type EventSink struct {
	ch   chan core.Event
	done chan struct{}

	mu     sync.Mutex
	events []core.Event
}

// Events returns the events received so far.
func (s *EventSink) Events() []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Close stops collection and returns every event received.
func (s *EventSink) Close() []core.Event {
	close(s.ch)
	<-s.done
	return s.Events()
}

// NewRunContext returns a root run context seeded with state and a sink
// draining its emit channel in the background. Call sink.Close when done.
func NewRunContext(ctx context.Context, query string, seed map[string]any) (*core.RunContext, *EventSink) {
	sink := &EventSink{ch: make(chan core.Event, 16), done: make(chan struct{})}
	go func() {
		defer close(sink.done)
		for ev := range sink.ch {
			sink.mu.Lock()
			sink.events = append(sink.events, ev)
			sink.mu.Unlock()
		}
	}()
	rc := core.NewRunContext(ctx, "run-test", core.NewTextContent("user", query), sink.ch, core.NewState(seed), 0, nil)
	return rc, sink
}

// DrainEvents reads events until ch is closed.
func DrainEvents(ch <-chan core.Event) []core.Event {
	var out []core.Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

// Authors returns the author of each event, in order.
func Authors(events []core.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Author)
	}
	return out
}
