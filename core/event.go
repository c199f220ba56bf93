package core

import (
	"time"

	"github.com/google/uuid"
)

// Well known event authors and metadata keys.
const (
	AuthorUser = "user"

	MetadataLoopOutcome    = "loop.outcome"
	MetadataLoopIterations = "loop.iterations"
)

// EventActions encodes side effects or orchestration signals attached to an Event.
type EventActions struct {
	StateDelta map[string]any `json:"state_delta,omitempty"`
	Control    Control        `json:"control,omitempty"`
}

// Event is the step record produced while a pipeline runs. After emission it
// should be treated as immutable. Content may be nil for control or error-only
// events.
type Event struct {
	ID             string            `json:"id"`
	RunID          string            `json:"run_id"`
	Author         string            `json:"author"`
	Branch         string            `json:"branch,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Content        *Content          `json:"content,omitempty"`
	Partial        bool              `json:"partial,omitempty"`
	Actions        EventActions      `json:"actions"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CustomMetadata map[string]string `json:"custom_metadata,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to a run.
func NewEvent(runID, author string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// NewMessageEvent creates an assistant message event with a single text part.
func NewMessageEvent(runID, author, message string) Event {
	e := NewEvent(runID, author)
	c := NewTextContent("assistant", message)
	e.Content = &c
	return e
}

// NewUserMessageEvent creates a user-authored text message event.
func NewUserMessageEvent(runID, message string) Event {
	e := NewEvent(runID, AuthorUser)
	c := NewTextContent("user", message)
	e.Content = &c
	return e
}

// NewFunctionCallEvent represents an agent requesting execution of a named tool.
func NewFunctionCallEvent(runID, author string, calls ...FunctionCall) Event {
	e := NewEvent(runID, author)
	parts := make([]Part, 0, len(calls))
	for _, fc := range calls {
		parts = append(parts, FunctionCallPart{FunctionCall: fc})
	}
	e.Content = &Content{Role: "assistant", Parts: parts}
	return e
}

// NewFunctionResponseEvent records the result (or error) of a tool invocation.
// If err is non-nil its message is copied into the response Error field.
func NewFunctionResponseEvent(runID, author, id, functionName string, result any, err error) Event {
	e := NewEvent(runID, author)
	fr := FunctionResponse{ID: id, Name: functionName, Response: result}
	if err != nil {
		fr.Error = err.Error()
	}
	e.Content = &Content{Role: "tool", Parts: []Part{FunctionResponsePart{FunctionResponse: fr}}}
	return e
}

// NewID generates a new unique identifier for events and runs.
func NewID() string { return uuid.NewString() }

// IsPartial reports whether this event is a streaming fragment.
func (e Event) IsPartial() bool { return e.Partial }

// Text returns the concatenated text parts of the event content.
func (e Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}

// GetFunctionCalls returns any FunctionCall parts preserving their order.
func (e Event) GetFunctionCalls() []FunctionCall {
	if e.Content == nil {
		return nil
	}
	var calls []FunctionCall
	for _, p := range e.Content.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// GetFunctionResponses returns any FunctionResponse parts preserving their order.
func (e Event) GetFunctionResponses() []FunctionResponse {
	if e.Content == nil {
		return nil
	}
	var responses []FunctionResponse
	for _, p := range e.Content.Parts {
		if fr, ok := p.(FunctionResponsePart); ok {
			responses = append(responses, fr.FunctionResponse)
		}
	}
	return responses
}

// IsFinalResponse reports whether the event completes an assistant turn:
// it carries content, is not partial and has no pending tool calls/responses.
func (e Event) IsFinalResponse() bool {
	return e.Content != nil &&
		e.Author != AuthorUser &&
		!e.Partial &&
		len(e.GetFunctionCalls()) == 0 &&
		len(e.GetFunctionResponses()) == 0
}
