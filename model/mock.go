package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/hupe1980/agentpipe/core"
)

// Script produces the response for the call-th request (0-based).
type Script func(call int, req Request) (Response, error)

// MockModel is a scripted, deterministic Model for tests and offline runs.
// It records every request and is safe for concurrent use.
type MockModel struct {
	info   Info
	script Script

	mu       sync.Mutex
	requests []Request
}

// NewMockModel constructs a MockModel. A nil script uses EchoScript.
func NewMockModel(name string, script Script) *MockModel {
	if script == nil {
		script = EchoScript
	}
	return &MockModel{
		info:   Info{Name: name, Provider: "mock", SupportsTools: true},
		script: script,
	}
}

// Generate implements Model. Streaming requests receive the text rune by
// rune before the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	call := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		resp, err := m.script(call, req)
		if err != nil {
			errCh <- err
			return
		}
		if resp.Content.Role == "" {
			resp.Content.Role = "assistant"
		}
		if resp.FinishReason == "" {
			resp.FinishReason = "stop"
		}

		if req.Stream {
			for _, r := range resp.Content.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Content: core.NewTextContent("assistant", string(r))}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- resp:
		}
	}()

	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// Requests returns a copy of the recorded requests.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many times Generate was invoked.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// TextResponse builds a final assistant response with a single text part.
func TextResponse(text string) Response {
	return Response{Content: core.NewTextContent("assistant", text), FinishReason: "stop"}
}

// FunctionCallResponse builds a response requesting the given tool calls.
func FunctionCallResponse(calls ...core.FunctionCall) Response {
	parts := make([]core.Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: c})
	}
	return Response{Content: core.Content{Role: "assistant", Parts: parts}, FinishReason: "tool_calls"}
}

// Sequence replays responses in order and repeats the last one.
func Sequence(responses ...Response) Script {
	return func(call int, _ Request) (Response, error) {
		if len(responses) == 0 {
			return Response{}, fmt.Errorf("mock: empty sequence")
		}
		return responses[min(call, len(responses)-1)], nil
	}
}

// EchoScript answers with a deterministic summary of the request. When an
// exit_loop tool is offered and has not been called yet in this turn, it
// calls it, so loops driven by the mock terminate on their first pass.
func EchoScript(call int, req Request) (Response, error) {
	if hasTool(req, "exit_loop") && !lastIsFunctionResponse(req) {
		return FunctionCallResponse(core.FunctionCall{
			ID:        fmt.Sprintf("mock-call-%d", call),
			Name:      "exit_loop",
			Arguments: "{}",
		}), nil
	}

	var query string
	for _, c := range req.Contents {
		if c.Role == "user" {
			query = c.Text()
		}
	}
	b, _ := json.Marshal(firstLine(req.Instructions))
	return TextResponse(fmt.Sprintf("[mock] %s -> %s", strings.Trim(string(b), `"`), query)), nil
}

func hasTool(req Request, name string) bool {
	for _, t := range req.Tools {
		if t.Function.Name == name {
			return true
		}
	}
	return false
}

func lastIsFunctionResponse(req Request) bool {
	if len(req.Contents) == 0 {
		return false
	}
	last := req.Contents[len(req.Contents)-1]
	for _, p := range last.Parts {
		if _, ok := p.(core.FunctionResponsePart); ok {
			return true
		}
	}
	return false
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if utf8.RuneCountInString(s) > 60 {
		s = string([]rune(s)[:60])
	}
	return s
}
