// Package flow drives the turn loop of a single LLM agent.
//
// A flow renders the agent instruction, assembles the model request from the
// user query plus the agent's own turn history, calls the model and executes
// any requested tools until the model answers with plain text. Request and
// response processors keep each concern of request assembly separate.
package flow

import (
	"errors"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

// ErrMaxTurns is returned when an agent exceeds its model turn budget
// without producing a final answer.
var ErrMaxTurns = errors.New("agent exceeded max model turns")

// DefaultMaxTurns bounds model turns per agent invocation.
const DefaultMaxTurns = 10

// Flow runs one agent invocation to completion.
type Flow interface {
	// Run executes the agent on the given context and returns the control
	// signal produced by its tools.
	Run(runCtx *core.RunContext) (core.Control, error)
}

// FlowAgent is the view of an LLM agent a flow needs.
type FlowAgent interface {
	// GetName returns the agent's name, used as event author.
	GetName() string

	// GetLLM returns the model the agent talks to.
	GetLLM() model.Model

	// ResolveInstructions renders the instruction against the run state.
	ResolveInstructions(runCtx *core.RunContext) (string, error)

	// GetTools returns the agent's tools in declaration order.
	GetTools() []tool.Tool

	// GetOutputKey returns the state key receiving the final text, or "".
	GetOutputKey() string

	// IsStreamingEnabled reports whether partial responses are requested.
	IsStreamingEnabled() bool

	// MaxTurns returns the model turn budget. Values < 1 use DefaultMaxTurns.
	MaxTurns() int
}

// Invocation is the per-call working set shared by processors.
type Invocation struct {
	RunCtx  *core.RunContext
	Agent   FlowAgent
	History []core.Content
	Turn    int
}

// RequestProcessor mutates the request before it is sent to the model.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the model request.
	ProcessRequest(inv *Invocation, req *model.Request) error
}

// ResponseProcessor inspects or amends each final model response.
type ResponseProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessResponse handles a model response before it is emitted.
	ProcessResponse(inv *Invocation, resp *model.Response) error
}
