package core

import (
	"context"
	"maps"

	"github.com/hupe1980/agentpipe/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by an agent. It accumulates EventActions (state deltas, control signals)
// which are applied to the function response event once the call finishes.
type ToolContext struct {
	runCtx         *RunContext
	functionCallID string
	eventActions   EventActions

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a parent RunContext.
func NewToolContext(runCtx *RunContext, functionCallID string) *ToolContext {
	return &ToolContext{
		runCtx:         runCtx,
		functionCallID: functionCallID,
		loggerAdapter:  newLoggerAdapter(runCtx.Logger()),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.runCtx.Context }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runCtx.RunID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the name of the agent that issued the call.
func (tc *ToolContext) AgentName() string { return tc.runCtx.Agent.Name }

// GetState retrieves the current value for k.
func (tc *ToolContext) GetState(k string) (any, bool) { return tc.runCtx.GetState(k) }

// SetState writes through to the run state and records the write in the
// local delta for the function response event.
func (tc *ToolContext) SetState(k string, v any) {
	tc.runCtx.State.Set(k, v)
	tc.runCtx.written.add(k)
	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = map[string]any{}
	}
	tc.eventActions.StateDelta[k] = v
}

// ExitLoop signals that the nearest enclosing loop should stop after this call.
func (tc *ToolContext) ExitLoop() {
	tc.eventActions.Control = Stop
	tc.LogInfo("tool.exit_loop.request", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
}

// Control returns the control signal requested by the tool.
func (tc *ToolContext) Control() Control { return tc.eventActions.Control }

// Actions returns the event actions accumulated in the tool context.
func (tc *ToolContext) Actions() *EventActions { return &tc.eventActions }

// InternalRunContext returns the run context the tool executes in.
func (tc *ToolContext) InternalRunContext() *RunContext { return tc.runCtx }

// InternalApplyActions merges accumulated EventActions into the provided event.
func (tc *ToolContext) InternalApplyActions(ev *Event) {
	if len(tc.eventActions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		maps.Copy(ev.Actions.StateDelta, tc.eventActions.StateDelta)
	}

	if tc.eventActions.Control == Stop {
		ev.Actions.Control = Stop
		tc.LogInfo("tool.exit_loop.applied", "agent", tc.AgentName(), "function_call_id", tc.functionCallID)
	}
}
