package runner

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentpipe/core"
)

// CallbackType identifies the lifecycle point a callback is attached to.
type CallbackType string

const (
	// CallbackBeforeRun fires once before the root node executes.
	CallbackBeforeRun CallbackType = "before_run"

	// CallbackOnEvent fires for every event, partial ones included.
	CallbackOnEvent CallbackType = "on_event"

	// CallbackOnStateChange fires for events carrying a state delta. An
	// error aborts the run.
	CallbackOnStateChange CallbackType = "on_state_change"

	// CallbackAfterRun fires once after the run finished successfully.
	CallbackAfterRun CallbackType = "after_run"

	// CallbackOnError fires once when the run fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the data passed to callbacks.
type CallbackContext struct {
	RunID        string
	Query        string
	Event        *core.Event
	Err          error
	CallbackType CallbackType
}

// Callback is a hook executed at a lifecycle point of a run.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback adapts a function to the Callback interface.
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a callback from a function.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the lifecycle point.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute runs the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager groups callbacks by type. It is not safe for concurrent
// registration; register everything before the first run.
type CallbackManager struct {
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager(callbacks ...Callback) *CallbackManager {
	cm := &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
	for _, c := range callbacks {
		cm.RegisterCallback(c)
	}
	return cm
}

// RegisterCallback adds a callback.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.callbacks[callback.Type()] = append(cm.callbacks[callback.Type()], callback)
}

// ExecuteCallbacks runs the callbacks of a type in registration order and
// stops at the first error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, callbackCtx *CallbackContext) error {
	callbackCtx.CallbackType = callbackType
	for _, callback := range cm.callbacks[callbackType] {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}
	return nil
}

// StateValidationCallback rejects state deltas that fail validation.
type StateValidationCallback struct {
	validator func(stateDelta map[string]any) error
}

// NewStateValidationCallback creates a state validation callback.
func NewStateValidationCallback(validator func(stateDelta map[string]any) error) *StateValidationCallback {
	return &StateValidationCallback{validator: validator}
}

// Type returns CallbackOnStateChange.
func (c *StateValidationCallback) Type() CallbackType { return CallbackOnStateChange }

// Execute validates the event's state delta.
func (c *StateValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil || callbackCtx.Event == nil || len(callbackCtx.Event.Actions.StateDelta) == 0 {
		return nil
	}
	return c.validator(callbackCtx.Event.Actions.StateDelta)
}
