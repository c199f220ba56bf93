package tool

import (
	"fmt"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/util"
)

// StateManagerName is the function name of the run state tool.
const StateManagerName = "state_manager"

// State manager operations.
const (
	OpGetState = "get_state"
	OpSetState = "set_state"
)

type stateManagerTool struct{}

// NewStateManagerTool constructs a tool that lets a model read and write
// run state keys directly.
//
// Writes go through the ToolContext, so they land in the state delta of the
// function response event like any other agent write. Keys written this way
// are not visible to static pipeline validation.
func NewStateManagerTool() Tool { return &stateManagerTool{} }

func (t *stateManagerTool) Name() string { return StateManagerName }

func (t *stateManagerTool) Description() string {
	return "Reads or writes a key of the shared pipeline state. " +
		"Supports operations: get_state, set_state."
}

func (t *stateManagerTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{OpGetState, OpSetState},
				"description": "The state operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "State key to read or write",
			},
			"value": map[string]any{
				"description": "Value for set_state (any type)",
			},
		},
		"required": []string{"operation", "key"},
	}
}

func (t *stateManagerTool) Call(tc *core.ToolContext, args map[string]any) (any, error) {
	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		return nil, &ToolError{Tool: StateManagerName, Message: fmt.Sprintf("parameter validation failed: %v", err), Code: CodeValidation, Details: err}
	}
	key := args["key"].(string)
	if key == "" {
		return nil, NewToolError(StateManagerName, "key must not be empty", CodeValidation)
	}

	switch op := args["operation"].(string); op {
	case OpGetState:
		v, ok := tc.GetState(key)
		return map[string]any{"key": key, "exists": ok, "value": v}, nil
	case OpSetState:
		v, ok := args["value"]
		if !ok {
			return nil, NewToolError(StateManagerName, "value parameter is required for set_state", CodeValidation)
		}
		prev, existed := tc.GetState(key)
		tc.SetState(key, v)
		res := map[string]any{"key": key, "value": v}
		if existed {
			res["previous"] = prev
		}
		return res, nil
	default:
		return nil, NewToolError(StateManagerName, fmt.Sprintf("unknown operation: %s", op), CodeValidation)
	}
}
