// Package tool implements the function calling subsystem that lets agents
// invoke structured capabilities with schema validated arguments, consistent
// error handling and loop control.
package tool

import (
	"fmt"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/util"
	"github.com/hupe1980/agentpipe/model"
)

// Tool extends an agent with a callable function.
//
// Tools receive a ToolContext giving access to run state and loop control.
// Implementations should be safe for concurrent use: a single model turn may
// request several calls which execute in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is provided to the model to explain when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// BuiltinTool marks a provider-native capability. It is declared to the
// model but never executed locally.
type BuiltinTool interface {
	Tool
	Builtin()
}

// IsBuiltin reports whether t is a provider-native capability.
func IsBuiltin(t Tool) bool {
	_, ok := t.(BuiltinTool)
	return ok
}

// Definition converts a tool into the declaration sent to models.
func Definition(t Tool) model.ToolDefinition {
	typ := model.ToolTypeFunction
	if IsBuiltin(t) {
		typ = model.ToolTypeBuiltin
	}
	return model.ToolDefinition{
		Type: typ,
		Function: model.FunctionDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}
