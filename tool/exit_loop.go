package tool

import "github.com/hupe1980/agentpipe/core"

// ExitLoopName is the function name models use to end a refinement loop.
const ExitLoopName = "exit_loop"

type exitLoopTool struct{}

// NewExitLoopTool constructs the tool that stops the nearest enclosing loop.
func NewExitLoopTool() Tool { return &exitLoopTool{} }

func (t *exitLoopTool) Name() string { return ExitLoopName }

func (t *exitLoopTool) Description() string {
	return "Call this function ONLY when the critique is 'APPROVED' to exit the loop."
}

func (t *exitLoopTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *exitLoopTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	tc.ExitLoop()
	return map[string]any{"status": "approved", "message": "The draft has been approved."}, nil
}
