package agent

import (
	"fmt"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/tool"
)

// AgentTool exposes a sub-pipeline as a tool. The model passes a request
// string; the sub-pipeline runs with it as the user query on a forked
// context, its state writes are copied back to the caller's state and its
// final text is returned as the tool result.
type AgentTool struct {
	node        Node
	description string
}

// AsTool wraps node as a tool named after the node.
func AsTool(node Node) *AgentTool {
	desc := node.Description()
	if desc == "" {
		desc = fmt.Sprintf("Delegate a request to the %s agent.", node.Name())
	}
	return &AgentTool{node: node, description: desc}
}

// Node returns the wrapped sub-pipeline.
func (t *AgentTool) Node() Node { return t.node }

// Name returns the wrapped node's name.
func (t *AgentTool) Name() string { return t.node.Name() }

// Description returns the description exposed to the model.
func (t *AgentTool) Description() string { return t.description }

// Parameters returns the single-argument schema.
func (t *AgentTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"request": map[string]any{
				"type":        "string",
				"description": "The request for the agent.",
			},
		},
		"required": []string{"request"},
	}
}

// Call runs the sub-pipeline. A sub-pipeline's Stop is not propagated to
// the caller's loop.
func (t *AgentTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	request, _ := args["request"].(string)
	if request == "" {
		return nil, tool.NewToolError(t.Name(), "request must be a non-empty string", tool.CodeValidation)
	}

	parent := toolCtx.InternalRunContext()
	sub := parent.
		Fork(toolCtx.Context(), branchLabel(parent.Branch, t.node.Name())).
		WithUserContent(core.NewTextContent("user", request))

	toolCtx.LogDebug("agent.tool.start", "agent", toolCtx.AgentName(), "sub_pipeline", t.node.Name())

	if _, err := Execute(sub, t.node); err != nil {
		return nil, fmt.Errorf("sub-pipeline %s: %w", t.node.Name(), err)
	}

	for _, k := range sub.Written() {
		if v, ok := sub.GetState(k); ok {
			toolCtx.SetState(k, v)
		}
	}

	return sub.LastOutput(), nil
}

var _ tool.Tool = (*AgentTool)(nil)
