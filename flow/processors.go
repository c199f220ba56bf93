package flow

import (
	"fmt"
	"slices"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

// InstructionsProcessor renders the agent instruction into the system prompt.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest resolves the instruction against the current state.
func (p *InstructionsProcessor) ProcessRequest(inv *Invocation, req *model.Request) error {
	instructions, err := inv.Agent.ResolveInstructions(inv.RunCtx)
	if err != nil {
		return fmt.Errorf("failed to resolve instruction: %w", err)
	}

	inv.RunCtx.LogDebug("agent.instruction.resolved", "agent", inv.Agent.GetName(), "length", len(instructions))

	req.Instructions = instructions

	return nil
}

// ContentsProcessor assembles the user query followed by the agent's own
// turns of the current invocation. Other agents' turns are never included;
// agents hand results through state only.
type ContentsProcessor struct{}

// NewContentsProcessor creates a new contents processor.
func NewContentsProcessor() *ContentsProcessor { return &ContentsProcessor{} }

// Name returns the processor's identifier.
func (p *ContentsProcessor) Name() string { return "contents" }

// ProcessRequest sets the request contents.
func (p *ContentsProcessor) ProcessRequest(inv *Invocation, req *model.Request) error {
	contents := make([]core.Content, 0, len(inv.History)+1)
	if len(inv.RunCtx.UserContent.Parts) > 0 {
		contents = append(contents, inv.RunCtx.UserContent)
	}
	contents = append(contents, inv.History...)

	req.Contents = contents
	req.Stream = inv.Agent.IsStreamingEnabled()

	return nil
}

// ToolsProcessor declares the agent's tools to the model.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest adds the tool definitions in declaration order.
func (p *ToolsProcessor) ProcessRequest(inv *Invocation, req *model.Request) error {
	tools := inv.Agent.GetTools()
	if len(tools) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, tool.Definition(t))
	}
	req.Tools = defs

	return nil
}

// FunctionCallIDProcessor assigns ids to function calls the provider left
// unnamed so responses can be correlated in the turn history.
type FunctionCallIDProcessor struct{}

// NewFunctionCallIDProcessor creates a new function call id processor.
func NewFunctionCallIDProcessor() *FunctionCallIDProcessor { return &FunctionCallIDProcessor{} }

// Name returns the processor's identifier.
func (p *FunctionCallIDProcessor) Name() string { return "function_call_ids" }

// ProcessResponse fills missing call ids. The parts slice is copied before
// it is modified since scripted models may reuse it.
func (p *FunctionCallIDProcessor) ProcessResponse(_ *Invocation, resp *model.Response) error {
	parts := resp.Content.Parts
	copied := false
	for i, part := range parts {
		fc, ok := part.(core.FunctionCallPart)
		if !ok || fc.FunctionCall.ID != "" {
			continue
		}
		if !copied {
			parts = slices.Clone(parts)
			copied = true
		}
		fc.FunctionCall.ID = "call-" + core.NewID()
		parts[i] = fc
	}
	resp.Content.Parts = parts
	return nil
}
