package agent

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/flow"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

// LLMAgentOptions configures an LLMAgent.
//
// Use functional options with NewLLMAgent to override defaults.
type LLMAgentOptions struct {
	Description     string
	Instruction     string
	Tools           []tool.Tool
	OutputKey       string
	EnableStreaming bool
	MaxTurns        int
}

// LLMAgent is the leaf node: it renders its instruction from state, talks
// to its model (calling tools as requested) and optionally stores the final
// text under OutputKey.
type LLMAgent struct {
	baseNode
	llm         model.Model
	instruction Instruction
	tools       []tool.Tool
	outputKey   string
	streaming   bool
	maxTurns    int
}

// NewLLMAgent creates an agent. llm may be nil; the runner then binds its
// default model.
//
// Defaults:
//   - Instruction "You are <name>, a helpful AI assistant."
//   - Streaming disabled
//   - flow.DefaultMaxTurns model turns
func NewLLMAgent(name string, llm model.Model, optFns ...func(o *LLMAgentOptions)) (*LLMAgent, error) {
	opts := LLMAgentOptions{
		Instruction: fmt.Sprintf("You are %s, a helpful AI assistant.", name),
		MaxTurns:    flow.DefaultMaxTurns,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, errors.New("agent name must not be empty")
	}

	instruction, err := ParseInstruction(opts.Instruction)
	if err != nil {
		return nil, fmt.Errorf("agent %s: instruction: %w", name, err)
	}

	seen := make(map[string]struct{}, len(opts.Tools))
	for _, t := range opts.Tools {
		if _, dup := seen[t.Name()]; dup {
			return nil, fmt.Errorf("agent %s: duplicate tool %q", name, t.Name())
		}
		seen[t.Name()] = struct{}{}
	}

	return &LLMAgent{
		baseNode:    baseNode{name: name, description: opts.Description},
		llm:         llm,
		instruction: instruction,
		tools:       append([]tool.Tool(nil), opts.Tools...),
		outputKey:   opts.OutputKey,
		streaming:   opts.EnableStreaming,
		maxTurns:    opts.MaxTurns,
	}, nil
}

// MustLLMAgent is like NewLLMAgent but panics on error.
func MustLLMAgent(name string, llm model.Model, optFns ...func(o *LLMAgentOptions)) *LLMAgent {
	a, err := NewLLMAgent(name, llm, optFns...)
	if err != nil {
		panic(err)
	}
	return a
}

// Instruction returns the parsed instruction template.
func (a *LLMAgent) Instruction() Instruction { return a.instruction }

// OutputKey returns the state key the final text is stored under.
func (a *LLMAgent) OutputKey() string { return a.outputKey }

// Model returns the bound model, or nil.
func (a *LLMAgent) Model() model.Model { return a.llm }

// ToolNames returns the tool names in declaration order.
func (a *LLMAgent) ToolNames() []string {
	names := make([]string, 0, len(a.tools))
	for _, t := range a.tools {
		names = append(names, t.Name())
	}
	return names
}

// HasTool checks if a tool is registered with the agent.
func (a *LLMAgent) HasTool(name string) bool {
	for _, t := range a.tools {
		if t.Name() == name {
			return true
		}
	}
	return false
}

// BindDefaultModel assigns m to every agent in the tree that has none.
// Agents that already have a model keep it.
func BindDefaultModel(root Node, m model.Model) {
	for _, a := range UnboundAgents(root) {
		a.llm = m
	}
}

// FlowAgent interface implementation.

// GetName returns the agent's name.
func (a *LLMAgent) GetName() string { return a.name }

// GetLLM returns the language model instance.
func (a *LLMAgent) GetLLM() model.Model { return a.llm }

// ResolveInstructions renders the instruction against the current state.
func (a *LLMAgent) ResolveInstructions(runCtx *core.RunContext) (string, error) {
	return a.instruction.Resolve(runCtx)
}

// GetTools returns the agent's tools in declaration order.
func (a *LLMAgent) GetTools() []tool.Tool { return a.tools }

// GetOutputKey returns the state key for the final text.
func (a *LLMAgent) GetOutputKey() string { return a.outputKey }

// IsStreamingEnabled returns whether streaming responses are enabled.
func (a *LLMAgent) IsStreamingEnabled() bool { return a.streaming }

// MaxTurns returns the model turn budget.
func (a *LLMAgent) MaxTurns() int { return a.maxTurns }

// run executes the agent's turn loop.
func (a *LLMAgent) run(runCtx *core.RunContext) (core.Control, error) {
	return flow.NewSingleAgentFlow(a).Run(runCtx)
}

var _ flow.FlowAgent = (*LLMAgent)(nil)
