package pipeline

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

// ModelResolver returns the model for an agent's model name.
type ModelResolver func(name string) (model.Model, error)

// BuildOptions configures Build.
type BuildOptions struct {
	// Models resolves agent model names. Agents without a model name are
	// built with a nil model and use the runner's default.
	Models ModelResolver

	// Tools registers additional tool factories by name. The builtin
	// google_search and exit_loop tools are always available.
	Tools map[string]func() tool.Tool
}

// Build turns a definition into an agent tree. Every node is created
// fresh, so building the same definition twice yields independent trees.
func Build(def *Definition, optFns ...func(o *BuildOptions)) (agent.Node, error) {
	opts := BuildOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := def.Validate(); err != nil {
		return nil, err
	}

	b := &builder{opts: opts, tools: builtinTools()}
	maps.Copy(b.tools, opts.Tools)

	root, err := b.node(def.Root, def.Root.Name)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", def.Name, err)
	}
	return root, nil
}

func builtinTools() map[string]func() tool.Tool {
	return map[string]func() tool.Tool{
		tool.GoogleSearchName: tool.NewGoogleSearchTool,
		tool.ExitLoopName:     tool.NewExitLoopTool,
		tool.StateManagerName: tool.NewStateManagerTool,
	}
}

type builder struct {
	opts  BuildOptions
	tools map[string]func() tool.Tool
}

func (b *builder) node(spec NodeSpec, path string) (agent.Node, error) {
	if spec.Type == TypeAgent {
		return b.agent(spec, path)
	}

	children := make([]agent.Node, 0, len(spec.Children))
	for _, c := range spec.Children {
		child, err := b.node(c, path+"/"+c.Name)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	switch spec.Type {
	case TypeSequential:
		return agent.NewSequential(spec.Name, children...).WithDescription(spec.Description), nil
	case TypeParallel:
		return agent.NewParallel(spec.Name, children...).
			WithDescription(spec.Description).
			WithMaxConcurrency(spec.MaxConcurrency), nil
	case TypeLoop:
		return agent.NewLoop(spec.Name, spec.MaxIterations, children...).WithDescription(spec.Description), nil
	default:
		return nil, fmt.Errorf("%s: unknown node type %q", path, spec.Type)
	}
}

func (b *builder) agent(spec NodeSpec, path string) (agent.Node, error) {
	var llm model.Model
	if spec.Model != "" {
		if b.opts.Models == nil {
			return nil, fmt.Errorf("%s: model %q requested but no model resolver configured", path, spec.Model)
		}
		m, err := b.opts.Models(spec.Model)
		if err != nil {
			return nil, fmt.Errorf("%s: model %q: %w", path, spec.Model, err)
		}
		llm = m
	}

	tools := make([]tool.Tool, 0, len(spec.Tools)+len(spec.AgentTools))
	for _, name := range spec.Tools {
		factory, ok := b.tools[name]
		if !ok {
			return nil, fmt.Errorf("%s: unknown tool %q (available: %s)", path, name, strings.Join(slices.Sorted(maps.Keys(b.tools)), ", "))
		}
		tools = append(tools, factory())
	}
	for _, sub := range spec.AgentTools {
		n, err := b.node(sub, path+"/"+sub.Name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, agent.AsTool(n))
	}

	a, err := agent.NewLLMAgent(spec.Name, llm, func(o *agent.LLMAgentOptions) {
		o.Description = spec.Description
		if spec.Instruction != "" {
			o.Instruction = strings.TrimSpace(spec.Instruction)
		}
		o.Tools = tools
		o.OutputKey = spec.OutputKey
		o.EnableStreaming = spec.Stream
		if spec.MaxTurns > 0 {
			o.MaxTurns = spec.MaxTurns
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return a, nil
}
