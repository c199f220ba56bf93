package agent

// Node is a pipeline tree element. The set of implementations is closed:
// *LLMAgent, *Sequential, *Parallel and *Loop.
type Node interface {
	// Name returns the node name, unique among its siblings.
	Name() string
	// Description returns a human readable summary.
	Description() string

	isNode()
}

// Node type labels used in logs, events and descriptions.
const (
	TypeLLM        = "llm"
	TypeSequential = "sequential"
	TypeParallel   = "parallel"
	TypeLoop       = "loop"
)

// baseNode carries the identity shared by every node kind.
type baseNode struct {
	name        string
	description string
}

// Name returns the node name.
func (b *baseNode) Name() string { return b.name }

// Description returns the node description.
func (b *baseNode) Description() string { return b.description }

func (b *baseNode) isNode() {}

// TypeOf returns the type label of a node.
func TypeOf(node Node) string {
	switch node.(type) {
	case *LLMAgent:
		return TypeLLM
	case *Sequential:
		return TypeSequential
	case *Parallel:
		return TypeParallel
	case *Loop:
		return TypeLoop
	default:
		return "unknown"
	}
}

// Children returns the direct children of a node. For an LLMAgent these
// are the sub-pipelines wrapped as agent tools.
func Children(node Node) []Node {
	switch n := node.(type) {
	case *LLMAgent:
		var out []Node
		for _, t := range n.tools {
			if at, ok := t.(*AgentTool); ok {
				out = append(out, at.node)
			}
		}
		return out
	case *Sequential:
		return n.children
	case *Parallel:
		return n.children
	case *Loop:
		return n.children
	default:
		return nil
	}
}
