package agent

import (
	"fmt"
	"strings"
)

// Visitor is called for each node in depth-first pre-order. parents lists
// the ancestors from the root down. Returning false skips the node's children.
type Visitor func(node Node, parents []Node) bool

// Walk traverses the tree rooted at root, descending into composite
// children and into sub-pipelines wrapped as agent tools.
func Walk(root Node, visit Visitor) {
	walk(root, nil, visit)
}

func walk(node Node, parents []Node, visit Visitor) {
	if node == nil || !visit(node, parents) {
		return
	}
	next := append(parents[:len(parents):len(parents)], node)
	for _, child := range Children(node) {
		walk(child, next, visit)
	}
}

// Describe renders the tree as an indented outline.
func Describe(root Node) string {
	var sb strings.Builder
	Walk(root, func(node Node, parents []Node) bool {
		sb.WriteString(strings.Repeat("  ", len(parents)))
		switch n := node.(type) {
		case *LLMAgent:
			fmt.Fprintf(&sb, "- %s (llm", n.Name())
			if n.outputKey != "" {
				fmt.Fprintf(&sb, " -> %s", n.outputKey)
			}
			if names := n.ToolNames(); len(names) > 0 {
				fmt.Fprintf(&sb, ", tools: %s", strings.Join(names, ", "))
			}
			sb.WriteString(")\n")
		case *Parallel:
			fmt.Fprintf(&sb, "- %s (parallel)\n", n.Name())
		case *Loop:
			fmt.Fprintf(&sb, "- %s (loop, max %d)\n", n.Name(), n.maxIterations)
		default:
			fmt.Fprintf(&sb, "- %s (%s)\n", node.Name(), TypeOf(node))
		}
		return true
	})
	return sb.String()
}

// UnboundAgents returns the agents in the tree that have no model.
func UnboundAgents(root Node) []*LLMAgent {
	var out []*LLMAgent
	Walk(root, func(node Node, _ []Node) bool {
		if a, ok := node.(*LLMAgent); ok && a.llm == nil {
			out = append(out, a)
		}
		return true
	})
	return out
}
