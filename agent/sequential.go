package agent

import (
	"fmt"

	"github.com/hupe1980/agentpipe/core"
)

// Sequential runs its children in order on shared state. Each child sees
// every write of the children before it.
type Sequential struct {
	baseNode
	children []Node
}

// NewSequential creates a sequential composite.
func NewSequential(name string, children ...Node) *Sequential {
	return &Sequential{baseNode: baseNode{name: name}, children: children}
}

// WithDescription sets the description and returns the receiver.
func (s *Sequential) WithDescription(d string) *Sequential {
	s.description = d
	return s
}

// run executes the children in order. A child's Stop ends the sequence and
// is propagated to the nearest loop.
func (s *Sequential) run(runCtx *core.RunContext) (core.Control, error) {
	return runInOrder(runCtx, "sequential "+s.name, s.children)
}

// runInOrder executes children one after another; errors are prefixed
// with scope, e.g. "sequential blog".
func runInOrder(runCtx *core.RunContext, scope string, children []Node) (core.Control, error) {
	for _, child := range children {
		control, err := Execute(runCtx, child)
		if err != nil {
			return core.Continue, fmt.Errorf("%s: child %s: %w", scope, child.Name(), err)
		}
		if control == core.Stop {
			runCtx.LogDebug("agent.sequence.stop", "node", runCtx.Agent.Name, "child", child.Name())
			return core.Stop, nil
		}
	}
	return core.Continue, nil
}
