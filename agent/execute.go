package agent

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
)

// Execute runs node against runCtx and returns its control signal. Each
// node runs on a context derived with ForAgent so its events carry its own
// name while sharing the caller's state.
func Execute(runCtx *core.RunContext, node Node) (core.Control, error) {
	if err := runCtx.Err(); err != nil {
		return core.Continue, err
	}

	kind := TypeOf(node)
	nodeCtx := runCtx.ForAgent(node.Name(), kind)

	nodeCtx.LogDebug("agent.run.start", "node", node.Name(), "node_type", kind, "branch", nodeCtx.Branch)
	start := time.Now()

	var (
		control core.Control
		err     error
	)
	switch n := node.(type) {
	case *LLMAgent:
		control, err = n.run(nodeCtx)
	case *Sequential:
		control, err = n.run(nodeCtx)
	case *Parallel:
		control, err = n.run(nodeCtx)
	case *Loop:
		control, err = n.run(nodeCtx)
	default:
		err = fmt.Errorf("unsupported node type %T", node)
	}

	if pl, ok := nodeCtx.Logger().(*logging.PipeLogger); ok {
		pl.LogNodeExecution(node.Name(), kind, time.Since(start), err)
	} else {
		nodeCtx.LogDebug("agent.run.complete", "node", node.Name(), "node_type", kind, "control", control.String(), "error", err != nil)
	}

	return control, err
}
