package agent

import (
	"fmt"
	"strconv"

	"github.com/hupe1980/agentpipe/core"
)

// LoopOutcome is the terminal state of a loop execution.
type LoopOutcome int

const (
	// LoopExited means a tool in the body requested Stop.
	LoopExited LoopOutcome = iota
	// LoopIterationLimitReached means MaxIterations passes completed without Stop.
	LoopIterationLimitReached
)

// String returns the string representation of the outcome.
func (o LoopOutcome) String() string {
	switch o {
	case LoopExited:
		return "exited"
	case LoopIterationLimitReached:
		return "iteration_limit_reached"
	default:
		return "unknown"
	}
}

// Loop runs its children as a sequential body up to MaxIterations times.
// A Stop from the body ends the loop and is consumed here: the loop itself
// returns Continue to its parent. The published artifact is whatever the
// body's output keys hold when the loop ends.
type Loop struct {
	baseNode
	children      []Node
	maxIterations int
}

// NewLoop creates a loop composite. maxIterations must be >= 1 (see Validate).
func NewLoop(name string, maxIterations int, children ...Node) *Loop {
	return &Loop{baseNode: baseNode{name: name}, children: children, maxIterations: maxIterations}
}

// WithDescription sets the description and returns the receiver.
func (l *Loop) WithDescription(d string) *Loop {
	l.description = d
	return l
}

// MaxIterations returns the iteration bound.
func (l *Loop) MaxIterations() int { return l.maxIterations }

// run drives the Running(i) -> Exited | Running(i+1) | IterationLimitReached
// state machine and records the outcome in a loop event.
func (l *Loop) run(runCtx *core.RunContext) (core.Control, error) {
	outcome := LoopIterationLimitReached
	iterations := 0

	for i := 0; i < l.maxIterations; i++ {
		if err := runCtx.Err(); err != nil {
			return core.Continue, err
		}

		iterations = i + 1
		runCtx.LogInfo("loop.iteration.start", "loop", l.name, "iteration", iterations, "max_iterations", l.maxIterations)

		control, err := runInOrder(runCtx, fmt.Sprintf("loop %s: iteration %d", l.name, iterations), l.children)
		if err != nil {
			return core.Continue, err
		}
		if control == core.Stop {
			outcome = LoopExited
			break
		}
	}

	runCtx.LogInfo("loop.complete", "loop", l.name, "outcome", outcome.String(), "iterations", iterations)

	ev := core.NewEvent(runCtx.RunID, l.name)
	ev.CustomMetadata = map[string]string{
		core.MetadataLoopOutcome:    outcome.String(),
		core.MetadataLoopIterations: strconv.Itoa(iterations),
	}
	if err := runCtx.EmitEvent(ev); err != nil {
		return core.Continue, err
	}

	return core.Continue, nil
}
