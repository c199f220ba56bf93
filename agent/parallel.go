package agent

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/agentpipe/core"
)

// Parallel runs its children concurrently. Every child works on a snapshot
// of the state taken when the group starts and never observes a sibling's
// writes. After all children return, their writes are merged into the
// shared state in child order.
type Parallel struct {
	baseNode
	children       []Node
	maxConcurrency int
}

// NewParallel creates a parallel composite with unlimited fan-out.
func NewParallel(name string, children ...Node) *Parallel {
	return &Parallel{baseNode: baseNode{name: name}, children: children}
}

// WithDescription sets the description and returns the receiver.
func (p *Parallel) WithDescription(d string) *Parallel {
	p.description = d
	return p
}

// WithMaxConcurrency bounds how many children run at once. 0 means unlimited.
func (p *Parallel) WithMaxConcurrency(n int) *Parallel {
	p.maxConcurrency = n
	return p
}

// MaxConcurrency returns the fan-out bound (0 = unlimited).
func (p *Parallel) MaxConcurrency() int { return p.maxConcurrency }

// run executes all children and joins them. The first error cancels the
// remaining branches; the group still waits for every child to return.
func (p *Parallel) run(runCtx *core.RunContext) (core.Control, error) {
	g, gctx := errgroup.WithContext(runCtx.Context)
	if p.maxConcurrency > 0 {
		g.SetLimit(p.maxConcurrency)
	}

	branches := make([]*core.RunContext, len(p.children))
	controls := make([]core.Control, len(p.children))

	for i, child := range p.children {
		branch := runCtx.Fork(gctx, branchLabel(runCtx.Branch, p.name, child.Name()))
		branches[i] = branch

		g.Go(func() error {
			control, err := Execute(branch, child)
			if err != nil {
				return fmt.Errorf("parallel %s: branch %s: %w", p.name, child.Name(), err)
			}
			controls[i] = control
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return core.Continue, err
	}

	result := core.Continue
	for i, branch := range branches {
		runCtx.MergeBranch(branch)
		if controls[i] == core.Stop {
			result = core.Stop
		}
	}

	runCtx.LogDebug("agent.parallel.joined", "node", p.name, "branches", len(branches), "keys", runCtx.State.Len())

	return result, nil
}

// branchLabel joins the non-empty parts with ".".
func branchLabel(parts ...string) string {
	return strings.Join(slices.DeleteFunc(parts, func(s string) bool { return s == "" }), ".")
}
