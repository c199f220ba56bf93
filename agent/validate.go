package agent

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/hupe1980/agentpipe/tool"
)

// ErrInvalidPipeline wraps every static validation failure.
var ErrInvalidPipeline = errors.New("invalid pipeline")

// ValidationError describes one problem at a path in the tree.
type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Validate checks the tree statically. seedKeys are the keys available
// before the root runs (the runner's initial state). All problems are
// reported, joined, and wrapped with ErrInvalidPipeline.
//
// Checks:
//   - names are non-empty and unique among siblings
//   - no node appears twice in the tree
//   - composites have children; loops allow at least one iteration
//   - every required instruction key is written earlier in causal order
//     or is a seed key
//   - parallel children write disjoint keys
//   - the exit loop tool only appears below a loop
//
// Keys written inside an AgentTool's sub-pipeline are visible to later
// nodes only as optional keys: the model decides whether the tool runs, so
// a reader must use the {key?} form.
func Validate(root Node, seedKeys ...string) error {
	if root == nil {
		return fmt.Errorf("%w: nil root", ErrInvalidPipeline)
	}

	v := &validator{seen: map[Node]string{}}
	avail := newKeySet(seedKeys...)
	v.node(root, root.Name(), avail, 0)

	if len(v.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPipeline, errors.Join(v.errs...))
}

type validator struct {
	seen map[Node]string
	errs []error
}

func (v *validator) fail(path, format string, args ...any) {
	v.errs = append(v.errs, &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// node validates n given the keys available before it runs, adds the keys
// it makes available to avail, and returns every key the subtree may write.
func (v *validator) node(n Node, path string, avail keySet, loopDepth int) []string {
	if n.Name() == "" {
		v.fail(path, "node name must not be empty")
	}
	if prev, dup := v.seen[n]; dup {
		v.fail(path, "node already used at %s", prev)
		return nil
	}
	v.seen[n] = path

	switch n := n.(type) {
	case *LLMAgent:
		return v.agent(n, path, avail, loopDepth)
	case *Sequential:
		v.siblings(path, n.children)
		return v.sequence(n.children, path, avail, loopDepth)
	case *Parallel:
		v.siblings(path, n.children)
		return v.parallel(n, path, avail, loopDepth)
	case *Loop:
		if n.maxIterations < 1 {
			v.fail(path, "max iterations must be >= 1, got %d", n.maxIterations)
		}
		v.siblings(path, n.children)
		return v.sequence(n.children, path, avail, loopDepth+1)
	default:
		v.fail(path, "unsupported node type %T", n)
		return nil
	}
}

func (v *validator) agent(a *LLMAgent, path string, avail keySet, loopDepth int) []string {
	for _, k := range a.instruction.RequiredKeys() {
		switch {
		case avail.has(k):
		case avail.maybe(k):
			v.fail(path, "instruction requires %q which is only written by an agent tool; use {%s?}", k, k)
		default:
			v.fail(path, "instruction requires %q which no earlier agent writes", k)
		}
	}

	if a.HasTool(tool.ExitLoopName) && loopDepth == 0 {
		v.fail(path, "%s tool used outside a loop", tool.ExitLoopName)
	}

	var writes []string
	for _, t := range a.tools {
		if at, ok := t.(*AgentTool); ok {
			sub := avail.clone()
			subWrites := v.node(at.node, path+"/"+at.node.Name(), sub, 0)
			for _, k := range subWrites {
				avail.addMaybe(k)
			}
			writes = append(writes, subWrites...)
		}
	}

	if a.outputKey != "" {
		avail.add(a.outputKey)
		writes = append(writes, a.outputKey)
	}
	return writes
}

func (v *validator) sequence(children []Node, path string, avail keySet, loopDepth int) []string {
	var writes []string
	for _, child := range children {
		writes = append(writes, v.node(child, path+"/"+child.Name(), avail, loopDepth)...)
	}
	return writes
}

func (v *validator) parallel(p *Parallel, path string, avail keySet, loopDepth int) []string {
	owner := map[string]string{}
	var (
		writes   []string
		branches []keySet
	)
	for _, child := range p.children {
		branch := avail.clone()
		branches = append(branches, branch)
		childWrites := v.node(child, path+"/"+child.Name(), branch, loopDepth)
		for _, k := range dedupe(childWrites) {
			if other, clash := owner[k]; clash {
				v.fail(path, "parallel children %s and %s both write %q", other, child.Name(), k)
				continue
			}
			owner[k] = child.Name()
		}
		writes = append(writes, childWrites...)
	}
	for _, b := range branches {
		avail.merge(b)
	}
	return writes
}

func (v *validator) siblings(path string, children []Node) {
	if len(children) == 0 {
		v.fail(path, "composite has no children")
	}
	names := map[string]struct{}{}
	for _, c := range children {
		if _, dup := names[c.Name()]; dup && c.Name() != "" {
			v.fail(path, "duplicate child name %q", c.Name())
		}
		names[c.Name()] = struct{}{}
	}
}

// keySet maps a key to whether it is certainly written (true) or only
// possibly written (false).
type keySet map[string]bool

func newKeySet(keys ...string) keySet {
	s := keySet{}
	for _, k := range keys {
		s.add(k)
	}
	return s
}

func (s keySet) add(k string) { s[k] = true }

func (s keySet) addMaybe(k string) {
	if _, ok := s[k]; !ok {
		s[k] = false
	}
}

func (s keySet) has(k string) bool { return s[k] }

func (s keySet) maybe(k string) bool {
	certain, ok := s[k]
	return ok && !certain
}

func (s keySet) merge(o keySet) {
	for k, certain := range o {
		if certain {
			s.add(k)
		} else {
			s.addMaybe(k)
		}
	}
}

func (s keySet) clone() keySet { return maps.Clone(s) }

func dedupe(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// ValidationErrors extracts the individual problems from a Validate error.
func ValidationErrors(err error) []*ValidationError {
	var out []*ValidationError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if ve, ok := e.(*ValidationError); ok {
			out = append(out, ve)
			return
		}
		switch u := e.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// FormatValidation renders a Validate error one problem per line.
func FormatValidation(err error) string {
	problems := ValidationErrors(err)
	if len(problems) == 0 {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	lines := make([]string, len(problems))
	for i, p := range problems {
		lines[i] = "  - " + p.Error()
	}
	return strings.Join(lines, "\n")
}
