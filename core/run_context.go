package core

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/hupe1980/agentpipe/logging"
)

// AgentInfo identifies the node currently executing.
type AgentInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RunContext carries execution state and helpers for one pipeline run.
// It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (RunID, current Agent, Branch)
//   - The user query Content
//   - The emit channel consumed by the runner
//   - The shared State plus a staged delta attached to the next emitted event
//
// Contexts derived with ForAgent share State with their parent. Contexts
// derived with Fork get an isolated State snapshot and must be merged back
// with MergeBranch.
type RunContext struct {
	Context     context.Context
	RunID       string
	Agent       AgentInfo
	UserContent Content
	Emit        chan<- Event
	State       *State
	Branch      string
	Limiter     *ModelLimiter

	delta   *stagedDelta
	written *writeLog
	output  *outputTracker

	*loggerAdapter
}

// NewRunContext constructs a root RunContext.
func NewRunContext(
	ctx context.Context,
	runID string,
	userContent Content,
	emit chan<- Event,
	state *State,
	maxModelCalls int,
	logger logging.Logger,
) *RunContext {
	if state == nil {
		state = NewState(nil)
	}
	return &RunContext{
		Context:       ctx,
		RunID:         runID,
		UserContent:   userContent,
		Emit:          emit,
		State:         state,
		Limiter:       NewModelLimiter(maxModelCalls),
		delta:         newStagedDelta(),
		written:       &writeLog{},
		output:        &outputTracker{},
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// GetState returns the current value for k.
func (rc *RunContext) GetState(k string) (any, bool) { return rc.State.Get(k) }

// SetState writes k immediately (visible to later steps sharing this State)
// and stages it for the next emitted event.
func (rc *RunContext) SetState(k string, v any) {
	rc.State.Set(k, v)
	rc.written.add(k)
	rc.delta.set(k, v)
}

// Written returns the keys written through this context lineage in first-write order.
func (rc *RunContext) Written() []string { return rc.written.list() }

// LastOutput returns the text of the last final response emitted through this lineage.
func (rc *RunContext) LastOutput() string { return rc.output.get() }

// ForAgent derives a context for a node sharing state, emit channel and
// write log with the receiver.
func (rc *RunContext) ForAgent(name, typ string) *RunContext {
	c := *rc
	c.Agent = AgentInfo{Name: name, Type: typ}
	c.delta = newStagedDelta()
	return &c
}

// Fork derives an isolated branch context. The branch sees a snapshot of
// the receiver's state and none of its siblings' writes.
func (rc *RunContext) Fork(ctx context.Context, branch string) *RunContext {
	c := *rc
	c.Context = ctx
	c.State = rc.State.Clone()
	c.Branch = branch
	c.delta = newStagedDelta()
	c.written = &writeLog{}
	c.output = &outputTracker{}
	return &c
}

// WithUserContent returns a copy using a different user query.
func (rc *RunContext) WithUserContent(content Content) *RunContext {
	c := *rc
	c.UserContent = content
	return &c
}

// MergeBranch applies the keys written in a forked branch to the receiver's
// state and records them as written here too.
func (rc *RunContext) MergeBranch(branch *RunContext) {
	keys := branch.Written()
	rc.State.Merge(keys, branch.State.Snapshot())
	for _, k := range keys {
		rc.written.add(k)
	}
	if out := branch.LastOutput(); out != "" {
		rc.output.set(out)
	}
}

// EmitEvent attaches the staged delta to the event and sends it to the runner.
func (rc *RunContext) EmitEvent(ev Event) error {
	if ev.RunID == "" {
		ev.RunID = rc.RunID
	}
	if ev.Branch == "" {
		ev.Branch = rc.Branch
	}

	if d := rc.delta.drain(); len(d) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = d
		} else {
			maps.Copy(ev.Actions.StateDelta, d)
		}
	}

	if ev.IsFinalResponse() {
		if text := ev.Text(); text != "" {
			rc.output.set(text)
		}
	}

	if rc.Emit == nil {
		return fmt.Errorf("emit channel not configured")
	}

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case rc.Emit <- ev:
	}

	return nil
}

type stagedDelta struct {
	mu     sync.Mutex
	values map[string]any
}

func newStagedDelta() *stagedDelta { return &stagedDelta{values: map[string]any{}} }

func (d *stagedDelta) set(k string, v any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[k] = v
}

func (d *stagedDelta) drain() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.values) == 0 {
		return nil
	}
	out := d.values
	d.values = map[string]any{}
	return out
}

type writeLog struct {
	mu   sync.Mutex
	keys []string
	seen map[string]struct{}
}

func (w *writeLog) add(k string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen == nil {
		w.seen = map[string]struct{}{}
	}
	if _, ok := w.seen[k]; ok {
		return
	}
	w.seen[k] = struct{}{}
	w.keys = append(w.keys, k)
}

func (w *writeLog) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.keys))
	copy(out, w.keys)
	return out
}

type outputTracker struct {
	mu   sync.Mutex
	text string
}

func (o *outputTracker) set(s string) {
	o.mu.Lock()
	o.text = s
	o.mu.Unlock()
}

func (o *outputTracker) get() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.text
}
