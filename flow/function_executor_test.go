package flow

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/testutil"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/tool"
)

type teMockTool struct {
	name        string
	delay       time.Duration
	result      any
	panicMsg    any
	actionState map[string]any
	exit        bool
	running     *int32
	peak        *int32
}

func (mt *teMockTool) Name() string               { return mt.name }
func (mt *teMockTool) Description() string        { return "mock tool" }
func (mt *teMockTool) Parameters() map[string]any { return map[string]any{} }
func (mt *teMockTool) Call(tc *core.ToolContext, _ map[string]any) (any, error) {
	if mt.running != nil {
		n := atomic.AddInt32(mt.running, 1)
		defer atomic.AddInt32(mt.running, -1)
		for {
			p := atomic.LoadInt32(mt.peak)
			if n <= p || atomic.CompareAndSwapInt32(mt.peak, p, n) {
				break
			}
		}
	}
	if mt.delay > 0 {
		select {
		case <-time.After(mt.delay):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
	}
	if mt.panicMsg != nil {
		panic(mt.panicMsg)
	}
	for k, v := range mt.actionState {
		tc.SetState(k, v)
	}
	if mt.exit {
		tc.ExitLoop()
	}
	return mt.result, nil
}

func registryOf(tools ...tool.Tool) map[string]tool.Tool {
	reg := map[string]tool.Tool{}
	for _, t := range tools {
		reg[t.Name()] = t
	}
	return reg
}

func collect(events *[]core.Event) func(core.Event) error {
	return func(ev core.Event) error {
		*events = append(*events, ev)
		return nil
	}
}

func TestParallelFunctionExecutor_EmitsInCallOrder(t *testing.T) {
	rc, sink := testutil.NewRunContext(context.Background(), "q", nil)
	defer sink.Close()
	rc = rc.ForAgent("A", "llm")

	reg := registryOf(
		&teMockTool{name: "slow", delay: 30 * time.Millisecond, result: "r1", actionState: map[string]any{"a": 1}},
		&teMockTool{name: "fast", result: "r2"},
	)
	calls := []core.FunctionCall{{ID: "fc1", Name: "slow"}, {ID: "fc2", Name: "fast"}}

	var events []core.Event
	control, err := NewParallelFunctionExecutor(DefaultFunctionExecutorConfig()).Execute(rc, reg, calls, collect(&events))
	require.NoError(t, err)
	assert.Equal(t, core.Continue, control)

	require.Len(t, events, 2)
	assert.Equal(t, "fc1", events[0].GetFunctionResponses()[0].ID)
	assert.Equal(t, "fc2", events[1].GetFunctionResponses()[0].ID)
	assert.Equal(t, 1, events[0].Actions.StateDelta["a"])

	v, ok := rc.GetState("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestParallelFunctionExecutor_StopFromAnyCall(t *testing.T) {
	rc, sink := testutil.NewRunContext(context.Background(), "q", nil)
	defer sink.Close()

	reg := registryOf(&teMockTool{name: "plain"}, &teMockTool{name: "quit", exit: true})
	calls := []core.FunctionCall{{ID: "1", Name: "plain"}, {ID: "2", Name: "quit"}}

	var events []core.Event
	control, err := NewParallelFunctionExecutor(DefaultFunctionExecutorConfig()).Execute(rc, reg, calls, collect(&events))
	require.NoError(t, err)
	assert.Equal(t, core.Stop, control)
	assert.Equal(t, core.Stop, events[1].Actions.Control)
}

func TestParallelFunctionExecutor_PanicRecovery(t *testing.T) {
	rc, sink := testutil.NewRunContext(context.Background(), "q", nil)
	defer sink.Close()

	reg := registryOf(&teMockTool{name: "bad", panicMsg: "kaboom"})

	var events []core.Event
	_, err := NewParallelFunctionExecutor(DefaultFunctionExecutorConfig()).Execute(rc, reg, []core.FunctionCall{{ID: "p", Name: "bad"}}, collect(&events))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Contains(t, events[0].GetFunctionResponses()[0].Error, "kaboom")
}

func TestParallelFunctionExecutor_MaxParallel(t *testing.T) {
	rc, sink := testutil.NewRunContext(context.Background(), "q", nil)
	defer sink.Close()

	var running, peak int32
	reg := registryOf(&teMockTool{name: "t", delay: 10 * time.Millisecond, running: &running, peak: &peak})
	calls := make([]core.FunctionCall, 6)
	for i := range calls {
		calls[i] = core.FunctionCall{ID: string(rune('a' + i)), Name: "t"}
	}

	var events []core.Event
	cfg := FunctionExecutorConfig{MaxParallel: 2}
	_, err := NewParallelFunctionExecutor(cfg).Execute(rc, reg, calls, collect(&events))
	require.NoError(t, err)
	assert.Len(t, events, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestParallelFunctionExecutor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rc, sink := testutil.NewRunContext(ctx, "q", nil)
	defer sink.Close()
	cancel()

	reg := registryOf(&teMockTool{name: "t"})
	calls := []core.FunctionCall{{ID: "1", Name: "t"}, {ID: "2", Name: "t"}}

	var events []core.Event
	_, err := NewParallelFunctionExecutor(DefaultFunctionExecutorConfig()).Execute(rc, reg, calls, collect(&events))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, events)
}

func TestParallelFunctionExecutor_LogsToolCalls(t *testing.T) {
	var buf bytes.Buffer
	cfg := logging.DefaultLoggerConfig()
	cfg.Output = &buf
	logger := logging.NewLogger(cfg)

	rc := core.NewRunContext(context.Background(), "run-log", core.NewTextContent("user", "q"), nil, nil, 0, logger).
		ForAgent("A", "llm")

	reg := registryOf(&teMockTool{name: "good", result: "ok"}, &teMockTool{name: "bad", panicMsg: "kaboom"})
	calls := []core.FunctionCall{{ID: "1", Name: "good"}, {ID: "2", Name: "bad"}}

	var events []core.Event
	_, err := NewParallelFunctionExecutor(DefaultFunctionExecutorConfig()).Execute(rc, reg, calls, collect(&events))
	require.NoError(t, err)
	require.Len(t, events, 2)

	out := buf.String()
	assert.Contains(t, out, `"msg":"tool.call.completed"`)
	assert.Contains(t, out, `"tool_name":"good"`)
	assert.Contains(t, out, `"msg":"tool.call.failed"`)
	assert.Contains(t, out, `"msg":"agent.function.panic"`)
	assert.Contains(t, out, `"stack_trace"`)
}
