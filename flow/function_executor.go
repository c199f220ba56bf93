package flow

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/tool"
)

// FunctionExecutor executes a batch of function calls, possibly in parallel,
// and emits one function response event per call. Implementations must:
//   - Respect runCtx.Context cancellation
//   - Never panic (recover internally and report the panic as a tool error)
//   - Apply ToolContext accumulated actions to emitted events
//
// It returns Stop if any tool requested loop termination.
type FunctionExecutor interface {
	Execute(runCtx *core.RunContext, registry map[string]tool.Tool, fnCalls []core.FunctionCall, emit func(core.Event) error) (core.Control, error)
}

// DefaultMaxParallelCalls bounds concurrent tool calls of one model turn.
const DefaultMaxParallelCalls = 8

// FunctionExecutorConfig configures the default parallel executor. Responses
// are always emitted in call order.
type FunctionExecutorConfig struct {
	MaxParallel int // 0 or <1 => no explicit limit (len(fnCalls))
}

// DefaultFunctionExecutorConfig runs up to DefaultMaxParallelCalls tools at once.
func DefaultFunctionExecutorConfig() FunctionExecutorConfig {
	return FunctionExecutorConfig{MaxParallel: DefaultMaxParallelCalls}
}

type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	return &parallelFunctionExecutor{cfg: cfg}
}

type callResult struct {
	event   core.Event
	control core.Control
	done    bool
}

func (e *parallelFunctionExecutor) Execute(
	runCtx *core.RunContext,
	registry map[string]tool.Tool,
	fnCalls []core.FunctionCall,
	emit func(core.Event) error,
) (core.Control, error) {
	n := len(fnCalls)
	if n == 0 {
		return core.Continue, nil
	}

	if n == 1 {
		res := e.call(runCtx, registry, fnCalls[0])
		if err := emit(res.event); err != nil {
			return core.Continue, err
		}
		return res.control, nil
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var (
		results  = make([]callResult, n)
		mu       sync.Mutex
		wg       sync.WaitGroup
		emitErr  error
		sem      = make(chan struct{}, maxPar)
		batchRun = time.Now()
	)

	for i := range fnCalls {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()

			if runCtx.Err() != nil {
				return
			}

			res := e.call(runCtx, registry, fc)

			mu.Lock()
			results[idx] = res
			mu.Unlock()
		}(i, fnCalls[i])
	}

	wg.Wait()

	if err := runCtx.Err(); err != nil {
		return core.Continue, err
	}

	control := core.Continue
	for i := range results {
		if !results[i].done {
			continue
		}
		if results[i].control == core.Stop {
			control = core.Stop
		}
		if emitErr == nil {
			emitErr = emit(results[i].event)
		}
	}

	runCtx.LogDebug(
		"agent.functions.batch.complete",
		"agent", runCtx.Agent.Name,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchRun).Milliseconds(),
	)

	return control, emitErr
}

// call runs a single function with panic safety and builds its response event.
func (e *parallelFunctionExecutor) call(runCtx *core.RunContext, registry map[string]tool.Tool, fc core.FunctionCall) callResult {
	agentName := runCtx.Agent.Name
	toolCtx := core.NewToolContext(runCtx, fc.ID)

	start := time.Now()
	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
				if pl, ok := runCtx.Logger().(*logging.PipeLogger); ok {
					pl.ErrorWithStack(err, "agent.function.panic", "agent", agentName, "function", fc.Name)
				} else {
					runCtx.LogError("agent.function.panic", "agent", agentName, "function", fc.Name, "recover", r)
				}
			}
		}()
		result, err = executeTool(registry, toolCtx, fc.Name, fc.Arguments)
	}()

	if pl, ok := runCtx.Logger().(*logging.PipeLogger); ok {
		pl.LogToolCall(fc.Name, time.Since(start), err)
	}

	respEv := core.NewFunctionResponseEvent(runCtx.RunID, agentName, fc.ID, fc.Name, result, err)
	toolCtx.InternalApplyActions(&respEv)

	return callResult{event: respEv, control: toolCtx.Control(), done: true}
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeTool looks up the tool and invokes it with decoded arguments.
func executeTool(registry map[string]tool.Tool, toolCtx *core.ToolContext, toolName, args string) (any, error) {
	impl, ok := registry[toolName]
	if !ok {
		return nil, fmt.Errorf("tool %s not found", toolName)
	}

	argMap := map[string]any{}
	if args != "" {
		if err := json.Unmarshal([]byte(args), &argMap); err != nil {
			return nil, fmt.Errorf("failed to unmarshal args: %w", err)
		}
	}

	return impl.Call(toolCtx, argMap)
}
