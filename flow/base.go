package flow

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

// BaseFlow implements the request -> model -> (optional tool batch) cycle
// with pluggable pre/post processors.
type BaseFlow struct {
	agent              FlowAgent
	executor           FunctionExecutor
	requestProcessors  []RequestProcessor
	responseProcessors []ResponseProcessor
}

// NewBaseFlow creates a flow without processors.
func NewBaseFlow(agent FlowAgent) *BaseFlow {
	return &BaseFlow{
		agent:    agent,
		executor: NewParallelFunctionExecutor(DefaultFunctionExecutorConfig()),
	}
}

// AddRequestProcessor appends a request processor; order of registration defines execution order.
func (f *BaseFlow) AddRequestProcessor(processor RequestProcessor) {
	f.requestProcessors = append(f.requestProcessors, processor)
}

// AddResponseProcessor appends a response processor executed on each final model response.
func (f *BaseFlow) AddResponseProcessor(processor ResponseProcessor) {
	f.responseProcessors = append(f.responseProcessors, processor)
}

// Run drives model turns until the model answers without function calls,
// a tool requests Stop, or the turn budget is spent.
//
// On a final answer the text is written to the agent's output key before
// the final event is emitted, so the write travels as the event's state
// delta. A Stop skips the output key write.
func (f *BaseFlow) Run(runCtx *core.RunContext) (core.Control, error) {
	maxTurns := f.agent.MaxTurns()
	if maxTurns < 1 {
		maxTurns = DefaultMaxTurns
	}

	registry := make(map[string]tool.Tool)
	for _, t := range f.agent.GetTools() {
		registry[t.Name()] = t
	}

	inv := &Invocation{RunCtx: runCtx, Agent: f.agent}

	for inv.Turn = 1; inv.Turn <= maxTurns; inv.Turn++ {
		if err := runCtx.Err(); err != nil {
			return core.Continue, err
		}

		resp, err := f.generate(inv)
		if err != nil {
			return core.Continue, err
		}

		fnCalls := eventCalls(resp.Content)
		if len(fnCalls) == 0 {
			return core.Continue, f.finish(runCtx, resp)
		}

		callEv := core.NewEvent(runCtx.RunID, f.agent.GetName())
		content := resp.Content
		callEv.Content = &content
		if err := runCtx.EmitEvent(callEv); err != nil {
			return core.Continue, err
		}
		inv.History = append(inv.History, content)

		control, err := f.executor.Execute(runCtx, registry, fnCalls, func(ev core.Event) error {
			if ev.Content != nil {
				inv.History = append(inv.History, *ev.Content)
			}
			return runCtx.EmitEvent(ev)
		})
		if err != nil {
			return core.Continue, err
		}

		if control == core.Stop {
			runCtx.LogInfo("agent.run.stop", "agent", f.agent.GetName(), "turn", inv.Turn)
			return core.Stop, nil
		}
	}

	return core.Continue, fmt.Errorf("%w: %s stopped after %d turns", ErrMaxTurns, f.agent.GetName(), maxTurns)
}

// generate builds the request, calls the model and returns the final
// (non-partial) response. Partial chunks are forwarded as partial events.
func (f *BaseFlow) generate(inv *Invocation) (model.Response, error) {
	runCtx := inv.RunCtx

	req := new(model.Request)
	for _, processor := range f.requestProcessors {
		if err := processor.ProcessRequest(inv, req); err != nil {
			return model.Response{}, fmt.Errorf("request processor %s failed: %w", processor.Name(), err)
		}
	}

	if runCtx.Limiter != nil {
		if err := runCtx.Limiter.Increment(); err != nil {
			return model.Response{}, err
		}
	}

	llm := f.agent.GetLLM()
	if llm == nil {
		return model.Response{}, fmt.Errorf("agent %s has no model", f.agent.GetName())
	}

	runCtx.LogDebug("agent.model.request", "agent", f.agent.GetName(), "turn", inv.Turn, "contents", len(req.Contents), "tools", len(req.Tools))

	start := time.Now()
	respCh, errCh := llm.Generate(runCtx.Context, *req)

	var (
		final    model.Response
		gotFinal bool
	)
	for resp := range respCh {
		if resp.Partial {
			ev := core.NewEvent(runCtx.RunID, f.agent.GetName())
			content := resp.Content
			ev.Content = &content
			ev.Partial = true
			if err := runCtx.EmitEvent(ev); err != nil {
				return model.Response{}, err
			}
			continue
		}
		final = resp
		gotFinal = true
	}

	err := <-errCh
	if pl, ok := runCtx.Logger().(*logging.PipeLogger); ok {
		pl.LogModelCall(llm.Info().Name, time.Since(start), err)
	}
	if err != nil {
		return model.Response{}, fmt.Errorf("model %s: %w", llm.Info().Name, err)
	}
	if !gotFinal {
		return model.Response{}, fmt.Errorf("model %s returned no response", llm.Info().Name)
	}

	for _, processor := range f.responseProcessors {
		if err := processor.ProcessResponse(inv, &final); err != nil {
			return model.Response{}, fmt.Errorf("response processor %s failed: %w", processor.Name(), err)
		}
	}

	return final, nil
}

// finish records the final answer under the output key and emits it.
func (f *BaseFlow) finish(runCtx *core.RunContext, resp model.Response) error {
	content := resp.Content
	if content.Role == "" {
		content.Role = "assistant"
	}

	if key := f.agent.GetOutputKey(); key != "" {
		runCtx.SetState(key, content.Text())
		runCtx.LogDebug("agent.output.saved", "agent", f.agent.GetName(), "output_key", key)
	}

	ev := core.NewEvent(runCtx.RunID, f.agent.GetName())
	ev.Content = &content

	return runCtx.EmitEvent(ev)
}

func eventCalls(content core.Content) []core.FunctionCall {
	var calls []core.FunctionCall
	for _, p := range content.Parts {
		if fc, ok := p.(core.FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}
