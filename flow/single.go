package flow

// SingleAgentFlow is the default flow for an LLM agent. It wires the
// instruction, contents and tools processors and assigns missing call ids.
type SingleAgentFlow struct{ *BaseFlow }

// NewSingleAgentFlow creates a new single-agent flow.
func NewSingleAgentFlow(agent FlowAgent) *SingleAgentFlow {
	baseFlow := NewBaseFlow(agent)

	baseFlow.AddRequestProcessor(NewInstructionsProcessor())
	baseFlow.AddRequestProcessor(NewContentsProcessor())
	baseFlow.AddRequestProcessor(NewToolsProcessor())
	baseFlow.AddResponseProcessor(NewFunctionCallIDProcessor())

	return &SingleAgentFlow{BaseFlow: baseFlow}
}
