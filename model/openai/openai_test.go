package openai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
)

func TestModel_MissingCredential(t *testing.T) {
	m := NewModel()
	respCh, errCh := m.Generate(context.Background(), model.Request{})
	for range respCh {
	}
	assert.ErrorIs(t, <-errCh, model.ErrMissingCredential)
	assert.Equal(t, "openai", m.Info().Provider)
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages(model.Request{
		Instructions: "system prompt",
		Contents: []core.Content{
			core.NewTextContent("user", "question"),
			{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "lookup"}}}},
			{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "lookup", Response: map[string]any{"v": 1}}}}},
		},
	})
	require.Len(t, msgs, 4)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Equal(t, "{}", msgs[2].OfAssistant.ToolCalls[0].Function.Arguments)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "c1", msgs[3].OfTool.ToolCallID)
}

func TestBuildParams_DropsBuiltins(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "k" })
	params := m.buildParams(model.Request{Tools: []model.ToolDefinition{
		{Type: model.ToolTypeFunction, Function: model.FunctionDefinition{Name: "exit_loop"}},
		{Type: model.ToolTypeBuiltin, Function: model.FunctionDefinition{Name: "google_search"}},
	}}, nil)
	require.Len(t, params.Tools, 1)
	assert.Equal(t, "exit_loop", params.Tools[0].Function.Name)
}

func TestFinalChunk_OrdersToolCalls(t *testing.T) {
	r := finalChunk("tool_calls", "", map[int64]*aggCall{
		1: {id: "b", name: "second"},
		0: {id: "a", name: "first"},
	})
	require.Len(t, r.Content.Parts, 2)
	assert.Equal(t, "first", r.Content.Parts[0].(core.FunctionCallPart).FunctionCall.Name)
}
