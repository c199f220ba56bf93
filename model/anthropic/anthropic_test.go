package anthropic

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
	assert.Equal(t, "anthropic", m.Info().Provider)
}

func TestBuildMessages_ToolResultsAreUserTurns(t *testing.T) {
	msgs := buildMessages([]core.Content{
		core.NewTextContent("user", "question"),
		{Role: "assistant", Parts: []core.Part{core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: "c1", Name: "lookup", Arguments: `{"q":"x"}`}}}},
		{Role: "tool", Parts: []core.Part{core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{ID: "c1", Name: "lookup", Error: "boom"}}}},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
	require.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", msgs[2].Content[0].OfToolResult.ToolUseID)
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Type: model.ToolTypeFunction,
		Function: model.FunctionDefinition{
			Name:        "lookup",
			Description: "Look something up",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"q": map[string]any{"type": "string"}},
				"required":   []string{"q"},
			},
		},
	}})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "lookup", tools[0].OfTool.Name)
	assert.Equal(t, []string{"q"}, tools[0].OfTool.InputSchema.Required)
	assert.Equal(t, "Look something up", tools[0].OfTool.Description.Value)
}
