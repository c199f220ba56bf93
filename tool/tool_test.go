package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
)

func dummyToolContext(id string) *core.ToolContext {
	emit := make(chan core.Event, 10)
	rc := core.NewRunContext(context.Background(), "run-1", core.NewTextContent("user", "q"), emit, core.NewState(nil), 0, nil)
	return core.NewToolContext(rc.ForAgent("critic", "llm"), id)
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	result, err := sumTool.Call(dummyToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type":       "object",
		"properties": map[string]any{"a": map[string]any{"type": "number"}},
		"required":   []string{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})
	_, err := tTool.Call(dummyToolContext("fc2"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})
	_, err := execTool.Call(dummyToolContext("fc3"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "boom", toolErr.Message)
}

func TestFunctionTool_CustomCodePreserved(t *testing.T) {
	custom := NewFunctionTool("custom", "Custom", nil, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, NewToolError("custom", "rate limited", "RATE_LIMIT")
	})
	_, err := custom.Call(dummyToolContext("fc4"), map[string]any{})

	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "RATE_LIMIT", toolErr.Code)
}

type draftArgs struct {
	Text string `json:"text" description:"Draft to count"`
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	ft := NewFunctionToolFromStruct("word_count", "Count words", draftArgs{}, func(_ *core.ToolContext, args map[string]any) (any, error) {
		return len(args["text"].(string)), nil
	})
	assert.Equal(t, []string{"text"}, ft.Parameters()["required"])
}

// -------------------- Loop control --------------------

func TestExitLoopTool(t *testing.T) {
	tc := dummyToolContext("fc-exit")
	exit := NewExitLoopTool()

	res, err := exit.Call(tc, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "approved", res.(map[string]any)["status"])
	assert.Equal(t, core.Stop, tc.Control())
	assert.Contains(t, exit.Description(), "APPROVED")
}

// -------------------- Builtins --------------------

func TestGoogleSearchIsBuiltin(t *testing.T) {
	gs := NewGoogleSearchTool()
	assert.True(t, IsBuiltin(gs))
	assert.False(t, IsBuiltin(NewExitLoopTool()))

	def := Definition(gs)
	assert.Equal(t, model.ToolTypeBuiltin, def.Type)
	assert.Equal(t, GoogleSearchName, def.Function.Name)

	_, err := gs.Call(dummyToolContext("fc-gs"), nil)
	assert.Error(t, err)
}

func TestDefinition_Function(t *testing.T) {
	def := Definition(NewExitLoopTool())
	assert.Equal(t, model.ToolTypeFunction, def.Type)
	assert.Equal(t, ExitLoopName, def.Function.Name)
	assert.Equal(t, "object", def.Function.Parameters["type"])
}

// -------------------- ToolError Formatting --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}

func TestStateManagerTool(t *testing.T) {
	tc := dummyToolContext("fc-state")
	sm := NewStateManagerTool()
	assert.Equal(t, StateManagerName, sm.Name())

	res, err := sm.Call(tc, map[string]any{"operation": OpGetState, "key": "draft"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "draft", "exists": false, "value": nil}, res)

	_, err = sm.Call(tc, map[string]any{"operation": OpSetState, "key": "draft", "value": "v1"})
	require.NoError(t, err)
	res, err = sm.Call(tc, map[string]any{"operation": OpSetState, "key": "draft", "value": "v2"})
	require.NoError(t, err)
	assert.Equal(t, "v1", res.(map[string]any)["previous"])

	v, ok := tc.GetState("draft")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
	assert.Equal(t, "v2", tc.Actions().StateDelta["draft"])
}

func TestStateManagerTool_Errors(t *testing.T) {
	sm := NewStateManagerTool()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing operation", map[string]any{"key": "k"}},
		{"unknown operation", map[string]any{"operation": "transfer_agent", "key": "k"}},
		{"empty key", map[string]any{"operation": OpGetState, "key": ""}},
		{"set without value", map[string]any{"operation": OpSetState, "key": "k"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sm.Call(dummyToolContext("fc"), tt.args)
			var te *ToolError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, CodeValidation, te.Code)
		})
	}
}
