package agent

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/tool"
)

func exitTool() tool.Tool { return tool.NewExitLoopTool() }

// storyPipeline builds writer -> loop(critic, refiner). The critic approves
// on its approveAt-th call (1-based, 0 = never); the refiner exits when the
// critique says APPROVED and rewrites the draft otherwise.
func storyPipeline(t *testing.T, maxIterations, approveAt int) (Node, *model.MockModel) {
	t.Helper()

	critic := model.NewMockModel("critic", func(call int, _ model.Request) (model.Response, error) {
		if call+1 == approveAt {
			return model.TextResponse("APPROVED"), nil
		}
		return model.TextResponse(fmt.Sprintf("needs work #%d", call+1)), nil
	})

	refiner := model.NewMockModel("refiner", func(call int, req model.Request) (model.Response, error) {
		if strings.Contains(req.Instructions, "APPROVED") {
			return model.FunctionCallResponse(core.FunctionCall{ID: fmt.Sprintf("exit-%d", call), Name: tool.ExitLoopName}), nil
		}
		return model.TextResponse(fmt.Sprintf("draft v%d", call+2)), nil
	})

	root := NewSequential("story",
		newAgent(t, "initial_writer", say("draft v1"), "Write a short story.", "current_draft"),
		NewLoop("refinement", maxIterations,
			newAgent(t, "critic", critic, "Critique: {current_draft}", "critique"),
			newAgent(t, "refiner", refiner, "Critique: {critique}\nDraft: {current_draft}", "current_draft", exitTool()),
		),
	)
	require.NoError(t, Validate(root))

	return root, refiner
}

func loopEvent(t *testing.T, events []core.Event, name string) core.Event {
	t.Helper()
	for _, ev := range events {
		if ev.Author == name && ev.CustomMetadata[core.MetadataLoopOutcome] != "" {
			return ev
		}
	}
	t.Fatalf("no loop event for %s", name)
	return core.Event{}
}

func TestLoop_ExitsWhenCriticApproves(t *testing.T) {
	const maxIterations = 3

	for _, k := range []int{1, 2, maxIterations} {
		t.Run(fmt.Sprintf("approve at %d", k), func(t *testing.T) {
			root, refiner := storyPipeline(t, maxIterations, k)

			rc, sink := newRunContext(t, "a dragon", nil)
			control, err := Execute(rc, root)
			events := sink.Close()

			require.NoError(t, err)
			assert.Equal(t, core.Continue, control)

			ev := loopEvent(t, events, "refinement")
			assert.Equal(t, LoopExited.String(), ev.CustomMetadata[core.MetadataLoopOutcome])
			assert.Equal(t, fmt.Sprint(k), ev.CustomMetadata[core.MetadataLoopIterations])

			// Refiner rewrote k-1 times before exiting; the artifact is the last write.
			draft, _ := rc.GetState("current_draft")
			assert.Equal(t, fmt.Sprintf("draft v%d", k), draft)
			assert.Equal(t, k, refiner.Calls())

			critique, _ := rc.GetState("critique")
			assert.Equal(t, "APPROVED", critique)
		})
	}
}

func TestLoop_IterationLimitWithoutApproval(t *testing.T) {
	root, refiner := storyPipeline(t, 3, 0)

	rc, sink := newRunContext(t, "a dragon", nil)
	control, err := Execute(rc, root)
	events := sink.Close()

	require.NoError(t, err)
	assert.Equal(t, core.Continue, control)

	ev := loopEvent(t, events, "refinement")
	assert.Equal(t, LoopIterationLimitReached.String(), ev.CustomMetadata[core.MetadataLoopOutcome])
	assert.Equal(t, "3", ev.CustomMetadata[core.MetadataLoopIterations])

	assert.Equal(t, 3, refiner.Calls())
	for _, ev := range events {
		for _, fc := range ev.GetFunctionCalls() {
			assert.NotEqual(t, tool.ExitLoopName, fc.Name)
		}
	}

	draft, _ := rc.GetState("current_draft")
	assert.Equal(t, "draft v4", draft)
}

func TestLoop_ConsumesStop(t *testing.T) {
	inner := NewLoop("inner", 5, newAgent(t, "quitter", model.NewMockModel("q", nil), "x", "", exitTool()))
	after := say("after")
	root := NewSequential("outer", inner, newAgent(t, "after", after, "x", "after_out"))
	require.NoError(t, Validate(root))

	rc, sink := newRunContext(t, "q", nil)
	control, err := Execute(rc, root)
	sink.Close()

	require.NoError(t, err)
	assert.Equal(t, core.Continue, control)
	assert.Equal(t, 1, after.Calls())
}

func TestLoop_ErrorIncludesIteration(t *testing.T) {
	failing := model.NewMockModel("f", func(call int, _ model.Request) (model.Response, error) {
		if call == 1 {
			return model.Response{}, fmt.Errorf("exhausted")
		}
		return model.TextResponse("ok"), nil
	})
	root := NewLoop("refine", 3, newAgent(t, "worker", failing, "x", "out"))

	rc, sink := newRunContext(t, "q", nil)
	_, err := Execute(rc, root)
	sink.Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "loop refine: iteration 2: child worker")
}

func TestLoopOutcome_String(t *testing.T) {
	assert.Equal(t, "exited", LoopExited.String())
	assert.Equal(t, "iteration_limit_reached", LoopIterationLimitReached.String())
	assert.Equal(t, "unknown", LoopOutcome(9).String())
}
