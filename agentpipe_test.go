package agentpipe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/model/provider"
	"github.com/hupe1980/agentpipe/pipeline"
	"github.com/hupe1980/agentpipe/runner"
)

func newMockClient(t *testing.T, optFns ...func(o *Options)) (*Client, *model.MockModel) {
	t.Helper()
	mock := model.NewMockModel("mock", nil)
	c, err := New(Config{}, append([]func(o *Options){func(o *Options) { o.Model = mock }}, optFns...)...)
	require.NoError(t, err)
	return c, mock
}

func TestNew_MockProvider(t *testing.T) {
	c, err := New(Config{Provider: provider.Config{Provider: provider.Mock}})
	require.NoError(t, err)
	assert.Equal(t, "mock", c.Model().Info().Provider)
	assert.Equal(t, []string{"blog", "coordinator", "research", "search", "story"}, c.Catalog().Names())
}

func TestClient_InvokeSync(t *testing.T) {
	c, mock := newMockClient(t)

	res, err := c.InvokeSync(context.Background(), "blog", "Go testing")
	require.NoError(t, err)

	assert.Equal(t, []string{"blog_outline", "blog_draft", "final_blog"}, res.State.Keys())
	final, _ := res.Output("final_blog")
	assert.Equal(t, final, res.Final())
	assert.Equal(t, 3, mock.Calls())

	sess, err := c.Session(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, core.SessionSucceeded, sess.Status)
	assert.Equal(t, "Go testing", sess.Query)
}

func TestClient_DefaultQuery(t *testing.T) {
	c, _ := newMockClient(t)

	res, err := c.InvokeSync(context.Background(), "story", "")
	require.NoError(t, err)

	def, err := c.Definition("story")
	require.NoError(t, err)
	assert.Equal(t, def.Query, res.Query)
}

func TestClient_UnknownPipeline(t *testing.T) {
	c, _ := newMockClient(t)

	_, err := c.InvokeSync(context.Background(), "nope", "q")
	assert.ErrorIs(t, err, pipeline.ErrPipelineNotFound)
}

func TestClient_RegisterAndValidate(t *testing.T) {
	c, _ := newMockClient(t)

	broken := &pipeline.Definition{
		Name: "broken",
		Root: pipeline.NodeSpec{
			Type:        pipeline.TypeAgent,
			Name:        "writer",
			Instruction: "Rewrite {draft}.",
		},
	}
	require.NoError(t, c.Register(broken))

	err := c.Validate("broken")
	require.ErrorIs(t, err, agent.ErrInvalidPipeline)
	assert.Contains(t, err.Error(), `"draft"`)

	_, err = c.InvokeSync(context.Background(), "broken", "q")
	assert.ErrorIs(t, err, agent.ErrInvalidPipeline)

	// The built-in catalog is not modified.
	other, _ := newMockClient(t)
	assert.NotContains(t, other.Catalog().Names(), "broken")
}

func TestClient_Describe(t *testing.T) {
	c, _ := newMockClient(t)

	out, err := c.Describe("story")
	require.NoError(t, err)
	assert.Contains(t, out, "- story_writer_agent (loop, max 3)")
	assert.Contains(t, out, "refine_agent (llm -> current_draft, tools: exit_loop)")
}

func TestClient_InvokeWithConcurrencyLimit(t *testing.T) {
	c, _ := newMockClient(t, func(o *Options) { o.MaxConcurrentRuns = 1 })

	for range 2 {
		runID, events, errs, err := c.Invoke(context.Background(), "search", "weather")
		require.NoError(t, err)

		var n int
		for range events {
			n++
		}
		require.NoError(t, <-errs)
		assert.Positive(t, n)

		sess, err := c.Session(runID)
		require.NoError(t, err)
		assert.Equal(t, core.SessionSucceeded, sess.Status)
	}
}

func TestClient_CancelledUnreadRunReleasesSlot(t *testing.T) {
	mock := model.NewMockModel("mock", model.Sequence(model.TextResponse(strings.Repeat("x", 500))))
	c, err := New(Config{}, func(o *Options) {
		o.Model = mock
		o.MaxConcurrentRuns = 1
	})
	require.NoError(t, err)
	require.NoError(t, c.Register(&pipeline.Definition{
		Name:  "chatty",
		Query: "talk",
		Root:  pipeline.NodeSpec{Type: pipeline.TypeAgent, Name: "talker", Stream: true, OutputKey: "talk"},
	}))

	ctx, cancel := context.WithCancel(context.Background())
	_, events, errs, err := c.Invoke(ctx, "chatty", "")
	require.NoError(t, err)

	// Nobody reads until the relay buffer is full.
	require.Eventually(t, func() bool { return len(events) == cap(events) }, 2*time.Second, 5*time.Millisecond)
	cancel()

	next, cancelNext := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelNext()
	res, err := c.InvokeSync(next, "chatty", "")
	require.NoError(t, err)
	assert.Len(t, res.Final(), 500)

	for range events {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestClient_AcquireHonorsContext(t *testing.T) {
	c, _ := newMockClient(t, func(o *Options) { o.MaxConcurrentRuns = 1 })
	c.slots <- struct{}{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.InvokeSync(ctx, "search", "q")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_CancelUnknown(t *testing.T) {
	c, _ := newMockClient(t)
	_, err := c.Runner("blog")
	require.NoError(t, err)

	assert.ErrorIs(t, c.Cancel("missing"), runner.ErrRunNotFound)
}
