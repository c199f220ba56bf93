package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/tool"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		build   func(t *testing.T) Node
		seed    []string
		wantErr []string
	}{
		{
			name: "sequential causal order ok",
			build: func(t *testing.T) Node {
				return NewSequential("blog",
					newAgent(t, "outline", nil, "Outline the topic.", "blog_outline"),
					newAgent(t, "writer", nil, "Write from {blog_outline}", "blog_draft"),
					newAgent(t, "editor", nil, "Edit {blog_draft}", "final_blog"),
				)
			},
		},
		{
			name: "sequential reads a later write",
			build: func(t *testing.T) Node {
				return NewSequential("blog",
					newAgent(t, "writer", nil, "Write from {blog_outline}", "blog_draft"),
					newAgent(t, "outline", nil, "Outline the topic.", "blog_outline"),
				)
			},
			wantErr: []string{`blog/writer: instruction requires "blog_outline"`},
		},
		{
			name: "seed key satisfies requirement",
			build: func(t *testing.T) Node {
				return newAgent(t, "writer", nil, "Write about {topic}", "")
			},
			seed: []string{"topic"},
		},
		{
			name: "optional key never required",
			build: func(t *testing.T) Node {
				return newAgent(t, "writer", nil, "Notes: {notes?}", "")
			},
		},
		{
			name: "parallel sibling read rejected",
			build: func(t *testing.T) Node {
				return NewParallel("research",
					newAgent(t, "tech", nil, "Tech.", "tech_research_findings"),
					newAgent(t, "medical", nil, "Use {tech_research_findings}", "medical_research_findings"),
				)
			},
			wantErr: []string{`research/medical: instruction requires "tech_research_findings"`},
		},
		{
			name: "parallel outputs available after join",
			build: func(t *testing.T) Node {
				return NewSequential("pipeline",
					NewParallel("research",
						newAgent(t, "tech", nil, "Tech.", "tech_research_findings"),
						newAgent(t, "medical", nil, "Medical.", "medical_research_findings"),
					),
					newAgent(t, "aggregator", nil, "{tech_research_findings} {medical_research_findings}", "executive_summary"),
				)
			},
		},
		{
			name: "parallel collision rejected",
			build: func(t *testing.T) Node {
				return NewParallel("research",
					newAgent(t, "a", nil, "A.", "findings"),
					NewSequential("nested", newAgent(t, "b", nil, "B.", "findings")),
				)
			},
			wantErr: []string{`parallel children a and nested both write "findings"`},
		},
		{
			name: "loop first iteration cannot read its own later write",
			build: func(t *testing.T) Node {
				return NewLoop("refine", 3,
					newAgent(t, "critic", nil, "Critique {current_draft}", "critique"),
					newAgent(t, "refiner", nil, "Use {critique}", "current_draft", tool.NewExitLoopTool()),
				)
			},
			wantErr: []string{`refine/critic: instruction requires "current_draft"`},
		},
		{
			name: "story pipeline ok",
			build: func(t *testing.T) Node {
				return NewSequential("story",
					newAgent(t, "initial", nil, "Write.", "current_draft"),
					NewLoop("refine", 3,
						newAgent(t, "critic", nil, "Critique {current_draft}", "critique"),
						newAgent(t, "refiner", nil, "{critique} {current_draft}", "current_draft", tool.NewExitLoopTool()),
					),
				)
			},
		},
		{
			name: "exit tool outside loop",
			build: func(t *testing.T) Node {
				return newAgent(t, "refiner", nil, "x", "", tool.NewExitLoopTool())
			},
			wantErr: []string{"exit_loop tool used outside a loop"},
		},
		{
			name: "loop needs iterations and children",
			build: func(t *testing.T) Node {
				return NewLoop("empty", 0)
			},
			wantErr: []string{"max iterations must be >= 1", "composite has no children"},
		},
		{
			name: "duplicate sibling names",
			build: func(t *testing.T) Node {
				return NewSequential("s", newAgent(t, "same", nil, "x", ""), newAgent(t, "same", nil, "y", ""))
			},
			wantErr: []string{`duplicate child name "same"`},
		},
		{
			name: "node reused",
			build: func(t *testing.T) Node {
				shared := newAgent(t, "shared", nil, "x", "")
				return NewSequential("s", shared, NewSequential("inner", shared))
			},
			wantErr: []string{"s/inner/shared: node already used at s/shared"},
		},
		{
			name: "agent tool validated at caller availability",
			build: func(t *testing.T) Node {
				research := newAgent(t, "research", nil, "About {topic}", "research_findings")
				return newAgent(t, "coordinator", nil, "Coordinate.", "", AsTool(research))
			},
			wantErr: []string{`coordinator/research: instruction requires "topic"`},
		},
		{
			name: "agent tool writes are optional for later siblings",
			build: func(t *testing.T) Node {
				research := newAgent(t, "research", nil, "Research.", "research_findings")
				return NewSequential("s",
					newAgent(t, "coordinator", nil, "Coordinate.", "", AsTool(research)),
					newAgent(t, "reporter", nil, "Report on {research_findings?}", "report"),
				)
			},
		},
		{
			name: "agent tool writes do not satisfy required keys",
			build: func(t *testing.T) Node {
				research := newAgent(t, "research", nil, "Research.", "research_findings")
				return NewSequential("s",
					newAgent(t, "coordinator", nil, "Coordinate.", "", AsTool(research)),
					newAgent(t, "reporter", nil, "Report on {research_findings}", "report"),
				)
			},
			wantErr: []string{`s/reporter: instruction requires "research_findings" which is only written by an agent tool; use {research_findings?}`},
		},
		{
			name: "later agent tool sees earlier tool writes as optional",
			build: func(t *testing.T) Node {
				research := newAgent(t, "research", nil, "Research.", "research_findings")
				summarizer := newAgent(t, "summarizer", nil, "Summarize {research_findings?}", "summary")
				return newAgent(t, "coordinator", nil, "Coordinate.", "", AsTool(research), AsTool(summarizer))
			},
		},
		{
			name: "parallel keeps agent tool writes optional",
			build: func(t *testing.T) Node {
				research := newAgent(t, "research", nil, "Research.", "research_findings")
				return NewSequential("s",
					NewParallel("fan", newAgent(t, "coordinator", nil, "Coordinate.", "", AsTool(research))),
					newAgent(t, "reporter", nil, "Report on {research_findings}", "report"),
				)
			},
			wantErr: []string{`which is only written by an agent tool`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.build(t), tt.seed...)
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidPipeline)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
			assert.Len(t, ValidationErrors(err), len(tt.wantErr))
		})
	}
}

func TestFormatValidation(t *testing.T) {
	err := Validate(NewLoop("l", 0))
	out := FormatValidation(err)
	assert.Contains(t, out, "  - l: max iterations")
	assert.Contains(t, out, "\n  - l: composite has no children")
	assert.Empty(t, FormatValidation(nil))
}
