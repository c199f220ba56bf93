package tool

import (
	"github.com/hupe1980/agentpipe/core"
)

// GoogleSearchName is the builtin search capability's name.
const GoogleSearchName = "google_search"

type googleSearchTool struct{}

// NewGoogleSearchTool returns the provider-native Google Search grounding tool.
// Providers without native search drop it with a warning.
func NewGoogleSearchTool() Tool { return &googleSearchTool{} }

func (t *googleSearchTool) Name() string { return GoogleSearchName }

func (t *googleSearchTool) Description() string {
	return "Searches the web with Google Search and grounds the answer on the results."
}

func (t *googleSearchTool) Parameters() map[string]any { return nil }

func (t *googleSearchTool) Builtin() {}

func (t *googleSearchTool) Call(*core.ToolContext, map[string]any) (any, error) {
	return nil, NewToolError(GoogleSearchName, "executed by the model provider, not locally", CodeExecution)
}
