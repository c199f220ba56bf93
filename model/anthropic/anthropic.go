// Package anthropic provides a model.Model backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/internal/util"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model"
)

// Options configures the Anthropic model adapter.
type Options struct {
	Model       anthropic.Model
	Temperature *float64
	MaxTokens   int64
	APIKey      string
	// HTTPClient carries the retry transport; SDK retries are disabled.
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	opts Options

	once      sync.Once
	client    *anthropic.Client
	clientErr error
}

// NewModel creates a new Anthropic model. The SDK client is created on first use.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:     anthropic.ModelClaudeSonnet4_0,
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.Scoped(opts.Logger, "model.anthropic")
	return &Model{opts: opts}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	m := NewModel(optFns...)
	m.once.Do(func() { m.client = client })
	return m
}

func (m *Model) getClient() (*anthropic.Client, error) {
	m.once.Do(func() {
		if m.opts.APIKey == "" {
			m.clientErr = fmt.Errorf("%w: anthropic requires an API key", model.ErrMissingCredential)
			return
		}
		reqOpts := []option.RequestOption{
			option.WithAPIKey(m.opts.APIKey),
			option.WithMaxRetries(0),
		}
		if m.opts.HTTPClient != nil {
			reqOpts = append(reqOpts, option.WithHTTPClient(m.opts.HTTPClient))
		}
		c := anthropic.NewClient(reqOpts...)
		m.client = &c
	})
	return m.client, m.clientErr
}

// Generate implements model.Model. Streaming requests are served with a
// single final response.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		client, err := m.getClient()
		if err != nil {
			errCh <- err
			return
		}

		resp, err := client.Messages.New(ctx, m.buildParams(req))
		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		var parts []core.Part
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				if text := block.AsText().Text; text != "" {
					parts = append(parts, core.TextPart{Text: text})
				}
			case "tool_use":
				tu := block.AsToolUse()
				args := string(tu.Input)
				if args == "" || args == "null" {
					args = "{}"
				}
				parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: tu.ID, Name: tu.Name, Arguments: args}})
			}
		}

		finishReason := "stop"
		if resp.StopReason != "" {
			finishReason = string(resp.StopReason)
		}

		out <- model.Response{
			ID:           resp.ID,
			Content:      core.Content{Role: "assistant", Parts: parts},
			FinishReason: finishReason,
			Usage: &model.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
				TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
			},
		}
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     m.opts.Model,
		Messages:  buildMessages(req.Contents),
		MaxTokens: m.opts.MaxTokens,
	}
	if m.opts.Temperature != nil {
		params.Temperature = anthropic.Float(*m.opts.Temperature)
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	functions, builtins := model.SplitTools(req.Tools)
	for _, b := range builtins {
		m.opts.Logger.Warn("model.builtin_tool.unsupported", "tool", b.Function.Name, "provider", "anthropic")
	}
	if len(functions) > 0 {
		params.Tools = buildTools(functions)
	}
	return params
}

// buildMessages converts contents into Anthropic messages. Tool results are
// sent as user messages carrying tool_result blocks.
func buildMessages(contents []core.Content) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, c := range contents {
		var blocks []anthropic.ContentBlockParamUnion
		for _, p := range c.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case core.FunctionCallPart:
				var input any = map[string]any{}
				if part.FunctionCall.Arguments != "" {
					if err := json.Unmarshal([]byte(part.FunctionCall.Arguments), &input); err != nil {
						input = map[string]any{"raw": part.FunctionCall.Arguments}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(part.FunctionCall.ID, input, part.FunctionCall.Name))
			case core.FunctionResponsePart:
				fr := part.FunctionResponse
				blocks = append(blocks, anthropic.NewToolResultBlock(fr.ID, model.FunctionResponseText(fr), fr.Error != ""))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if c.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return messages
}

func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{}
		if params := tool.Function.Parameters; params != nil {
			schema.Properties = params["properties"]
			schema.Required = util.RequiredFields(params)
		}
		u := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
		if tool.Function.Description != "" {
			u.OfTool.Description = anthropic.String(tool.Function.Description)
		}
		out[i] = u
	}
	return out
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: string(m.opts.Model), Provider: "anthropic", SupportsTools: true}
}
