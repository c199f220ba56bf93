// Package gemini provides a model.Model backed by the Gemini API through
// google.golang.org/genai.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/hupe1980/agentpipe/core"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model"
)

// DefaultModel is used when Options.Model is empty.
const DefaultModel = "gemini-2.5-flash-lite"

// GoogleSearchTool is the builtin tool name mapped to genai.GoogleSearch.
const GoogleSearchTool = "google_search"

// Options configures the Gemini model adapter.
type Options struct {
	Model           string
	APIKey          string
	Temperature     *float32
	MaxOutputTokens int32
	// HTTPClient carries the retry transport.
	HTTPClient *http.Client
	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string
	Logger  logging.Logger
}

// Model wraps genai.Models behind model.Model. The genai client is created
// lazily so a missing key only fails once a call is made.
type Model struct {
	opts Options

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewModel creates a Gemini model.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{Model: DefaultModel}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	opts.Logger = logging.Scoped(opts.Logger, "model.gemini")
	return &Model{opts: opts}
}

func (m *Model) getClient(ctx context.Context) (*genai.Client, error) {
	m.once.Do(func() {
		if m.opts.APIKey == "" {
			m.clientErr = fmt.Errorf("%w: gemini requires GOOGLE_API_KEY or GEMINI_API_KEY", model.ErrMissingCredential)
			return
		}
		cfg := &genai.ClientConfig{
			APIKey:     m.opts.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: m.opts.HTTPClient,
		}
		if m.opts.BaseURL != "" {
			cfg.HTTPOptions.BaseURL = m.opts.BaseURL
		}
		m.client, m.clientErr = genai.NewClient(ctx, cfg)
		if m.clientErr != nil {
			m.clientErr = fmt.Errorf("create genai client: %w", m.clientErr)
		}
	})
	return m.client, m.clientErr
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		client, err := m.getClient(ctx)
		if err != nil {
			errCh <- err
			return
		}

		contents, err := toContents(req.Contents)
		if err != nil {
			errCh <- err
			return
		}
		config := m.buildConfig(req)

		if req.Stream {
			m.stream(ctx, client, contents, config, out, errCh)
			return
		}

		resp, err := client.Models.GenerateContent(ctx, m.opts.Model, contents, config)
		if err != nil {
			errCh <- wrapError(err)
			return
		}
		r, err := fromResponse(resp)
		if err != nil {
			errCh <- err
			return
		}
		send(ctx, out, errCh, r)
	}()

	return out, errCh
}

func (m *Model) stream(
	ctx context.Context,
	client *genai.Client,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
	out chan<- model.Response,
	errCh chan<- error,
) {
	var (
		parts  []core.Part
		text   strings.Builder
		last   model.Response
		chunks int
	)
	for resp, err := range client.Models.GenerateContentStream(ctx, m.opts.Model, contents, config) {
		if err != nil {
			errCh <- wrapError(err)
			return
		}
		r, err := fromResponse(resp)
		if err != nil {
			errCh <- err
			return
		}
		chunks++
		last = r
		for _, p := range r.Content.Parts {
			switch part := p.(type) {
			case core.TextPart:
				text.WriteString(part.Text)
			default:
				parts = append(parts, part)
			}
		}
		if t := r.Content.Text(); t != "" {
			if !send(ctx, out, errCh, model.Response{Partial: true, Content: core.NewTextContent("assistant", t)}) {
				return
			}
		}
	}
	if chunks == 0 {
		errCh <- errors.New("gemini: empty stream")
		return
	}
	if text.Len() > 0 {
		parts = append([]core.Part{core.TextPart{Text: text.String()}}, parts...)
	}
	last.Partial = false
	last.Content = core.Content{Role: "assistant", Parts: parts}
	send(ctx, out, errCh, last)
}

// send delivers r unless ctx is done first, in which case ctx.Err() is
// reported on errCh.
func send(ctx context.Context, out chan<- model.Response, errCh chan<- error, r model.Response) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		errCh <- ctx.Err()
		return false
	}
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     m.opts.Temperature,
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}
	if req.Instructions != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.Instructions)}}
	}

	functions, builtins := model.SplitTools(req.Tools)
	if len(functions) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(functions))
		for _, f := range functions {
			decl := &genai.FunctionDeclaration{Name: f.Function.Name, Description: f.Function.Description}
			if f.Function.Parameters != nil {
				decl.ParametersJsonSchema = f.Function.Parameters
			}
			decls = append(decls, decl)
		}
		config.Tools = append(config.Tools, &genai.Tool{FunctionDeclarations: decls})
	}
	for _, b := range builtins {
		switch b.Function.Name {
		case GoogleSearchTool:
			config.Tools = append(config.Tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
		default:
			m.opts.Logger.Warn("model.builtin_tool.unsupported", "tool", b.Function.Name, "provider", "gemini")
		}
	}
	return config
}

// toContents converts normalized contents. Tool results travel as user
// content carrying FunctionResponse parts. A trailing non-user turn gets a
// continuation prompt appended, as the API expects the user to speak last.
func toContents(contents []core.Content) ([]*genai.Content, error) {
	out := make([]*genai.Content, 0, len(contents)+1)
	for _, c := range contents {
		role := genai.RoleUser
		if c.Role == "assistant" {
			role = genai.RoleModel
		}
		gc := &genai.Content{Role: role}
		for _, p := range c.Parts {
			switch part := p.(type) {
			case core.TextPart:
				if part.Text != "" {
					gc.Parts = append(gc.Parts, genai.NewPartFromText(part.Text))
				}
			case core.DataPart:
				b, err := json.Marshal(part.Data)
				if err != nil {
					return nil, fmt.Errorf("encode data part: %w", err)
				}
				gc.Parts = append(gc.Parts, genai.NewPartFromText(string(b)))
			case core.FunctionCallPart:
				args := map[string]any{}
				if a := part.FunctionCall.Arguments; a != "" {
					if err := json.Unmarshal([]byte(a), &args); err != nil {
						return nil, fmt.Errorf("decode arguments of %s: %w", part.FunctionCall.Name, err)
					}
				}
				gc.Parts = append(gc.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: args,
				}})
			case core.FunctionResponsePart:
				gc.Parts = append(gc.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       part.FunctionResponse.ID,
					Name:     part.FunctionResponse.Name,
					Response: responseMap(part.FunctionResponse),
				}})
			}
		}
		if len(gc.Parts) > 0 {
			out = append(out, gc)
		}
	}

	switch {
	case len(out) == 0:
		out = append(out, genai.NewContentFromText("Handle the requests as specified in the System Instruction.", genai.RoleUser))
	case out[len(out)-1].Role != genai.RoleUser:
		out = append(out, genai.NewContentFromText("Continue processing previous requests as instructed.", genai.RoleUser))
	}
	return out, nil
}

func responseMap(fr core.FunctionResponse) map[string]any {
	if fr.Error != "" {
		return map[string]any{"error": fr.Error}
	}
	if m, ok := fr.Response.(map[string]any); ok {
		return m
	}
	return map[string]any{"output": fr.Response}
}

func fromResponse(resp *genai.GenerateContentResponse) (model.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return model.Response{}, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return model.Response{}, errors.New("gemini: no candidates returned")
	}

	cand := resp.Candidates[0]
	var parts []core.Part
	for _, p := range cand.Content.Parts {
		switch {
		case p == nil, p.Thought:
		case p.FunctionCall != nil:
			args, err := json.Marshal(p.FunctionCall.Args)
			if err != nil {
				return model.Response{}, fmt.Errorf("encode function call args: %w", err)
			}
			parts = append(parts, core.FunctionCallPart{FunctionCall: core.FunctionCall{
				ID:        p.FunctionCall.ID,
				Name:      p.FunctionCall.Name,
				Arguments: string(args),
			}})
		case p.Text != "":
			parts = append(parts, core.TextPart{Text: p.Text})
		}
	}

	r := model.Response{
		ID:           resp.ResponseID,
		Content:      core.Content{Role: "assistant", Parts: parts},
		FinishReason: strings.ToLower(string(cand.FinishReason)),
	}
	if u := resp.UsageMetadata; u != nil {
		r.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return r, nil
}

func wrapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini api error (%d): %w", apiErr.Code, err)
	}
	return fmt.Errorf("gemini api error: %w", err)
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{Name: m.opts.Model, Provider: "gemini", SupportsTools: true}
}
