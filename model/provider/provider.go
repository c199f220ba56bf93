// Package provider builds a model.Model from explicit configuration. It is
// the only place that knows about every provider sub-package.
package provider

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model"
	"github.com/hupe1980/agentpipe/model/anthropic"
	"github.com/hupe1980/agentpipe/model/gemini"
	"github.com/hupe1980/agentpipe/model/openai"
	"github.com/hupe1980/agentpipe/retry"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
)

// Supported provider names.
const (
	Gemini    = "gemini"
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Mock      = "mock"
)

// Names lists the supported providers.
func Names() []string { return []string{Gemini, OpenAI, Anthropic, Mock} }

// Config selects and configures a provider. Nothing is read from the environment.
type Config struct {
	Provider    string
	Model       string
	APIKey      string
	Temperature *float64
	MaxTokens   int
	Retry       retry.Policy
	// Timeout bounds each HTTP request including retries. Zero means none.
	Timeout time.Duration
	// Mock scripts the mock provider. Nil uses model.EchoScript.
	Mock   model.Script
	Logger logging.Logger
}

// New builds the configured model. Credentials are checked lazily by the
// provider on first use.
func New(cfg Config) (model.Model, error) {
	if cfg.Provider != Mock {
		if err := cfg.Retry.Validate(); err != nil {
			return nil, err
		}
	}

	httpClient := retry.NewClient(cfg.Retry, func(o *retry.ClientOptions) {
		o.Timeout = cfg.Timeout
		o.Logger = cfg.Logger
	})

	switch cfg.Provider {
	case Gemini, "":
		return gemini.NewModel(func(o *gemini.Options) {
			o.Model = cfg.Model
			o.APIKey = cfg.APIKey
			o.HTTPClient = httpClient
			o.Logger = cfg.Logger
			o.MaxOutputTokens = int32(cfg.MaxTokens)
			if cfg.Temperature != nil {
				t := float32(*cfg.Temperature)
				o.Temperature = &t
			}
		}), nil
	case OpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.APIKey
			o.HTTPClient = httpClient
			o.Logger = cfg.Logger
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case Anthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.APIKey = cfg.APIKey
			o.HTTPClient = httpClient
			o.Logger = cfg.Logger
			o.Temperature = cfg.Temperature
			if cfg.MaxTokens > 0 {
				o.MaxTokens = int64(cfg.MaxTokens)
			}
		}), nil
	case Mock:
		name := cfg.Model
		if name == "" {
			name = "mock"
		}
		return model.NewMockModel(name, cfg.Mock), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q (supported: %v)", cfg.Provider, Names())
	}
}
