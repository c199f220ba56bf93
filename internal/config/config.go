// Package config loads the CLI and server configuration. It is the only
// package that reads the environment; everything else receives explicit
// structs.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model/provider"
	"github.com/hupe1980/agentpipe/retry"
)

// EnvPrefix prefixes every environment variable mapped to a config key.
const EnvPrefix = "AGENTPIPE"

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// Config holds all runtime configuration.
type Config struct {
	Provider       string        `mapstructure:"provider" validate:"required,oneof=gemini openai anthropic mock"`
	Model          string        `mapstructure:"model"`
	Credentials    Credentials   `mapstructure:"credentials"`
	Retry          retry.Policy  `mapstructure:"retry"`
	Log            LogConfig     `mapstructure:"log"`
	Server         ServerConfig  `mapstructure:"server"`
	MaxModelCalls  int           `mapstructure:"max_model_calls" validate:"gte=0"`
	MaxTokens      int           `mapstructure:"max_tokens" validate:"gte=0"`
	Temperature    *float64      `mapstructure:"temperature" validate:"omitempty,gte=0,lte=2"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
}

// Credentials holds provider API keys.
type Credentials struct {
	Google    string `mapstructure:"google"`
	OpenAI    string `mapstructure:"openai"`
	Anthropic string `mapstructure:"anthropic"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

// LoadOptions configures Load.
type LoadOptions struct {
	// ConfigFile is an explicit YAML config file. When empty, agentpipe.yaml
	// is looked up in the working directory and ignored when missing.
	ConfigFile string

	// EnvFile is a dotenv file. Its values never override the process
	// environment. Defaults to ".env"; a missing default file is ignored.
	EnvFile string

	// Flags are bound with the highest precedence. Flag names match config
	// keys with dots replaced by dashes (log.level -> log-level).
	Flags *pflag.FlagSet
}

// Load reads the configuration. Precedence, highest first: flags,
// AGENTPIPE_* environment variables, provider-native environment variables,
// the dotenv file, the config file, defaults.
func Load(optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, opts.ConfigFile); err != nil {
		return nil, err
	}

	if err := mergeEnvFile(v, opts.EnvFile); err != nil {
		return nil, err
	}

	bindEnv(v)

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Model == "" && cfg.Provider == provider.Gemini {
		cfg.Model = DefaultModel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the defaults without reading any source.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	policy := retry.DefaultPolicy()

	v.SetDefault("provider", provider.Gemini)
	v.SetDefault("model", "")
	v.SetDefault("credentials.google", "")
	v.SetDefault("credentials.openai", "")
	v.SetDefault("credentials.anthropic", "")
	v.SetDefault("retry.attempts", policy.Attempts)
	v.SetDefault("retry.exp_base", policy.ExpBase)
	v.SetDefault("retry.initial_delay", policy.InitialDelay)
	v.SetDefault("retry.max_delay", policy.MaxDelay)
	v.SetDefault("retry.jitter", policy.Jitter)
	v.SetDefault("retry.status_codes", policy.StatusCodes)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("max_model_calls", 0)
	v.SetDefault("max_tokens", 0)
	v.SetDefault("request_timeout", 0)
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
		return nil
	}

	v.SetConfigName("agentpipe")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// nativeEnv maps config keys to the environment variables provider SDKs use.
var nativeEnv = map[string][]string{
	"credentials.google":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"credentials.openai":    {"OPENAI_API_KEY"},
	"credentials.anthropic": {"ANTHROPIC_API_KEY"},
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range nativeEnv {
		_ = v.BindEnv(append([]string{key, envName(key)}, names...)...)
	}
	_ = v.BindEnv("temperature", envName("temperature"))
}

// mergeEnvFile layers dotenv values above the config file. The process
// environment still wins because viper consults it first.
func mergeEnvFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading env file: %w", err)
	}

	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("reading env file: %w", err)
	}

	values := map[string]any{}
	for _, key := range append(v.AllKeys(), "temperature") {
		if val := ev.GetString(envName(key)); val != "" {
			values[key] = val
			continue
		}
		for _, name := range nativeEnv[key] {
			if val := ev.GetString(name); val != "" {
				values[key] = val
				break
			}
		}
	}

	if len(values) == 0 {
		return nil
	}
	return v.MergeConfigMap(nest(values))
}

// nest turns dotted keys into nested maps as MergeConfigMap expects.
func nest(flat map[string]any) map[string]any {
	out := map[string]any{}
	for key, val := range flat {
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = val
	}
	return out
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	keys := append(v.AllKeys(), "temperature")
	for _, key := range keys {
		name := strings.NewReplacer(".", "-", "_", "-").Replace(key)
		if f := fs.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding flag %s: %w", name, err)
			}
		}
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// APIKey returns the credential of the selected provider.
func (c *Config) APIKey() string {
	switch c.Provider {
	case provider.OpenAI:
		return c.Credentials.OpenAI
	case provider.Anthropic:
		return c.Credentials.Anthropic
	case provider.Gemini:
		return c.Credentials.Google
	default:
		return ""
	}
}

// ProviderConfig converts the configuration into the explicit provider
// configuration.
func (c *Config) ProviderConfig(logger logging.Logger) provider.Config {
	return provider.Config{
		Provider:    c.Provider,
		Model:       c.Model,
		APIKey:      c.APIKey(),
		Temperature: c.Temperature,
		MaxTokens:   c.MaxTokens,
		Retry:       c.Retry,
		Timeout:     c.RequestTimeout,
		Logger:      logger,
	}
}

// NewLogger builds the logger described by Log, writing to w.
func (c *Config) NewLogger(w io.Writer) *logging.PipeLogger {
	cfg := logging.DefaultLoggerConfig()
	cfg.Level = logging.ParseLevel(c.Log.Level)
	cfg.Format = c.Log.Format
	cfg.Output = w
	return logging.NewLogger(cfg)
}
