package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentpipe/model/provider"
	"github.com/hupe1980/agentpipe/retry"
)

// isolate runs the test in an empty directory with no relevant environment.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, name := range []string{
		"GOOGLE_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY",
		"AGENTPIPE_PROVIDER", "AGENTPIPE_MODEL", "AGENTPIPE_CREDENTIALS_GOOGLE",
		"AGENTPIPE_LOG_LEVEL", "AGENTPIPE_RETRY_ATTEMPTS", "AGENTPIPE_TEMPERATURE",
	} {
		t.Setenv(name, "")
	}
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, provider.Gemini, cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, retry.DefaultPolicy(), cfg.Retry)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Nil(t, cfg.Temperature)
	assert.Empty(t, cfg.APIKey())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "agentpipe.yaml"), `
provider: openai
model: gpt-4o-mini
temperature: 0.2
retry:
  attempts: 2
  initial_delay: 250ms
  status_codes: [429]
server:
  addr: 127.0.0.1:9000
`)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, provider.OpenAI, cfg.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.2, *cfg.Temperature, 1e-9)
	assert.Equal(t, 2, cfg.Retry.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, []int{429}, cfg.Retry.StatusCodes)
	assert.Equal(t, 7.0, cfg.Retry.ExpBase)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
}

func TestLoad_ExplicitConfigFileMissing(t *testing.T) {
	dir := isolate(t)

	_, err := Load(func(o *LoadOptions) { o.ConfigFile = filepath.Join(dir, "missing.yaml") })
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoad_EnvFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".env"), "GOOGLE_API_KEY=from-dotenv\nAGENTPIPE_LOG_LEVEL=debug\n")
	writeFile(t, filepath.Join(dir, "agentpipe.yaml"), "log:\n  level: error\n")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Credentials.Google)
	assert.Equal(t, "from-dotenv", cfg.APIKey())
	assert.Equal(t, "debug", cfg.Log.Level)

	t.Setenv("GOOGLE_API_KEY", "from-env")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Credentials.Google)
}

func TestLoad_ExplicitEnvFileMissing(t *testing.T) {
	dir := isolate(t)

	_, err := Load(func(o *LoadOptions) { o.EnvFile = filepath.Join(dir, "nope.env") })
	assert.ErrorContains(t, err, "reading env file")
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("GEMINI_API_KEY", "gemini")
	t.Setenv("AGENTPIPE_RETRY_ATTEMPTS", "3")
	t.Setenv("AGENTPIPE_LOG_LEVEL", "info")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Credentials.Google)
	assert.Equal(t, 3, cfg.Retry.Attempts)
	assert.Equal(t, "info", cfg.Log.Level)

	t.Setenv("GOOGLE_API_KEY", "google")
	t.Setenv("AGENTPIPE_CREDENTIALS_GOOGLE", "prefixed")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed", cfg.Credentials.Google)
}

func TestLoad_FlagsWin(t *testing.T) {
	isolate(t)
	t.Setenv("AGENTPIPE_PROVIDER", "openai")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("provider", "", "")
	fs.String("log-level", "", "")
	fs.String("model", "", "")
	require.NoError(t, fs.Parse([]string{"--provider", "mock", "--log-level", "debug"}))

	cfg, err := Load(func(o *LoadOptions) { o.Flags = fs })
	require.NoError(t, err)
	assert.Equal(t, provider.Mock, cfg.Provider)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Empty(t, cfg.Model, "unchanged flags must not override")
}

func TestLoad_Invalid(t *testing.T) {
	isolate(t)
	t.Setenv("AGENTPIPE_PROVIDER", "llama")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestConfig_APIKeyAndProviderConfig(t *testing.T) {
	cfg := Default()
	cfg.Credentials = Credentials{Google: "g", OpenAI: "o", Anthropic: "a"}

	for p, want := range map[string]string{
		provider.Gemini:    "g",
		provider.OpenAI:    "o",
		provider.Anthropic: "a",
		provider.Mock:      "",
	} {
		cfg.Provider = p
		assert.Equal(t, want, cfg.APIKey(), p)
	}

	cfg.Provider = provider.OpenAI
	cfg.Model = "gpt-4o"
	pc := cfg.ProviderConfig(nil)
	assert.Equal(t, "o", pc.APIKey)
	assert.Equal(t, "gpt-4o", pc.Model)
	assert.Equal(t, cfg.Retry, pc.Retry)
}

func TestConfig_NewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log = LogConfig{Level: "info", Format: "json"}

	var buf bytes.Buffer
	logger := cfg.NewLogger(&buf)
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}
