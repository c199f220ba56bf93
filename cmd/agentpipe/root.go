package main

import (
	"io"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentpipe"
	"github.com/hupe1980/agentpipe/internal/config"
	"github.com/hupe1980/agentpipe/logging"
	"github.com/hupe1980/agentpipe/model/provider"
)

type globalFlags struct {
	configFile string
	envFile    string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "agentpipe",
		Short: "Run declarative multi-agent LLM pipelines",
		Long: heredoc.Doc(`
			agentpipe composes LLM agents into sequential, parallel and loop
			pipelines and runs them against a single query.

			Built-in pipelines:
			  search       single agent with Google Search
			  blog         outline, write and edit a blog post
			  research     parallel research team plus aggregator
			  story        draft, then critique and refine in a loop
			  coordinator  agent delegating to sub-agents exposed as tools

			Credentials are read from GOOGLE_API_KEY (or GEMINI_API_KEY),
			OPENAI_API_KEY and ANTHROPIC_API_KEY, from a .env file, or from
			AGENTPIPE_CREDENTIALS_* variables.
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "config file (default ./agentpipe.yaml)")
	pf.StringVar(&g.envFile, "env-file", "", "dotenv file (default ./.env)")
	pf.String("provider", "", "model provider: gemini, openai, anthropic or mock")
	pf.String("model", "", "model name (default "+config.DefaultModel+" for gemini)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	pf.Int("max-model-calls", 0, "maximum model calls per run (0 = unlimited)")
	pf.Float64("temperature", 0, "sampling temperature")

	cmd.AddCommand(
		newRunCmd(g),
		newListCmd(g),
		newValidateCmd(g),
		newServeCmd(g),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads the configuration with cmd's flags bound.
func (g *globalFlags) loadConfig(cmd *cobra.Command, mock bool) (*config.Config, error) {
	cfg, err := config.Load(func(o *config.LoadOptions) {
		o.ConfigFile = g.configFile
		o.EnvFile = g.envFile
		o.Flags = cmd.Flags()
	})
	if err != nil {
		return nil, err
	}
	if mock {
		cfg.Provider = provider.Mock
		cfg.Model = ""
	}
	return cfg, nil
}

// newClient builds the façade from cfg, logging to cmd's error stream.
func newClient(cmd *cobra.Command, cfg *config.Config) (*agentpipe.Client, logging.Logger, error) {
	logger := cfg.NewLogger(cmd.ErrOrStderr())
	client, err := agentpipe.New(agentpipe.Config{
		Provider:      cfg.ProviderConfig(logger),
		MaxModelCalls: cfg.MaxModelCalls,
	}, func(o *agentpipe.Options) {
		o.Logger = logger
	})
	if err != nil {
		return nil, nil, err
	}
	return client, logger, nil
}
