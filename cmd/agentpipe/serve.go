package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentpipe/internal/server"
	"github.com/hupe1980/agentpipe/internal/version"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var (
		addr string
		mock bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pipelines over a JSON HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd, mock)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			client, logger, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.ErrOrStderr(), "Serving on %s\n", cfg.Server.Addr)

			return server.New(client, func(o *server.Options) {
				o.Addr = cfg.Server.Addr
				o.ReadTimeout = cfg.Server.ReadTimeout
				o.WriteTimeout = cfg.Server.WriteTimeout
				o.Logger = logger
				o.Version = version.Get()
			}).ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&mock, "mock", false, "use the deterministic mock model")
	return cmd
}
