package main

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentpipe/pipeline"
)

type runFlags struct {
	file  string
	json  bool
	steps bool
	mock  bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [pipeline] [query...]",
		Short: "Run a pipeline",
		Long: heredoc.Doc(`
			Run a built-in pipeline, or one loaded with --file, and print its
			final output. Without a query the pipeline's default query is used.
		`),
		Example: heredoc.Doc(`
			agentpipe run blog "The Future of Artificial Intelligence in Everyday Life"
			agentpipe run story --steps
			agentpipe run --file my-pipeline.yaml "What changed in Go 1.24?"
			agentpipe run research --mock --json
		`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd, f.mock)
			if err != nil {
				return err
			}
			client, _, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}

			var name string
			if f.file != "" {
				def, err := pipeline.LoadFile(f.file)
				if err != nil {
					return err
				}
				if err := client.Register(def); err != nil {
					return err
				}
				name = def.Name
			} else {
				if len(args) == 0 {
					return fmt.Errorf("pipeline name required (available: %s)", strings.Join(client.Catalog().Names(), ", "))
				}
				name, args = args[0], args[1:]
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, runErr := client.InvokeSync(ctx, name, strings.Join(args, " "))
			if res == nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			if f.steps {
				fmt.Fprintln(out, color.New(color.Faint).Sprint(strings.TrimRight(res.Steps(), "\n")))
			}

			if f.json {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				payload := map[string]any{
					"run_id": res.RunID,
					"query":  res.Query,
					"output": res.Final(),
					"state":  res.State,
				}
				if runErr != nil {
					payload["error"] = runErr.Error()
				}
				if err := enc.Encode(payload); err != nil {
					return err
				}
				return runErr
			}

			if runErr != nil {
				return runErr
			}

			rule := strings.Repeat("=", 80)
			fmt.Fprintln(out, rule)
			fmt.Fprintln(out, color.New(color.Bold, color.FgCyan).Sprintf("FINAL OUTPUT (%s)", name))
			fmt.Fprintln(out, rule)
			fmt.Fprintln(out, res.Text())
			fmt.Fprintln(out, rule)
			return nil
		},
	}

	cmd.Flags().StringVarP(&f.file, "file", "f", "", "YAML pipeline definition")
	cmd.Flags().BoolVar(&f.json, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&f.steps, "steps", false, "print every step")
	cmd.Flags().BoolVar(&f.mock, "mock", false, "use the deterministic mock model")
	return cmd
}
