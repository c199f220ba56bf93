package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hupe1980/agentpipe/agent"
	"github.com/hupe1980/agentpipe/pipeline"
)

func newValidateCmd(g *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate [pipeline]",
		Short: "Check a pipeline without running it",
		Long:  "Build a pipeline and run the static checks: names, loop bounds, template keys and parallel output keys.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd, true)
			if err != nil {
				return err
			}
			client, _, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}

			var names []string
			switch {
			case file != "":
				def, err := pipeline.LoadFile(file)
				if err != nil {
					return err
				}
				if err := client.Register(def); err != nil {
					return err
				}
				names = []string{def.Name}
			case len(args) == 1:
				names = args
			default:
				names = client.Catalog().Names()
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, name := range names {
				if err := client.Validate(name); err != nil {
					failed++
					fmt.Fprintf(out, "%s %s\n", color.RedString("✗"), name)
					if errors.Is(err, agent.ErrInvalidPipeline) {
						fmt.Fprintln(out, agent.FormatValidation(err))
					} else {
						fmt.Fprintf(out, "  - %v\n", err)
					}
					continue
				}
				fmt.Fprintf(out, "%s %s\n", color.GreenString("✓"), name)
			}

			if failed > 0 {
				return fmt.Errorf("%d of %d pipelines invalid", failed, len(names))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML pipeline definition")
	return cmd
}
