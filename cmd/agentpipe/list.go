package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newListCmd(g *globalFlags) *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the built-in pipelines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.loadConfig(cmd, true)
			if err != nil {
				return err
			}
			client, _, err := newClient(cmd, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tOUTPUT\tDESCRIPTION")
			for _, name := range client.Catalog().Names() {
				def, err := client.Definition(name)
				if err != nil {
					return err
				}
				output := def.Output
				if output == "" {
					output = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", color.CyanString(def.Name), output, def.Description)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if tree {
				for _, name := range client.Catalog().Names() {
					desc, err := client.Describe(name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "\n%s\n%s", color.New(color.Bold).Sprint(name), desc)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&tree, "tree", false, "print every pipeline's tree")
	return cmd
}
