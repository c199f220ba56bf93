package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/agentpipe/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentpipe version %s\n", version.Get())
		},
	}
}
