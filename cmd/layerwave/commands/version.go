package commands

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "layerwave %s\n  commit: %s\n  built:  %s\n  go:     %s\n",
				buildInfo.version, buildInfo.commit, buildInfo.date, goruntime.Version())
		},
	}
}
