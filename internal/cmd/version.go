package cmd

import (
	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/version"
)

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			version.PrintVersion("driftfs")
		},
	}
}
