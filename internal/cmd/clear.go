package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/control"
)

// NewClearCmd creates the clear subcommand. It discards a running mount's
// pending journal records without exporting them.
func NewClearCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard a running mount's pending records",
		Long: `Clear drops every record journaled since the last export without producing
a diff stream. The mount keeps running; subsequent mutations are captured
normally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (&control.Client{Path: socketPath}).Clear(); err != nil {
				return err
			}
			fmt.Println("journal cleared")
			return nil
		},
	}

	cmd.Flags().StringVarP(&socketPath, "socket", "s", "", "Control socket path of the running mount")
	cmd.MarkFlagRequired("socket")
	return cmd
}
