package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/control"
)

// NewTrainCmd creates the train subcommand. It forces a dictionary training
// pass on a running mount.
func NewTrainCmd() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Force a compression dictionary training pass",
		Long: `Train asks a running mount to build a new compression dictionary from the
segment samples it has accumulated, regardless of the automatic training
thresholds. Later exports compress against the new dictionary; streams built
with older dictionaries stay decodable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := (&control.Client{Path: socketPath}).Train(); err != nil {
				return err
			}
			fmt.Println("training pass complete")
			return nil
		},
	}

	cmd.Flags().StringVarP(&socketPath, "socket", "s", "", "Control socket path of the running mount")
	cmd.MarkFlagRequired("socket")
	return cmd
}
