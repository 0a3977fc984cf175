package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/control"
)

// NewExportCmd creates the export subcommand. It pulls the pending diff
// stream from a running mount's control socket.
func NewExportCmd() *cobra.Command {
	var (
		socketPath string
		outPath    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the pending diff stream from a running mount",
		Long: `Export connects to a running mount's control socket, pulls every record
journaled since the last export, and writes the encoded diff stream to a file
or stdout. The mount's checkpoint advances, so each export yields only the
changes since the previous one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(socketPath, outPath)
		},
	}

	cmd.Flags().StringVarP(&socketPath, "socket", "s", "", "Control socket path of the running mount")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Output file (default stdout)")
	cmd.MarkFlagRequired("socket")
	return cmd
}

func runExport(socketPath, outPath string) error {
	client := &control.Client{Path: socketPath}
	stream, err := client.Export()
	if err != nil {
		return err
	}

	if outPath == "" {
		if _, err := os.Stdout.Write(stream); err != nil {
			return fmt.Errorf("write stream to stdout: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(outPath, stream, 0o644); err != nil {
		return fmt.Errorf("write stream: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", len(stream), outPath)
	return nil
}
