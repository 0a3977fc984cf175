package cmd

import (
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/config"
	"github.com/driftfs/driftfs/version"
)

// NewRootCmd creates and returns the root cobra command for the driftfs CLI.
// It sets up all subcommands, command groups, and basic configuration.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "driftfs",
		Short: "driftfs - A FUSE passthrough filesystem that captures mutations as replayable diff streams",
		Long: `driftfs mirrors a backing directory through a FUSE mount and journals every
mutation that passes through it. The journal is exported on demand over a
unix socket as a compressed, self-describing diff stream that can be replayed
onto another directory to reproduce the same state.

Use subcommands to perform different operations:
  - mount: Mount a capture filesystem over a backing directory
  - export: Pull the pending diff stream from a running mount
  - replay: Apply a diff stream to a target directory
  - train: Force a compression dictionary training pass on a running mount
  - clear: Discard a running mount's pending records`,
		Version: version.GetFullVersion(),
	}

	groupFilesystem := "filesystem"
	groupUtilities := "utilities"

	rootCmd.AddGroup(&cobra.Group{
		ID:    groupFilesystem,
		Title: "Filesystem Operations",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    groupUtilities,
		Title: "Utility Commands",
	})

	mountCmd := NewMountCmd()
	exportCmd := NewExportCmd()
	replayCmd := NewReplayCmd()
	trainCmd := NewTrainCmd()
	clearCmd := NewClearCmd()
	versionCmd := NewVersionCmd()

	mountCmd.GroupID = groupFilesystem
	replayCmd.GroupID = groupFilesystem
	exportCmd.GroupID = groupUtilities
	trainCmd.GroupID = groupUtilities
	clearCmd.GroupID = groupUtilities

	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

// newLogger builds the process logger from the loaded configuration.
func newLogger(cfg config.Logging) *logrus.Entry {
	log := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logrus.NewEntry(log)
}
