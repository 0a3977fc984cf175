// Package cmd provides the command-line interface implementation for driftfs.
//
// This package contains all the subcommand implementations for the driftfs
// CLI tool. It uses the Cobra library for command structure and Fang for
// styled execution.
//
// The package is organized into the following commands:
//   - root: Main command coordinator and entry point
//   - mount: FUSE capture filesystem mounting
//   - export: Diff stream retrieval over the control socket
//   - replay: Diff stream application to a target directory
//   - train: Forced dictionary training on a running mount
//   - clear: Pending journal disposal on a running mount
//
// Each command is implemented as a separate file with its own constructor
// function that returns a *cobra.Command.
package cmd
