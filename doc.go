// Package main provides the driftfs command-line interface.
//
// driftfs is a FUSE passthrough filesystem that journals every mutation made
// through the mount and exports the journal on demand as a compressed,
// replayable diff stream. A stream applied to another directory reproduces
// the same end state.
//
// The main binary supports multiple subcommands:
//   - mount: Mount a capture filesystem over a backing directory
//   - export: Pull the pending diff stream from a running mount
//   - replay: Apply a diff stream to a target directory
//   - train: Force a dictionary training pass on a running mount
//   - clear: Discard a running mount's pending records
package main
