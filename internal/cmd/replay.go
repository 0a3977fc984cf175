package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/codec"
	"github.com/driftfs/driftfs/control"
	"github.com/driftfs/driftfs/replay"
)

// NewReplayCmd creates the replay subcommand. It applies a diff stream to a
// target directory, either from a file or live from a running mount.
func NewReplayCmd() *cobra.Command {
	var (
		streamPath string
		socketPath string
		dictPath   string
	)

	cmd := &cobra.Command{
		Use:   "replay TARGET_DIR",
		Short: "Apply a diff stream to a target directory",
		Long: `Replay applies a captured diff stream to TARGET_DIR, reproducing the
mutations the stream recorded. The stream comes from a file written by
export, or directly from a running mount when --socket is given.

Streams compressed against a trained dictionary need the matching dictionary
cache file, passed with --dict.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args[0], streamPath, socketPath, dictPath)
		},
	}

	cmd.Flags().StringVarP(&streamPath, "statediff", "f", "", "Diff stream file to apply")
	cmd.Flags().StringVarP(&socketPath, "socket", "s", "", "Pull the stream live from this control socket")
	cmd.Flags().StringVarP(&dictPath, "dict", "d", "", "Dictionary cache file for compressed streams")
	cmd.MarkFlagsOneRequired("statediff", "socket")
	cmd.MarkFlagsMutuallyExclusive("statediff", "socket")
	return cmd
}

func runReplay(target, streamPath, socketPath, dictPath string) error {
	var (
		stream []byte
		err    error
	)
	if socketPath != "" {
		stream, err = (&control.Client{Path: socketPath}).Export()
	} else {
		stream, err = os.ReadFile(streamPath)
	}
	if err != nil {
		return err
	}

	var dicts codec.DictProvider
	if dictPath != "" {
		d, err := codec.LoadDictionaryCache(dictPath)
		if err != nil {
			return err
		}
		dicts = codec.StaticDicts{d.ID: d.Raw}
	}

	engine := &replay.Engine{Target: target, Dicts: dicts}
	if err := engine.ApplyStream(stream); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "applied %d byte stream to %s\n", len(stream), target)
	return nil
}
