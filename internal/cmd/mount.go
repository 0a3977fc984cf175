package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	_ "bazil.org/fuse/fs/fstestutil"
	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/config"
	"github.com/driftfs/driftfs/control"
	"github.com/driftfs/driftfs/driftfs"
	"github.com/driftfs/driftfs/version"
)

// NewMountCmd creates and returns the mount subcommand. It mounts a capture
// filesystem over a backing directory and serves the control socket until
// interrupted.
func NewMountCmd() *cobra.Command {
	var (
		configPath string
		socketPath string
	)

	cmd := &cobra.Command{
		Use:   "mount SOURCE MOUNTPOINT",
		Short: "Mount a capture filesystem",
		Long: `Mount a driftfs capture filesystem at the specified mountpoint.

SOURCE is the backing directory the mount mirrors; all reads and writes pass
through to it. MOUNTPOINT is where the filesystem is exposed. Every mutation
made through the mountpoint is journaled and can be exported over the control
socket as a diff stream.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMount(configPath, socketPath, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default ./driftfs.yaml)")
	cmd.Flags().StringVarP(&socketPath, "socket", "s", "", "Control socket path (overrides config)")
	return cmd
}

func runMount(configPath, socketPath, source, mountpoint string) error {
	fmt.Printf("driftfs %s starting...\n", version.GetFullVersion())

	// Flags outrank every other config source.
	if socketPath != "" {
		os.Setenv("DRIFTFS_MOUNT_SOCKET_PATH", socketPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Mount.Source = source
	cfg.Mount.Mountpoint = mountpoint

	log := newLogger(cfg.Logging)

	if err := os.MkdirAll(source, 0o755); err != nil {
		return fmt.Errorf("create source directory: %w", err)
	}

	filesystem, err := driftfs.NewFS(cfg, log)
	if err != nil {
		return err
	}

	srv, err := control.NewServer(cfg.Mount.SocketPath, filesystem, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	c, err := fuse.Mount(
		mountpoint,
		fuse.FSName("driftfs"),
		fuse.Subtype("driftfs"),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("received interrupt signal, shutting down")

		filesystem.Stop()
		srv.Close()
		fuse.Unmount(mountpoint)
		c.Close()

		log.Info("shutdown complete")
		os.Exit(0)
	}()

	log.WithFields(map[string]interface{}{
		"source":     source,
		"mountpoint": mountpoint,
		"socket":     cfg.Mount.SocketPath,
	}).Infof("driftfs %s mounted", version.GetVersion())
	return fs.Serve(c, filesystem)
}
