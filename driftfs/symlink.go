package driftfs

import (
	"context"
	"os"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
)

// Symlink is a symbolic-link node. The link target is stored verbatim in the
// backing store and in the journal.
type Symlink struct {
	fs   *FS
	path string
}

var (
	_ fs.Node           = (*Symlink)(nil)
	_ fs.NodeReadlinker = (*Symlink)(nil)
)

func (s *Symlink) Attr(ctx context.Context, a *fuse.Attr) error {
	return s.fs.statAttr(s.path, a)
}

func (s *Symlink) Readlink(ctx context.Context, req *fuse.ReadlinkRequest) (string, error) {
	target, err := os.Readlink(s.fs.abs(s.path))
	if err != nil {
		return "", fuseErr(err)
	}
	return target, nil
}
