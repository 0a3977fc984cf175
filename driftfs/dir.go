package driftfs

import (
	"context"
	"os"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/driftfs/driftfs/journal"
)

// Dir is a directory node. path is mount-relative; the root is "".
type Dir struct {
	fs   *FS
	path string
}

var (
	_ fs.Node               = (*Dir)(nil)
	_ fs.NodeStringLookuper = (*Dir)(nil)
	_ fs.NodeCreater        = (*Dir)(nil)
	_ fs.NodeMkdirer        = (*Dir)(nil)
	_ fs.NodeRemover        = (*Dir)(nil)
	_ fs.NodeRenamer        = (*Dir)(nil)
	_ fs.NodeLinker         = (*Dir)(nil)
	_ fs.NodeSymlinker      = (*Dir)(nil)
	_ fs.NodeSetattrer      = (*Dir)(nil)
	_ fs.HandleReadDirAller = (*Dir)(nil)
)

func (d *Dir) Attr(ctx context.Context, a *fuse.Attr) error {
	return d.fs.statAttr(d.path, a)
}

func (d *Dir) Lookup(ctx context.Context, name string) (fs.Node, error) {
	rel := childPath(d.path, name)
	fi, err := os.Lstat(d.fs.abs(rel))
	if err != nil {
		return nil, fuseErr(err)
	}
	switch {
	case fi.IsDir():
		return &Dir{fs: d.fs, path: rel}, nil
	case fi.Mode()&os.ModeSymlink != 0:
		return &Symlink{fs: d.fs, path: rel}, nil
	default:
		return &File{fs: d.fs, path: rel}, nil
	}
}

func (d *Dir) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := os.ReadDir(d.fs.abs(d.path))
	if err != nil {
		return nil, fuseErr(err)
	}
	out := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		de := fuse.Dirent{Name: e.Name()}
		switch {
		case e.IsDir():
			de.Type = fuse.DT_Dir
		case e.Type()&os.ModeSymlink != 0:
			de.Type = fuse.DT_Link
		default:
			de.Type = fuse.DT_File
		}
		if fi, err := e.Info(); err == nil {
			de.Inode = fi.Sys().(*syscall.Stat_t).Ino
		}
		out = append(out, de)
	}
	return out, nil
}

func (d *Dir) Create(ctx context.Context, req *fuse.CreateRequest, resp *fuse.CreateResponse) (fs.Node, fs.Handle, error) {
	rel := childPath(d.path, req.Name)

	file, err := os.OpenFile(d.fs.abs(rel), openFlags(req.Flags)|os.O_CREATE, req.Mode.Perm())
	if err != nil {
		return nil, nil, fuseErr(err)
	}

	d.fs.record(journal.Record{
		Op:   journal.OpCreate,
		Path: rel,
		Mode: uint32(req.Mode.Perm()),
		UID:  req.Uid,
		GID:  req.Gid,
	})

	node := &File{fs: d.fs, path: rel}
	h := newHandle(d.fs, rel, file)
	d.fs.registerHandle(h)
	return node, h, nil
}

func (d *Dir) Mkdir(ctx context.Context, req *fuse.MkdirRequest) (fs.Node, error) {
	rel := childPath(d.path, req.Name)
	if err := os.Mkdir(d.fs.abs(rel), req.Mode.Perm()); err != nil {
		return nil, fuseErr(err)
	}
	d.fs.record(journal.Record{
		Op:   journal.OpMkdir,
		Path: rel,
		Mode: uint32(req.Mode.Perm()),
	})
	return &Dir{fs: d.fs, path: rel}, nil
}

func (d *Dir) Remove(ctx context.Context, req *fuse.RemoveRequest) error {
	rel := childPath(d.path, req.Name)

	if req.Dir {
		if err := os.Remove(d.fs.abs(rel)); err != nil {
			return fuseErr(err)
		}
		d.fs.record(journal.Record{Op: journal.OpRmdir, Path: rel})
		return nil
	}

	// Pending write bytes for this name must be sequenced before the
	// unlink record, or compaction could annihilate the wrong history.
	d.fs.flushPath(rel)
	if err := os.Remove(d.fs.abs(rel)); err != nil {
		return fuseErr(err)
	}
	d.fs.record(journal.Record{Op: journal.OpUnlink, Path: rel})
	return nil
}

func (d *Dir) Rename(ctx context.Context, req *fuse.RenameRequest, newDir fs.Node) error {
	nd, ok := newDir.(*Dir)
	if !ok {
		return syscall.EIO
	}
	oldRel := childPath(d.path, req.OldName)
	newRel := childPath(nd.path, req.NewName)

	// Buffered bytes on either name flush first so the rename record
	// cleanly separates old-name history from new-name history.
	d.fs.flushTree(oldRel)
	d.fs.flushPath(newRel)

	if err := os.Rename(d.fs.abs(oldRel), d.fs.abs(newRel)); err != nil {
		return fuseErr(err)
	}
	d.fs.record(journal.Record{Op: journal.OpRename, Path: oldRel, NewPath: newRel})
	d.fs.rebindTree(oldRel, newRel)
	return nil
}

func (d *Dir) Link(ctx context.Context, req *fuse.LinkRequest, old fs.Node) (fs.Node, error) {
	of, ok := old.(*File)
	if !ok {
		return nil, syscall.EPERM
	}
	rel := childPath(d.path, req.NewName)

	if err := os.Link(d.fs.abs(of.path), d.fs.abs(rel)); err != nil {
		return nil, fuseErr(err)
	}
	d.fs.record(journal.Record{Op: journal.OpLink, Path: of.path, NewPath: rel})
	return &File{fs: d.fs, path: rel}, nil
}

func (d *Dir) Symlink(ctx context.Context, req *fuse.SymlinkRequest) (fs.Node, error) {
	rel := childPath(d.path, req.NewName)

	if err := os.Symlink(req.Target, d.fs.abs(rel)); err != nil {
		return nil, fuseErr(err)
	}
	d.fs.record(journal.Record{
		Op:   journal.OpSymlink,
		Path: rel,
		Data: []byte(req.Target),
	})
	return &Symlink{fs: d.fs, path: rel}, nil
}

func (d *Dir) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if err := d.fs.applySetattr(d.path, req); err != nil {
		return err
	}
	return d.fs.statAttr(d.path, &resp.Attr)
}

// openFlags converts kernel open flags to os package flags. O_APPEND is
// deliberately not propagated: the kernel already resolves append writes to
// explicit offsets, and an O_APPEND backing fd would break WriteAt.
func openFlags(f fuse.OpenFlags) int {
	flags := 0
	switch {
	case f.IsReadOnly():
		flags = os.O_RDONLY
	case f.IsWriteOnly():
		flags = os.O_WRONLY
	case f.IsReadWrite():
		flags = os.O_RDWR
	}
	if f&fuse.OpenTruncate != 0 {
		flags |= os.O_TRUNC
	}
	return flags
}
