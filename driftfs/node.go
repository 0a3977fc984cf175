package driftfs

import (
	"os"
	"path/filepath"
	"syscall"
	"time"

	"bazil.org/fuse"
	"github.com/pkg/errors"
)

// abs joins a mount-relative path onto the backing directory.
func (f *FS) abs(rel string) string {
	return filepath.Join(f.source, rel)
}

func childPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// statAttr fills a from the backing store's view of rel. Inode numbers come
// straight from the backing store so hard links share an inode through the
// mount as well.
func (f *FS) statAttr(rel string, a *fuse.Attr) error {
	fi, err := os.Lstat(f.abs(rel))
	if err != nil {
		return fuseErr(err)
	}
	st := fi.Sys().(*syscall.Stat_t)
	a.Inode = st.Ino
	a.Size = uint64(st.Size)
	a.Blocks = uint64(st.Blocks)
	a.Mode = fi.Mode()
	a.Nlink = uint32(st.Nlink)
	a.Uid = st.Uid
	a.Gid = st.Gid
	a.Atime = time.Unix(st.Atim.Sec, st.Atim.Nsec)
	a.Mtime = time.Unix(st.Mtim.Sec, st.Mtim.Nsec)
	a.Ctime = time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	return nil
}

// fuseErr maps a backing store error to the errno the kernel expects. bazil
// only understands syscall.Errno; anything else would surface as EIO.
func fuseErr(err error) error {
	if err == nil {
		return nil
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}
	switch {
	case os.IsNotExist(err):
		return syscall.ENOENT
	case os.IsExist(err):
		return syscall.EEXIST
	case os.IsPermission(err):
		return syscall.EACCES
	}
	return err
}
