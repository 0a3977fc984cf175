package journal

import (
	"fmt"
	"path"
	"strings"

	"github.com/pkg/errors"
)

// Op identifies the kind of mutation a Record describes.
type Op uint8

const (
	OpInvalid Op = iota
	OpWrite
	OpTruncate
	OpCreate
	OpUnlink
	OpMkdir
	OpRmdir
	OpRename
	OpLink
	OpSymlink
	OpSetMode
	OpSetOwner
	OpSetTimes
)

func (o Op) String() string {
	switch o {
	case OpWrite:
		return "write"
	case OpTruncate:
		return "truncate"
	case OpCreate:
		return "create"
	case OpUnlink:
		return "unlink"
	case OpMkdir:
		return "mkdir"
	case OpRmdir:
		return "rmdir"
	case OpRename:
		return "rename"
	case OpLink:
		return "link"
	case OpSymlink:
		return "symlink"
	case OpSetMode:
		return "setmode"
	case OpSetOwner:
		return "setowner"
	case OpSetTimes:
		return "settimes"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Record is the atomic unit of change. One flat struct covers every Op; the
// Op tag decides which fields are meaningful:
//
//	OpWrite:    Path, Offset, Data
//	OpTruncate: Path, Size
//	OpCreate:   Path, Mode
//	OpUnlink:   Path
//	OpMkdir:    Path, Mode
//	OpRmdir:    Path
//	OpRename:   Path (old), NewPath (new)
//	OpLink:     Path (existing), NewPath (new hard link)
//	OpSymlink:  Path (new link), Data (literal target string)
//	OpSetMode:  Path, Mode
//	OpSetOwner: Path, UID, GID
//	OpSetTimes: Path, Atime, Mtime (unix nanoseconds)
//
// Paths are mount-relative, slash-separated, never absolute and never contain
// ".." once normalized. Seq is assigned by Journal.Append and a Record is
// immutable afterwards.
type Record struct {
	Seq     uint64
	Op      Op
	Path    string
	NewPath string
	Offset  uint64
	Size    uint64
	Mode    uint32
	UID     uint32
	GID     uint32
	Atime   int64
	Mtime   int64
	Data    []byte
}

// Touches reports whether the record addresses p as either its primary or
// secondary path.
func (r *Record) Touches(p string) bool {
	return r.Path == p || (r.NewPath != "" && r.NewPath == p)
}

// readdresses reports whether the record changes what p denotes: it creates,
// removes, or re-binds the name. Compaction scans must not collapse records
// across such a boundary.
func (r *Record) readdresses(p string) bool {
	switch r.Op {
	case OpCreate, OpUnlink, OpMkdir, OpRmdir, OpSymlink:
		return r.Path == p
	case OpRename, OpLink:
		return r.Touches(p)
	}
	return false
}

// ValidatePath rejects paths that could escape the tree a diff is applied to.
// Valid paths are non-empty, relative, slash-separated, and free of "." and
// ".." elements.
func ValidatePath(p string) error {
	if p == "" {
		return errors.New("empty path")
	}
	if strings.HasPrefix(p, "/") {
		return errors.Errorf("absolute path %q", p)
	}
	clean := path.Clean(p)
	if clean != p || clean == "." {
		return errors.Errorf("non-canonical path %q", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return errors.Errorf("path %q escapes the root", p)
	}
	return nil
}
