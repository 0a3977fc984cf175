// Package replay applies a decoded diff stream to a target directory,
// reproducing the mutations the stream captured.
package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/driftfs/driftfs/codec"
	"github.com/driftfs/driftfs/journal"
)

// OrderingError reports a record whose precondition does not hold in the
// target tree, such as a rename whose source never existed. It means the
// stream is internally inconsistent or is being applied out of order.
type OrderingError struct {
	Seq  uint64
	Op   journal.Op
	Path string
	Err  error
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("replay: record %d (%s %s): %v", e.Seq, e.Op, e.Path, e.Err)
}

func (e *OrderingError) Unwrap() error { return e.Err }

// Engine applies diff streams to the tree rooted at Target.
type Engine struct {
	// Target is the directory mutations are applied under. It is created
	// if missing.
	Target string
	// Dicts resolves dictionary ids for compressed segments. May be nil
	// when no stream was compressed against a dictionary.
	Dicts codec.DictProvider

	Log *logrus.Entry
}

// ApplyStream decodes and applies a complete diff stream. The whole stream
// is validated and decoded before the first record touches the target, so a
// structurally broken stream changes nothing.
func (e *Engine) ApplyStream(stream []byte) error {
	recs, err := codec.DecodeStream(stream, e.Dicts)
	if err != nil {
		return err
	}
	return e.Apply(recs)
}

// Apply replays records in order. The first failure aborts the run.
func (e *Engine) Apply(recs []journal.Record) error {
	log := e.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	if err := os.MkdirAll(e.Target, 0o755); err != nil {
		return errors.Wrap(err, "replay: target directory")
	}

	for i := range recs {
		r := &recs[i]
		if err := e.apply(r, log); err != nil {
			return err
		}
	}
	log.WithField("records", len(recs)).Info("replay complete")
	return nil
}

// resolve validates a record path and joins it under the target root.
// Validation here is the containment guarantee; a crafted stream must not
// escape the target.
func (e *Engine) resolve(seq uint64, op journal.Op, rel string) (string, error) {
	if err := journal.ValidatePath(rel); err != nil {
		return "", &OrderingError{Seq: seq, Op: op, Path: rel, Err: err}
	}
	return filepath.Join(e.Target, rel), nil
}

func (e *Engine) apply(r *journal.Record, log *logrus.Entry) error {
	path, err := e.resolve(r.Seq, r.Op, r.Path)
	if err != nil {
		return err
	}
	l := log.WithFields(logrus.Fields{"seq": r.Seq, "op": r.Op.String(), "path": r.Path})

	switch r.Op {
	case journal.OpWrite:
		return e.applyWrite(path, r, l)
	case journal.OpTruncate:
		return e.applyTruncate(path, r, l)
	case journal.OpCreate:
		return e.applyCreate(path, r, l)
	case journal.OpUnlink:
		return tolerateMissing(os.Remove(path), "unlink", l)
	case journal.OpMkdir:
		l.Debug("mkdir")
		if err := os.MkdirAll(path, os.FileMode(r.Mode)); err != nil {
			return errors.Wrap(err, "replay: mkdir")
		}
		return nil
	case journal.OpRmdir:
		return tolerateMissing(os.Remove(path), "rmdir", l)
	case journal.OpRename:
		return e.applyRename(path, r, l)
	case journal.OpLink:
		return e.applyLink(path, r, l)
	case journal.OpSymlink:
		return e.applySymlink(path, r, l)
	case journal.OpSetMode:
		l.Debug("chmod")
		return tolerateMissing(os.Chmod(path, os.FileMode(r.Mode)), "chmod", l)
	case journal.OpSetOwner:
		l.Debug("chown")
		return tolerateMissing(os.Lchown(path, int(r.UID), int(r.GID)), "chown", l)
	case journal.OpSetTimes:
		l.Debug("utimes")
		at := time.Unix(0, r.Atime)
		mt := time.Unix(0, r.Mtime)
		return tolerateMissing(os.Chtimes(path, at, mt), "utimes", l)
	default:
		return &OrderingError{Seq: r.Seq, Op: r.Op, Path: r.Path,
			Err: errors.New("unsupported operation")}
	}
}

func (e *Engine) applyWrite(path string, r *journal.Record, l *logrus.Entry) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	l.WithFields(logrus.Fields{"offset": r.Offset, "bytes": len(r.Data)}).Debug("write")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, "replay: open for write")
	}
	defer f.Close()

	if _, err := f.WriteAt(r.Data, int64(r.Offset)); err != nil {
		return errors.Wrap(err, "replay: write")
	}
	return nil
}

func (e *Engine) applyTruncate(path string, r *journal.Record, l *logrus.Entry) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	l.WithField("size", r.Size).Debug("truncate")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return errors.Wrap(err, "replay: open for truncate")
	}
	defer f.Close()
	return errors.Wrap(f.Truncate(int64(r.Size)), "replay: truncate")
}

func (e *Engine) applyCreate(path string, r *journal.Record, l *logrus.Entry) error {
	if err := ensureParent(path); err != nil {
		return err
	}
	l.WithField("mode", fmt.Sprintf("%o", r.Mode)).Debug("create")

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(r.Mode))
	if err != nil {
		return errors.Wrap(err, "replay: create")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "replay: create close")
	}
	// O_CREATE honors umask; pin the recorded mode explicitly.
	if err := os.Chmod(path, os.FileMode(r.Mode)); err != nil {
		return errors.Wrap(err, "replay: create chmod")
	}
	if err := os.Lchown(path, int(r.UID), int(r.GID)); err != nil && !os.IsPermission(err) {
		return errors.Wrap(err, "replay: create chown")
	}
	return nil
}

func (e *Engine) applyRename(oldPath string, r *journal.Record, l *logrus.Entry) error {
	newPath, err := e.resolve(r.Seq, r.Op, r.NewPath)
	if err != nil {
		return err
	}
	if err := ensureParent(newPath); err != nil {
		return err
	}
	l.WithField("to", r.NewPath).Debug("rename")

	if err := os.Rename(oldPath, newPath); err != nil {
		if os.IsNotExist(err) {
			return &OrderingError{Seq: r.Seq, Op: r.Op, Path: r.Path, Err: err}
		}
		return errors.Wrap(err, "replay: rename")
	}
	return nil
}

func (e *Engine) applyLink(srcPath string, r *journal.Record, l *logrus.Entry) error {
	linkPath, err := e.resolve(r.Seq, r.Op, r.NewPath)
	if err != nil {
		return err
	}
	if err := ensureParent(linkPath); err != nil {
		return err
	}
	l.WithField("link", r.NewPath).Debug("link")

	if err := os.Link(srcPath, linkPath); err != nil {
		if os.IsNotExist(err) {
			return &OrderingError{Seq: r.Seq, Op: r.Op, Path: r.Path, Err: err}
		}
		// Re-application: the link may already exist. It only counts as
		// applied if it is the same inode as the source.
		if os.IsExist(err) && sameFile(srcPath, linkPath) {
			l.Debug("link already present")
			return nil
		}
		return errors.Wrap(err, "replay: link")
	}
	return nil
}

func sameFile(a, b string) bool {
	fa, err := os.Lstat(a)
	if err != nil {
		return false
	}
	fb, err := os.Lstat(b)
	if err != nil {
		return false
	}
	return os.SameFile(fa, fb)
}

func (e *Engine) applySymlink(linkPath string, r *journal.Record, l *logrus.Entry) error {
	if err := ensureParent(linkPath); err != nil {
		return err
	}
	target := string(r.Data)
	l.WithField("target", target).Debug("symlink")

	// The link target is written verbatim; it is resolved relative to the
	// link's own directory, never re-rooted under the replay target.
	if err := os.Symlink(target, linkPath); err != nil {
		// Re-application: an existing symlink with the same target is
		// already the recorded state.
		if os.IsExist(err) {
			if got, rerr := os.Readlink(linkPath); rerr == nil && got == target {
				l.Debug("symlink already present")
				return nil
			}
		}
		return errors.Wrap(err, "replay: symlink")
	}
	return nil
}

// tolerateMissing downgrades not-found failures to a warning. A remove or
// metadata change against a path a later record deletes is normal after
// compaction.
func tolerateMissing(err error, what string, l *logrus.Entry) error {
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		l.WithError(err).Warnf("%s target missing, skipping", what)
		return nil
	}
	return errors.Wrapf(err, "replay: %s", what)
}

func ensureParent(path string) error {
	return errors.Wrap(os.MkdirAll(filepath.Dir(path), 0o755), "replay: parent directory")
}
