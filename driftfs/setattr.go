package driftfs

import (
	"os"
	"time"

	"bazil.org/fuse"

	"github.com/driftfs/driftfs/journal"
)

// applySetattr applies a setattr request to the backing store and journals
// one record per attribute class. Each class is applied independently; the
// first backing store failure aborts.
func (f *FS) applySetattr(rel string, req *fuse.SetattrRequest) error {
	abs := f.abs(rel)

	if req.Valid.Size() {
		// Pending write bytes must sequence before the truncate record
		// or replay would truncate before writing them.
		f.flushPath(rel)
		if err := os.Truncate(abs, int64(req.Size)); err != nil {
			return fuseErr(err)
		}
		f.record(journal.Record{Op: journal.OpTruncate, Path: rel, Size: req.Size})
	}

	if req.Valid.Mode() {
		if err := os.Chmod(abs, req.Mode.Perm()); err != nil {
			return fuseErr(err)
		}
		f.record(journal.Record{Op: journal.OpSetMode, Path: rel, Mode: uint32(req.Mode.Perm())})
	}

	if req.Valid.Uid() || req.Valid.Gid() {
		uid, gid := -1, -1
		if req.Valid.Uid() {
			uid = int(req.Uid)
		}
		if req.Valid.Gid() {
			gid = int(req.Gid)
		}
		if err := os.Lchown(abs, uid, gid); err != nil {
			return fuseErr(err)
		}
		ruid, rgid, err := f.ownerOf(rel)
		if err != nil {
			return fuseErr(err)
		}
		f.record(journal.Record{Op: journal.OpSetOwner, Path: rel, UID: ruid, GID: rgid})
	}

	if req.Valid.Atime() || req.Valid.Mtime() {
		at, mt, err := f.timesFor(rel, req)
		if err != nil {
			return fuseErr(err)
		}
		if err := os.Chtimes(abs, at, mt); err != nil {
			return fuseErr(err)
		}
		f.record(journal.Record{
			Op:    journal.OpSetTimes,
			Path:  rel,
			Atime: at.UnixNano(),
			Mtime: mt.UnixNano(),
		})
	}

	return nil
}

// ownerOf reads back the effective owner so a partial chown (uid only, gid
// only) still journals the full resulting pair.
func (f *FS) ownerOf(rel string) (uint32, uint32, error) {
	var a fuse.Attr
	if err := f.statAttr(rel, &a); err != nil {
		return 0, 0, err
	}
	return a.Uid, a.Gid, nil
}

// timesFor resolves the requested atime/mtime pair, filling the side the
// request leaves out with the file's current value.
func (f *FS) timesFor(rel string, req *fuse.SetattrRequest) (time.Time, time.Time, error) {
	var a fuse.Attr
	if err := f.statAttr(rel, &a); err != nil {
		return time.Time{}, time.Time{}, err
	}
	at, mt := a.Atime, a.Mtime
	if req.Valid.Atime() {
		at = req.Atime
	}
	if req.Valid.AtimeNow() {
		at = time.Now()
	}
	if req.Valid.Mtime() {
		mt = req.Mtime
	}
	if req.Valid.MtimeNow() {
		mt = time.Now()
	}
	return at, mt, nil
}
