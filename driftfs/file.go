package driftfs

import (
	"context"
	"io"
	"os"
	"sync"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/google/uuid"

	"github.com/driftfs/driftfs/journal"
)

// File is a regular-file node.
type File struct {
	fs   *FS
	path string
}

var (
	_ fs.Node          = (*File)(nil)
	_ fs.NodeOpener    = (*File)(nil)
	_ fs.NodeSetattrer = (*File)(nil)
	_ fs.NodeFsyncer   = (*File)(nil)
)

func (f *File) Attr(ctx context.Context, a *fuse.Attr) error {
	return f.fs.statAttr(f.path, a)
}

func (f *File) Open(ctx context.Context, req *fuse.OpenRequest, resp *fuse.OpenResponse) (fs.Handle, error) {
	file, err := os.OpenFile(f.fs.abs(f.path), openFlags(req.Flags), 0)
	if err != nil {
		return nil, fuseErr(err)
	}
	if req.Flags&fuse.OpenTruncate != 0 {
		f.fs.flushPath(f.path)
		f.fs.record(journal.Record{Op: journal.OpTruncate, Path: f.path, Size: 0})
	}

	h := newHandle(f.fs, f.path, file)
	f.fs.registerHandle(h)
	return h, nil
}

func (f *File) Setattr(ctx context.Context, req *fuse.SetattrRequest, resp *fuse.SetattrResponse) error {
	if err := f.fs.applySetattr(f.path, req); err != nil {
		return err
	}
	return f.fs.statAttr(f.path, &resp.Attr)
}

func (f *File) Fsync(ctx context.Context, req *fuse.FsyncRequest) error {
	f.fs.flushPath(f.path)
	return fuseErr(syncPath(f.fs.abs(f.path)))
}

func syncPath(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return file.Sync()
}

// Handle is one open descriptor on a backing file. Each handle owns an
// optional coalesce buffer; the mutex covers the buffer and the fd.
type Handle struct {
	fs *FS
	id uuid.UUID

	mu   sync.Mutex
	path string
	file *os.File
	buf  *journal.CoalesceBuffer
}

var (
	_ fs.Handle         = (*Handle)(nil)
	_ fs.HandleReader   = (*Handle)(nil)
	_ fs.HandleWriter   = (*Handle)(nil)
	_ fs.HandleFlusher  = (*Handle)(nil)
	_ fs.HandleReleaser = (*Handle)(nil)
)

func newHandle(f *FS, path string, file *os.File) *Handle {
	h := &Handle{
		fs:   f,
		id:   uuid.New(),
		path: path,
		file: file,
	}
	if f.cfg.Features.WriteCoalescing {
		h.buf = journal.NewCoalesceBuffer(path, f.cfg.Tuning.CoalesceMaxBytes)
	}
	return h
}

// Path returns the handle's current mount-relative path.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

func (h *Handle) rebind(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.path = path
	if h.buf != nil {
		h.buf.Rebind(path)
	}
}

func (h *Handle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := make([]byte, req.Size)
	n, err := h.file.ReadAt(buf, req.Offset)
	if err != nil && err != io.EOF {
		return fuseErr(err)
	}
	resp.Data = buf[:n]
	return nil
}

// Write applies the bytes to the backing store first, then records them.
// The mutation is durable even if capture misbehaves.
func (h *Handle) Write(ctx context.Context, req *fuse.WriteRequest, resp *fuse.WriteResponse) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var old []byte
	if h.fs.cfg.Features.DeltaWrites {
		// Snapshot the bytes this write will overwrite; runs that did
		// not actually change are dropped from the journal.
		old = make([]byte, len(req.Data))
		n, _ := h.file.ReadAt(old, req.Offset)
		old = old[:n]
	}

	n, err := h.file.WriteAt(req.Data, req.Offset)
	if err != nil {
		return fuseErr(err)
	}
	resp.Size = n
	data := req.Data[:n]
	off := uint64(req.Offset)

	switch {
	case h.fs.cfg.Features.DeltaWrites:
		for _, run := range deltaRuns(old, data) {
			h.fs.record(journal.Record{
				Op:     journal.OpWrite,
				Path:   h.path,
				Offset: off + uint64(run.off),
				Data:   run.data,
			})
		}
	case h.buf != nil:
		if !h.buf.Absorb(off, data) {
			h.flushBufferLocked()
			if !h.buf.Absorb(off, data) {
				// Oversized write; journal it directly.
				h.recordWriteLocked(off, data)
			}
		}
	default:
		h.recordWriteLocked(off, data)
	}
	return nil
}

func (h *Handle) recordWriteLocked(off uint64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	h.fs.record(journal.Record{Op: journal.OpWrite, Path: h.path, Offset: off, Data: cp})
}

// flushBuffer drains the coalesce buffer into the journal.
func (h *Handle) flushBuffer() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushBufferLocked()
}

func (h *Handle) flushBufferLocked() {
	if h.buf == nil {
		return
	}
	if rec, ok := h.buf.Take(); ok {
		h.fs.record(rec)
	}
}

func (h *Handle) Flush(ctx context.Context, req *fuse.FlushRequest) error {
	h.flushBuffer()
	return nil
}

func (h *Handle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	h.flushBuffer()
	h.fs.dropHandle(h.id)

	h.mu.Lock()
	defer h.mu.Unlock()
	return fuseErr(h.file.Close())
}
