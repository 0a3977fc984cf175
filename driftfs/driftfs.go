// Package driftfs implements the passthrough FUSE filesystem that mirrors a
// backing directory while journaling every mutation. Reads go straight to the
// backing store; writes are applied to the backing store first, then recorded,
// so the mount never lies about durable state.
package driftfs

import (
	"strings"
	"sync"

	"bazil.org/fuse/fs"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/driftfs/driftfs/codec"
	"github.com/driftfs/driftfs/config"
	"github.com/driftfs/driftfs/journal"
)

// FS is the mounted filesystem. It owns the journal, the handle registry,
// and the export pipeline, and implements control.DiffSource.
type FS struct {
	source string
	cfg    *config.Config
	log    *logrus.Entry

	jrnl  *journal.Journal
	comp  *codec.Compressor
	dicts *codec.DictionaryManager

	hmu     sync.RWMutex
	handles map[uuid.UUID]*Handle

	// exportMu serializes exports so concurrent control clients each get
	// a disjoint batch.
	exportMu sync.Mutex
}

// NewFS builds a filesystem over the backing directory named by
// cfg.Mount.Source.
func NewFS(cfg *config.Config, log *logrus.Entry) (*FS, error) {
	if cfg.Mount.Source == "" {
		return nil, errors.New("driftfs: no source directory configured")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	f := &FS{
		source:  cfg.Mount.Source,
		cfg:     cfg,
		log:     log,
		jrnl:    journal.New(),
		handles: make(map[uuid.UUID]*Handle),
	}

	if cfg.Features.Compression {
		f.dicts = codec.NewDictionaryManager(codec.DictionaryManagerConfig{
			CachePath:        cfg.Mount.DictCachePath,
			MaxDictBytes:     cfg.Tuning.DictMaxBytes,
			TrainSampleCount: cfg.Tuning.TrainSampleCount,
			TrainSampleBytes: cfg.Tuning.TrainSampleBytes,
		}, log)
		if err := f.dicts.LoadCache(); err != nil {
			return nil, err
		}
	}
	f.comp = codec.NewCompressor(codec.CompressorConfig{
		Enabled:  cfg.Features.Compression,
		Adaptive: cfg.Features.AdaptiveCompression,
		MinRatio: cfg.Tuning.AdaptiveMinRatio,
		Window:   cfg.Tuning.AdaptiveWindow,
	}, f.dicts)

	return f, nil
}

// Root implements fs.FS.
func (f *FS) Root() (fs.Node, error) {
	return &Dir{fs: f, path: ""}, nil
}

// Journal exposes the journal for status reporting.
func (f *FS) Journal() *journal.Journal { return f.jrnl }

// Stop flushes pending handle buffers into the journal. Called on unmount.
func (f *FS) Stop() {
	f.FlushAll()
}

// record finalizes r into the journal. Capture failures are logged, never
// surfaced to the kernel; the backing store mutation already happened.
func (f *FS) record(r journal.Record) {
	seq := f.jrnl.Append(r)
	if f.cfg.Features.Debug {
		f.log.WithFields(logrus.Fields{
			"seq": seq, "op": r.Op.String(), "path": r.Path,
		}).Debug("journaled")
	}
}

func (f *FS) registerHandle(h *Handle) {
	f.hmu.Lock()
	f.handles[h.id] = h
	f.hmu.Unlock()
}

func (f *FS) dropHandle(id uuid.UUID) {
	f.hmu.Lock()
	delete(f.handles, id)
	f.hmu.Unlock()
}

func (f *FS) snapshotHandles() []*Handle {
	f.hmu.RLock()
	defer f.hmu.RUnlock()
	hs := make([]*Handle, 0, len(f.handles))
	for _, h := range f.handles {
		hs = append(hs, h)
	}
	return hs
}

// FlushAll drains every handle's coalesce buffer into the journal. This is
// the consistency barrier exports take before reading the journal.
func (f *FS) FlushAll() {
	for _, h := range f.snapshotHandles() {
		h.flushBuffer()
	}
}

// flushPath drains buffers whose pending bytes belong to path, so records
// about the old name are sequenced before a readdressing record.
func (f *FS) flushPath(path string) {
	for _, h := range f.snapshotHandles() {
		if h.Path() == path {
			h.flushBuffer()
		}
	}
}

// flushTree drains buffers for path and everything under it.
func (f *FS) flushTree(path string) {
	prefix := path + "/"
	for _, h := range f.snapshotHandles() {
		p := h.Path()
		if p == path || strings.HasPrefix(p, prefix) {
			h.flushBuffer()
		}
	}
}

// rebindTree repoints open handles after a rename. The backing fds stay
// valid across the rename; only the recorded path changes.
func (f *FS) rebindTree(oldPath, newPath string) {
	oldPrefix := oldPath + "/"
	for _, h := range f.snapshotHandles() {
		p := h.Path()
		switch {
		case p == oldPath:
			h.rebind(newPath)
		case strings.HasPrefix(p, oldPrefix):
			h.rebind(newPath + "/" + strings.TrimPrefix(p, oldPrefix))
		}
	}
}

// ExportDiff implements control.DiffSource. It flushes pending buffers,
// encodes every record past the checkpoint, and advances the checkpoint only
// after the stream is fully built.
func (f *FS) ExportDiff() ([]byte, error) {
	f.exportMu.Lock()
	defer f.exportMu.Unlock()

	f.FlushAll()
	recs := f.jrnl.ExportBatch()
	if len(recs) == 0 {
		f.log.Info("export: nothing pending")
		return codec.EncodeStream(nil, f.comp, f.cfg.Tuning.SegmentMaxBytes)
	}
	last := recs[len(recs)-1].Seq

	raw := len(recs)
	if f.cfg.Features.Prune {
		recs = journal.Compact(recs)
	}

	stream, err := codec.EncodeStream(recs, f.comp, f.cfg.Tuning.SegmentMaxBytes)
	if err != nil {
		return nil, err
	}
	if f.dicts != nil {
		f.dicts.MaybeTrain()
	}
	f.jrnl.Commit(last)

	f.log.WithFields(logrus.Fields{
		"records":  len(recs),
		"pruned":   raw - len(recs),
		"bytes":    len(stream),
		"last_seq": last,
	}).Info("exported diff stream")
	return stream, nil
}

// Reset implements control.DiffSource: pending records are discarded without
// being exported. Buffers are flushed first so their bytes are dropped too
// instead of leaking into the next export.
func (f *FS) Reset() error {
	f.exportMu.Lock()
	defer f.exportMu.Unlock()

	f.FlushAll()
	dropped := f.jrnl.Pending()
	f.jrnl.Reset()
	f.log.WithField("records", dropped).Info("journal cleared")
	return nil
}

// Train implements control.DiffSource.
func (f *FS) Train() error {
	if f.dicts == nil {
		return errors.New("driftfs: compression disabled, no dictionary to train")
	}
	return f.dicts.Train()
}

// Mark implements control.DiffSource.
func (f *FS) Mark() {
	f.log.WithFields(logrus.Fields{
		"last_seq": f.jrnl.LastSeq(),
		"pending":  f.jrnl.Pending(),
	}).Info("checkpoint marker")
}
