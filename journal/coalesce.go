package journal

// CoalesceBuffer accumulates pending contiguous write bytes for a single open
// handle before they are sequenced. The buffer is owned exclusively by its
// handle; callers synchronize access themselves.
//
// Only writes contiguous in file-offset space merge: a write may append to
// the pending run or overwrite part of it, but a gap forces the pending run
// to flush first. Exceeding the size limit also forces a flush.
type CoalesceBuffer struct {
	path  string
	start uint64
	data  []byte
	max   int
}

// NewCoalesceBuffer returns an empty buffer for the given mount-relative
// path. max bounds the pending byte count; zero means no limit.
func NewCoalesceBuffer(path string, max int) *CoalesceBuffer {
	return &CoalesceBuffer{path: path, max: max}
}

// Path returns the mount-relative path the pending bytes belong to.
func (b *CoalesceBuffer) Path() string { return b.path }

// Pending reports whether the buffer holds unsequenced bytes.
func (b *CoalesceBuffer) Pending() bool { return len(b.data) > 0 }

// Absorb merges the write into the pending run if it is contiguous with it
// and the size limit allows. It returns false when the caller must flush the
// buffer and retry (or emit the write directly).
func (b *CoalesceBuffer) Absorb(off uint64, p []byte) bool {
	if len(p) == 0 {
		return true
	}
	if len(b.data) == 0 {
		if b.max > 0 && len(p) > b.max {
			return false
		}
		b.start = off
		b.data = append(b.data[:0], p...)
		return true
	}

	end := b.start + uint64(len(b.data))
	if off < b.start || off > end {
		return false
	}

	newEnd := off + uint64(len(p))
	if newEnd > end {
		grown := int(newEnd - b.start)
		if b.max > 0 && grown > b.max {
			return false
		}
		if cap(b.data) < grown {
			tmp := make([]byte, len(b.data), grown)
			copy(tmp, b.data)
			b.data = tmp
		}
		b.data = b.data[:grown]
	}
	copy(b.data[off-b.start:], p)
	return true
}

// Take drains the buffer into an unsequenced Write record. It returns false
// if nothing is pending.
func (b *CoalesceBuffer) Take() (Record, bool) {
	if len(b.data) == 0 {
		return Record{}, false
	}
	r := Record{
		Op:     OpWrite,
		Path:   b.path,
		Offset: b.start,
		Data:   b.data,
	}
	b.data = nil
	b.start = 0
	return r, true
}

// Rebind points the buffer (and its pending bytes) at a new path. Used when
// the file a handle is open on is renamed before the buffer flushes.
func (b *CoalesceBuffer) Rebind(path string) { b.path = path }
