package journal

import (
	"sync"
)

// Journal is the single-writer ordered log of finalized records.
//
// Producers may prepare records concurrently, but sequence assignment and
// final emission are serialized through the Journal mutex so the global order
// is well defined. The checkpoint marks the last sequence number already
// handed to a consumer; committed records are dropped from memory since the
// exported diff is the durable copy.
type Journal struct {
	mu         sync.Mutex
	records    []Record
	seq        uint64
	checkpoint uint64
}

func New() *Journal {
	return &Journal{}
}

// Append assigns the next sequence number to r and appends it. This is the
// single ordering point: the ticket is acquired at finalize time, never
// earlier.
func (j *Journal) Append(r Record) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.seq++
	r.Seq = j.seq
	j.records = append(j.records, r)
	return r.Seq
}

// ExportBatch returns a copy of every record sequenced after the current
// checkpoint, in order. It does not advance the checkpoint; call Commit once
// the batch has been successfully handed out.
func (j *Journal) ExportBatch() []Record {
	j.mu.Lock()
	defer j.mu.Unlock()

	batch := make([]Record, 0, len(j.records))
	for _, r := range j.records {
		if r.Seq > j.checkpoint {
			batch = append(batch, r)
		}
	}
	return batch
}

// Commit advances the checkpoint to seq and drops the records it covers.
// Dropping exported history only reclaims local storage; the handed-out diff
// is unaffected. A seq at or below the current checkpoint is a no-op.
func (j *Journal) Commit(seq uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if seq <= j.checkpoint {
		return
	}
	j.checkpoint = seq

	kept := j.records[:0]
	for _, r := range j.records {
		if r.Seq > seq {
			kept = append(kept, r)
		}
	}
	// Zero the tail so dropped write payloads can be collected.
	for i := len(kept); i < len(j.records); i++ {
		j.records[i] = Record{}
	}
	j.records = kept
}

// Reset discards all pending records and aligns the checkpoint with the
// sequence counter. The counter itself keeps climbing so sequence numbers
// never repeat within a mount.
func (j *Journal) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.records = nil
	j.checkpoint = j.seq
}

// Checkpoint returns the last committed sequence number.
func (j *Journal) Checkpoint() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.checkpoint
}

// Pending returns the number of records not yet exported.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.records)
}

// LastSeq returns the highest sequence number assigned so far.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}
