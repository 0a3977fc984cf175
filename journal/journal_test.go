package journal

import (
	"fmt"
	"sync"
	"testing"
)

func TestJournalSequencing(t *testing.T) {
	j := New()
	for i := 0; i < 5; i++ {
		seq := j.Append(Record{Op: OpWrite, Path: "a", Data: []byte{byte(i)}})
		if seq != uint64(i+1) {
			t.Fatalf("seq = %d, want %d", seq, i+1)
		}
	}
	batch := j.ExportBatch()
	if len(batch) != 5 {
		t.Fatalf("batch len = %d, want 5", len(batch))
	}
	for i, r := range batch {
		if r.Seq != uint64(i+1) {
			t.Errorf("batch[%d].Seq = %d, want %d", i, r.Seq, i+1)
		}
	}
}

func TestJournalCommitDropsExported(t *testing.T) {
	j := New()
	j.Append(Record{Op: OpCreate, Path: "a"})
	j.Append(Record{Op: OpWrite, Path: "a", Data: []byte("x")})
	j.Commit(2)

	if got := j.Pending(); got != 0 {
		t.Errorf("pending = %d, want 0", got)
	}
	if got := j.Checkpoint(); got != 2 {
		t.Errorf("checkpoint = %d, want 2", got)
	}

	// Records after the checkpoint survive, and the second export sees
	// only the delta.
	j.Append(Record{Op: OpUnlink, Path: "a"})
	batch := j.ExportBatch()
	if len(batch) != 1 || batch[0].Seq != 3 {
		t.Fatalf("delta batch = %+v, want single seq 3", batch)
	}

	// Stale commits never move the checkpoint backwards.
	j.Commit(1)
	if got := j.Checkpoint(); got != 2 {
		t.Errorf("checkpoint after stale commit = %d, want 2", got)
	}
}

func TestJournalResetKeepsCounter(t *testing.T) {
	j := New()
	j.Append(Record{Op: OpMkdir, Path: "d"})
	j.Reset()
	if j.Pending() != 0 {
		t.Error("reset left pending records")
	}
	if seq := j.Append(Record{Op: OpRmdir, Path: "d"}); seq != 2 {
		t.Errorf("seq after reset = %d, want 2", seq)
	}
}

func TestJournalConcurrentAppend(t *testing.T) {
	j := New()
	const workers, per = 8, 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < per; i++ {
				j.Append(Record{Op: OpWrite, Path: fmt.Sprintf("f%d", w)})
			}
		}(w)
	}
	wg.Wait()

	batch := j.ExportBatch()
	if len(batch) != workers*per {
		t.Fatalf("got %d records, want %d", len(batch), workers*per)
	}
	seen := make(map[uint64]bool, len(batch))
	for i, r := range batch {
		if seen[r.Seq] {
			t.Fatalf("duplicate seq %d", r.Seq)
		}
		seen[r.Seq] = true
		if i > 0 && batch[i-1].Seq >= r.Seq {
			t.Fatalf("batch out of order at %d", i)
		}
	}
}

func TestValidatePath(t *testing.T) {
	testCases := []struct {
		Path string
		OK   bool
	}{
		{"a.txt", true},
		{"dir/sub/file", true},
		{"", false},
		{"/etc/passwd", false},
		{"../escape", false},
		{"a/../../b", false},
		{"a/./b", false},
		{".", false},
		{"a//b", false},
	}
	for _, c := range testCases {
		err := ValidatePath(c.Path)
		if c.OK && err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", c.Path, err)
		}
		if !c.OK && err == nil {
			t.Errorf("ValidatePath(%q) = nil, want error", c.Path)
		}
	}
}
