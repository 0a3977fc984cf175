package journal

import (
	"testing"
)

func seqd(recs []Record) []Record {
	for i := range recs {
		recs[i].Seq = uint64(i + 1)
	}
	return recs
}

func ops(recs []Record) []Op {
	out := make([]Op, len(recs))
	for i, r := range recs {
		out[i] = r.Op
	}
	return out
}

func TestCompactTruncateZeroShadowsWrites(t *testing.T) {
	in := seqd([]Record{
		{Op: OpCreate, Path: "a", Mode: 0o644},
		{Op: OpWrite, Path: "a", Offset: 0, Data: []byte("hello")},
		{Op: OpWrite, Path: "a", Offset: 100, Data: []byte("tail")},
		{Op: OpTruncate, Path: "a", Size: 0},
	})
	got := Compact(in)
	if len(got) != 2 {
		t.Fatalf("got %d records %v, want 2", len(got), ops(got))
	}
	if got[0].Op != OpCreate || got[1].Op != OpTruncate {
		t.Errorf("ops = %v, want [create truncate]", ops(got))
	}
}

func TestCompactWholeFileOverwrite(t *testing.T) {
	in := seqd([]Record{
		{Op: OpWrite, Path: "a", Offset: 0, Data: []byte("old!")},
		{Op: OpWrite, Path: "a", Offset: 2, Data: []byte("xy")},
		{Op: OpWrite, Path: "a", Offset: 0, Data: []byte("newdata")},
	})
	got := Compact(in)
	if len(got) != 1 {
		t.Fatalf("got %d records %v, want 1", len(got), ops(got))
	}
	if string(got[0].Data) != "newdata" {
		t.Errorf("surviving write = %q", got[0].Data)
	}
}

func TestCompactOverwriteKeepsUncoveredWrite(t *testing.T) {
	in := seqd([]Record{
		{Op: OpWrite, Path: "a", Offset: 50, Data: []byte("far away")},
		{Op: OpWrite, Path: "a", Offset: 0, Data: []byte("short")},
	})
	got := Compact(in)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2 (uncovered write must survive)", len(got))
	}
}

func TestCompactOverwriteKeepsTruncate(t *testing.T) {
	// A truncate may shrink a file that predates this journal window; a
	// covering write alone cannot prove the final length.
	in := seqd([]Record{
		{Op: OpTruncate, Path: "a", Size: 5},
		{Op: OpWrite, Path: "a", Offset: 0, Data: []byte("0123456789")},
	})
	got := Compact(in)
	if len(got) != 2 {
		t.Fatalf("got %d records %v, want 2", len(got), ops(got))
	}
}

func TestCompactCreateUnlinkAnnihilates(t *testing.T) {
	in := seqd([]Record{
		{Op: OpCreate, Path: "tmp", Mode: 0o600},
		{Op: OpWrite, Path: "tmp", Data: []byte("scratch")},
		{Op: OpSetMode, Path: "tmp", Mode: 0o644},
		{Op: OpWrite, Path: "other", Data: []byte("keep")},
		{Op: OpUnlink, Path: "tmp"},
	})
	got := Compact(in)
	if len(got) != 1 {
		t.Fatalf("got %d records %v, want 1", len(got), ops(got))
	}
	if got[0].Path != "other" {
		t.Errorf("survivor = %q, want \"other\"", got[0].Path)
	}
}

func TestCompactCreateUnlinkBlockedByAlias(t *testing.T) {
	// A hard link in between makes the content reachable through another
	// name; nothing may collapse.
	in := seqd([]Record{
		{Op: OpCreate, Path: "tmp"},
		{Op: OpWrite, Path: "tmp", Data: []byte("x")},
		{Op: OpLink, Path: "tmp", NewPath: "alias"},
		{Op: OpUnlink, Path: "tmp"},
	})
	got := Compact(in)
	if len(got) != len(in) {
		t.Fatalf("got %d records %v, want all %d kept", len(got), ops(got), len(in))
	}
}

func TestCompactSettersLastWins(t *testing.T) {
	in := seqd([]Record{
		{Op: OpSetMode, Path: "a", Mode: 0o600},
		{Op: OpSetMode, Path: "a", Mode: 0o640},
		{Op: OpSetMode, Path: "a", Mode: 0o644},
		{Op: OpSetOwner, Path: "a", UID: 1, GID: 1},
		{Op: OpSetOwner, Path: "a", UID: 2, GID: 2},
	})
	got := Compact(in)
	if len(got) != 2 {
		t.Fatalf("got %d records %v, want 2", len(got), ops(got))
	}
	if got[0].Op != OpSetMode || got[0].Mode != 0o644 {
		t.Errorf("mode survivor = %+v", got[0])
	}
	if got[1].Op != OpSetOwner || got[1].UID != 2 {
		t.Errorf("owner survivor = %+v", got[1])
	}
}

func TestCompactSettersKeptAcrossIntervening(t *testing.T) {
	in := seqd([]Record{
		{Op: OpSetMode, Path: "a", Mode: 0o600},
		{Op: OpWrite, Path: "a", Data: []byte("x")},
		{Op: OpSetMode, Path: "a", Mode: 0o644},
	})
	got := Compact(in)
	if len(got) != 3 {
		t.Fatalf("got %d records %v, want 3", len(got), ops(got))
	}
}

func TestCompactRenameChain(t *testing.T) {
	in := seqd([]Record{
		{Op: OpRename, Path: "a", NewPath: "b"},
		{Op: OpWrite, Path: "unrelated", Data: []byte("x")},
		{Op: OpRename, Path: "b", NewPath: "c"},
	})
	got := Compact(in)
	if len(got) != 2 {
		t.Fatalf("got %d records %v, want 2", len(got), ops(got))
	}
	last := got[len(got)-1]
	if last.Op != OpRename || last.Path != "a" || last.NewPath != "c" {
		t.Errorf("merged rename = %+v, want a->c", last)
	}
}

func TestCompactRenameChainBlocked(t *testing.T) {
	testCases := []struct {
		Name    string
		Between Record
	}{
		{"write to intermediate", Record{Op: OpWrite, Path: "b", Data: []byte("x")}},
		{"recreate of source", Record{Op: OpCreate, Path: "a"}},
		{"unlink of destination", Record{Op: OpUnlink, Path: "c"}},
	}
	for _, c := range testCases {
		t.Run(c.Name, func(t *testing.T) {
			in := seqd([]Record{
				{Op: OpRename, Path: "a", NewPath: "b"},
				c.Between,
				{Op: OpRename, Path: "b", NewPath: "c"},
			})
			got := Compact(in)
			if len(got) != 3 {
				t.Fatalf("got %d records %v, want 3 (no collapse)", len(got), ops(got))
			}
		})
	}
}

func TestCompactPreservesOrderAndSeqs(t *testing.T) {
	in := seqd([]Record{
		{Op: OpCreate, Path: "a"},
		{Op: OpWrite, Path: "a", Data: []byte("1")},
		{Op: OpMkdir, Path: "d"},
		{Op: OpWrite, Path: "a", Offset: 1, Data: []byte("2")},
	})
	got := Compact(in)
	if len(got) != len(in) {
		t.Fatalf("nothing should collapse, got %v", ops(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Seq >= got[i].Seq {
			t.Fatalf("sequence order broken at %d", i)
		}
	}
}
