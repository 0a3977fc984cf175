package journal

// Compact collapses redundant records while preserving that replaying the
// compacted log produces the identical final tree as replaying the input.
// It must only ever be handed the not-yet-exported suffix of the journal;
// already-exported history is never rewritten.
//
// Collapses performed:
//   - writes and truncates fully shadowed by a later truncate-to-zero or a
//     later whole-file overwrite are dropped
//   - a create whose path is unlinked again with nothing else referencing it
//     in between annihilates, along with the records between them
//   - consecutive metadata setters of the same kind on the same path keep
//     only the last
//   - rename chains A->B->C with nothing touching the intermediate name
//     collapse to a single A->C
//
// No collapse crosses a record that re-binds an involved name.
func Compact(recs []Record) []Record {
	if len(recs) < 2 {
		return recs
	}

	out := make([]Record, len(recs))
	copy(out, recs)
	keep := make([]bool, len(out))
	for i := range keep {
		keep[i] = true
	}

	collapseSetters(out, keep)
	dropShadowed(out, keep)
	annihilateCreateUnlink(out, keep)
	collapseRenames(out, keep)

	compacted := out[:0]
	for i, r := range out {
		if keep[i] {
			compacted = append(compacted, r)
		}
	}
	return compacted
}

// dropShadowed walks backwards from each truncate-to-zero and each
// whole-file overwrite, dropping earlier writes and truncates on the same
// path whose effect the later record fully covers.
func dropShadowed(recs []Record, keep []bool) {
	for i := len(recs) - 1; i >= 0; i-- {
		if !keep[i] {
			continue
		}
		r := &recs[i]

		var cover uint64
		switch {
		case r.Op == OpTruncate && r.Size == 0:
			cover = 0
		case r.Op == OpWrite && r.Offset == 0:
			cover = uint64(len(r.Data))
		default:
			continue
		}

	scan:
		for j := i - 1; j >= 0; j-- {
			if !keep[j] {
				continue
			}
			prev := &recs[j]
			if prev.readdresses(r.Path) {
				break scan
			}
			if prev.Path != r.Path {
				continue
			}
			switch prev.Op {
			case OpWrite:
				if cover == 0 || prev.Offset+uint64(len(prev.Data)) <= cover {
					keep[j] = false
				}
			case OpTruncate:
				// Safe to drop only under a truncate-to-zero. Under a
				// covering write the truncate may shrink or extend the
				// file beyond the covered range, so its length effect
				// must survive.
				if cover == 0 {
					keep[j] = false
				}
			}
		}
	}
}

// annihilateCreateUnlink removes create/unlink pairs on the same path, plus
// the write/truncate/metadata records between them, when nothing else binds
// or aliases the path in the window.
func annihilateCreateUnlink(recs []Record, keep []bool) {
	for i := range recs {
		if !keep[i] || recs[i].Op != OpCreate {
			continue
		}
		p := recs[i].Path

		var between []int
		for j := i + 1; j < len(recs); j++ {
			if !keep[j] {
				continue
			}
			r := &recs[j]
			if r.Op == OpUnlink && r.Path == p {
				keep[i] = false
				keep[j] = false
				for _, k := range between {
					keep[k] = false
				}
				break
			}
			if r.readdresses(p) {
				break
			}
			if r.Path == p {
				switch r.Op {
				case OpWrite, OpTruncate, OpSetMode, OpSetOwner, OpSetTimes:
					between = append(between, j)
				}
			}
		}
	}
}

// collapseSetters keeps only the last of consecutive same-kind metadata
// setters on a path when no record touches the path in between.
func collapseSetters(recs []Record, keep []bool) {
	for i := range recs {
		if !keep[i] {
			continue
		}
		op := recs[i].Op
		if op != OpSetMode && op != OpSetOwner && op != OpSetTimes {
			continue
		}
		p := recs[i].Path
		for j := i + 1; j < len(recs); j++ {
			if !keep[j] || !recs[j].Touches(p) {
				continue
			}
			if recs[j].Op == op && recs[j].Path == p {
				keep[i] = false
			}
			break
		}
	}
}

// collapseRenames merges A->B followed by B->C into A->C when no record in
// between touches A, B, or C. The merged record keeps the later sequence
// number; with nothing addressing any involved name in the window, the order
// shift is unobservable.
func collapseRenames(recs []Record, keep []bool) {
	for i := range recs {
		if !keep[i] || recs[i].Op != OpRename {
			continue
		}
		a, b := recs[i].Path, recs[i].NewPath

		for j := i + 1; j < len(recs); j++ {
			if !keep[j] {
				continue
			}
			r := &recs[j]
			if r.Op == OpRename && r.Path == b {
				if r.Touches(a) || recsTouchBetween(recs, keep, i, j, a, b, r.NewPath) {
					break
				}
				r.Path = a
				keep[i] = false
				break
			}
			if r.Touches(a) || r.Touches(b) {
				break
			}
		}
	}
}

func recsTouchBetween(recs []Record, keep []bool, i, j int, paths ...string) bool {
	for k := i + 1; k < j; k++ {
		if !keep[k] {
			continue
		}
		for _, p := range paths {
			if recs[k].Touches(p) {
				return true
			}
		}
	}
	return false
}
