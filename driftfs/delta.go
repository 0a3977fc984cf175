package driftfs

// writeRun is one changed byte range within a write, offset-relative to the
// write itself.
type writeRun struct {
	off  int
	data []byte
}

// deltaRuns splits a write into the runs that actually differ from the bytes
// they overwrite. old is what the file held at the write offset (possibly
// shorter than the write when it extends the file); everything past len(old)
// counts as changed. Returned runs hold copies of the new bytes.
func deltaRuns(old, new []byte) []writeRun {
	var runs []writeRun
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		cp := make([]byte, end-start)
		copy(cp, new[start:end])
		runs = append(runs, writeRun{off: start, data: cp})
		start = -1
	}

	for i := range new {
		changed := i >= len(old) || old[i] != new[i]
		if changed && start < 0 {
			start = i
		}
		if !changed {
			flush(i)
		}
	}
	flush(len(new))
	return runs
}
