package scan

// SharedSizes returns the files whose size is shared with at least one
// other file, preserving input order. Only these can have identical
// content, so callers hash nothing else. Zero-byte files are dropped.
func SharedSizes(files []FileTask) []FileTask {
	count := make(map[int64]int, len(files))
	for _, f := range files {
		if f.Size > 0 {
			count[f.Size]++
		}
	}
	var out []FileTask
	for _, f := range files {
		if f.Size > 0 && count[f.Size] > 1 {
			out = append(out, f)
		}
	}
	return out
}
