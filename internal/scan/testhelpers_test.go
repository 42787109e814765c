package scan

import (
	"os"
	"path/filepath"
	"testing"
)

// writeTree creates each relative path under root with the given content.
func writeTree(tb testing.TB, root string, files map[string]string) {
	tb.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			tb.Fatalf("mkdir %q: %v", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			tb.Fatalf("write %q: %v", p, err)
		}
	}
}

// noErrors is an ErrorReporter that fails the test if invoked.
func noErrors(tb testing.TB) ErrorReporter {
	return func(path, stage, errMsg string) {
		tb.Errorf("unexpected scan error: path=%q stage=%q err=%q", path, stage, errMsg)
	}
}

// rels converts tasks to root-relative slash paths.
func rels(tb testing.TB, root string, files []FileTask) []string {
	tb.Helper()
	out := make([]string, len(files))
	for i, f := range files {
		r, err := filepath.Rel(root, f.Path)
		if err != nil {
			tb.Fatal(err)
		}
		out[i] = filepath.ToSlash(r)
	}
	return out
}
