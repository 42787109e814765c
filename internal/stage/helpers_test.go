package stage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/eargollo/orgest/internal/media"
	"github.com/eargollo/orgest/internal/mediatool"
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

// listFiles returns every regular file under root as sorted slash paths.
func listFiles(tb testing.TB, root string) []string {
	tb.Helper()
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, _ := filepath.Rel(root, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		tb.Fatal(err)
	}
	sort.Strings(out)
	return out
}

func readFile(tb testing.TB, path string) string {
	tb.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		tb.Fatalf("read %q: %v", path, err)
	}
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// recorder collects progress events.
type recorder struct {
	mu     sync.Mutex
	events [][2]int
	onStep func(current, total int)
}

func (r *recorder) Progress(current, total int, label string) {
	r.mu.Lock()
	r.events = append(r.events, [2]int{current, total})
	r.mu.Unlock()
	if r.onStep != nil {
		r.onStep(current, total)
	}
}

func (r *recorder) assertMonotonic(tb testing.TB) {
	tb.Helper()
	for i := 1; i < len(r.events); i++ {
		if r.events[i][0] < r.events[i-1][0] {
			tb.Errorf("progress went backwards at %d: %v -> %v", i, r.events[i-1], r.events[i])
		}
		if r.events[i][1] != r.events[0][1] {
			tb.Errorf("total changed at %d: %v", i, r.events[i])
		}
	}
}

// fakeTranscoder copies src to dst. Empty sources and names containing
// "corrupt" fail the way a real tool would.
type fakeTranscoder struct {
	mu    sync.Mutex
	calls []mediatool.Operation
}

func (f *fakeTranscoder) Run(ctx context.Context, op mediatool.Operation, src, dst string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.Size() == 0 || strings.Contains(filepath.Base(src), "corrupt") {
		return &mediatool.ExecError{Op: op, Src: src, Stderr: "Invalid data found when processing input\n", Err: errors.New("exit status 1")}
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// fakeCodec uppercases file content in place and fails on "corrupt" names.
type fakeCodec struct {
	unavailable bool
}

func (c fakeCodec) Available() bool { return !c.unavailable }

func (fakeCodec) Supports(path string) bool {
	switch media.Ext(path) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif":
		return true
	}
	return false
}

func (fakeCodec) OptimizeFile(path string) (media.ImageReport, error) {
	if strings.Contains(filepath.Base(path), "corrupt") {
		return media.ImageReport{}, errors.New("decode: invalid format")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return media.ImageReport{}, err
	}
	return media.ImageReport{Width: 1, Height: 1}, os.WriteFile(path, []byte(strings.ToUpper(string(b))), 0o644)
}

// newEnv returns an Env rooted at root with a fake transcoder and codec.
func newEnv(root string) (*Env, *fakeTranscoder, *Token) {
	tool := &fakeTranscoder{}
	tok := NewToken()
	env := &Env{
		Root:     root,
		Cancel:   tok,
		Progress: &recorder{},
		FindTool: func(context.Context) (Transcoder, error) { return tool, nil },
		Images:   fakeCodec{},
		FreeSpace: func(string) (uint64, error) {
			return 1 << 40, nil
		},
		MinFreeBytes: 100 << 20,
	}
	return env, tool, tok
}
