package mediatool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
)

func TestArgs(t *testing.T) {
	cases := []struct {
		op   Operation
		want []string
	}{
		{Repackage, []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-i", "in.ts", "-c", "copy", "out.mp4"}},
		{StillFrame, []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-i", "in.ts", "-frames:v", "1", "out.mp4"}},
		{Reencode, []string{"-hide_banner", "-nostdin", "-y", "-loglevel", "error", "-i", "in.ts",
			"-c:v", "libx264", "-crf", "23", "-preset", "fast", "-c:a", "aac", "-b:a", "128k",
			"-movflags", "+faststart", "out.mp4"}},
	}
	for _, c := range cases {
		if got := Args(c.op, "in.ts", "out.mp4"); !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s:\n got %v\nwant %v", c.op, got, c.want)
		}
	}
}

// fakeFFmpeg answers -version and copies the -i input to the last argument,
// failing on empty input the way a real transcoder does.
const fakeFFmpeg = `#!/bin/sh
if [ "$1" = "-version" ]; then echo "ffmpeg version fake-1.0"; exit 0; fi
src=""; prev=""; dst=""
for a in "$@"; do
  if [ "$prev" = "-i" ]; then src="$a"; fi
  prev="$a"; dst="$a"
done
if [ ! -s "$src" ]; then echo "Invalid data found when processing input" >&2; exit 1; fi
cp "$src" "$dst"
`

func installFake(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell fake needs a POSIX sh")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(fakeFFmpeg), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestResolvePrefersBundled(t *testing.T) {
	dir := installFake(t)
	tool, err := Resolve(context.Background(), dir, "ffmpeg")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tool.Source != SourceBundled {
		t.Errorf("source: got %s, want bundled", tool.Source)
	}
	if tool.Version != "ffmpeg version fake-1.0" {
		t.Errorf("version: got %q", tool.Version)
	}
}

func TestResolveNotFound(t *testing.T) {
	_, err := Resolve(context.Background(), t.TempDir(), "orgest-no-such-transcoder")
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("got %v, want ErrToolNotFound", err)
	}
}

func TestRun(t *testing.T) {
	dir := installFake(t)
	tool, err := Resolve(context.Background(), dir, "ffmpeg")
	if err != nil {
		t.Fatal(err)
	}

	work := t.TempDir()
	src := filepath.Join(work, "in.ts")
	dst := filepath.Join(work, "out.mp4")
	if err := os.WriteFile(src, []byte("stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := tool.Run(context.Background(), Repackage, src, dst); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if b, _ := os.ReadFile(dst); string(b) != "stream" {
		t.Errorf("dst content: got %q", b)
	}

	empty := filepath.Join(work, "empty.ts")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err = tool.Run(context.Background(), Repackage, empty, filepath.Join(work, "x.mp4"))
	var ee *ExecError
	if !errors.As(err, &ee) {
		t.Fatalf("got %v, want *ExecError", err)
	}
	if tail := ee.Tail(5); len(tail) != 1 || tail[0] != "Invalid data found when processing input" {
		t.Errorf("stderr tail: got %v", tail)
	}
}
