// Package mediatool locates and runs the external ffmpeg binary.
package mediatool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrToolNotFound is returned when neither a bundled nor a PATH ffmpeg can
// be executed.
var ErrToolNotFound = errors.New("ffmpeg not found")

// Source tells where a resolved binary came from.
type Source string

const (
	SourceBundled Source = "bundled"
	SourcePath    Source = "path"
)

// Tool is a resolved, verified ffmpeg binary.
type Tool struct {
	Path    string
	Source  Source
	Version string
}

// ExecError carries the captured stderr of a failed invocation.
type ExecError struct {
	Op     Operation
	Src    string
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("ffmpeg %s %q: %v", e.Op, e.Src, e.Err)
	if tail := e.Tail(1); len(tail) > 0 {
		msg += ": " + tail[0]
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// Tail returns the last n non-empty stderr lines.
func (e *ExecError) Tail(n int) []string {
	var lines []string
	for _, l := range strings.Split(e.Stderr, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// Run executes op from src to dst and waits for it. Cancelling ctx kills
// the process; nothing else interrupts it.
func (t *Tool) Run(ctx context.Context, op Operation, src, dst string) error {
	cmd := exec.CommandContext(ctx, t.Path, Args(op, src, dst)...)
	hideConsole(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &ExecError{Op: op, Src: src, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// Resolve finds ffmpeg, preferring a copy in bundledDir over the one on
// PATH. A relative bundledDir is taken relative to the running
// executable. Each candidate must answer "-version" before it is accepted.
func Resolve(ctx context.Context, bundledDir, binary string) (*Tool, error) {
	if binary == "" {
		binary = "ffmpeg"
	}

	var tried []string
	if dir := bundledPath(bundledDir); dir != "" {
		candidate := filepath.Join(dir, executableName(binary))
		tried = append(tried, candidate)
		if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
			if v, err := version(ctx, candidate); err == nil {
				return &Tool{Path: candidate, Source: SourceBundled, Version: v}, nil
			}
		}
	}

	tried = append(tried, binary+" on PATH")
	if p, err := exec.LookPath(binary); err == nil {
		if v, err := version(ctx, p); err == nil {
			return &Tool{Path: p, Source: SourcePath, Version: v}, nil
		}
	}

	return nil, fmt.Errorf("%w (tried %s)", ErrToolNotFound, strings.Join(tried, ", "))
}

func bundledPath(dir string) string {
	if dir == "" {
		return ""
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), dir)
}

func executableName(binary string) string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(binary), ".exe") {
		return binary + ".exe"
	}
	return binary
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// version runs "<path> -version" and returns its first output line.
func version(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, path, "-version")
	hideConsole(cmd)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	first, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(first), nil
}
