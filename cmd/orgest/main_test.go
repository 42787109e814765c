package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eargollo/orgest/internal/config"
	"github.com/eargollo/orgest/internal/mediatool"
	"github.com/eargollo/orgest/internal/pipeline"
	"github.com/eargollo/orgest/internal/stage"
)

// runCLI executes the root command against a config whose data dir lives
// in a temp directory.
func runCLI(t *testing.T, dataDir string, args ...string) (string, error) {
	t.Helper()
	cfgPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		body := "data_dir: " + filepath.ToSlash(dataDir) + "\nlog_level: error\n"
		if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStageCommand_RunsAndRecords(t *testing.T) {
	dataDir := t.TempDir()
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := runCLI(t, dataDir, "stage", "split", root, "--per-folder", "2")
	if err != nil {
		t.Fatalf("stage split: %v\n%s", err, out)
	}
	if !strings.Contains(out, "succeeded") {
		t.Errorf("summary missing outcome:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(root, "0002", "c.txt")); err != nil {
		t.Errorf("split did not create the second batch: %v", err)
	}

	out, err = runCLI(t, dataDir, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "split") || !strings.Contains(out, "cli") {
		t.Errorf("history missing the job:\n%s", out)
	}
}

func TestStageCommand_FailureExitsWithError(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "stage", "split", t.TempDir(), "--per-folder", "0")
	var se *pipeline.StageError
	if !errors.As(err, &se) || !errors.Is(err, stage.ErrInvalidBatchSize) {
		t.Fatalf("got %v, want a stage error wrapping ErrInvalidBatchSize", err)
	}
	if !strings.Contains(out, "failed") {
		t.Errorf("summary missing failure:\n%s", out)
	}
}

func TestStageCommand_UnknownStage(t *testing.T) {
	if _, err := runCLI(t, t.TempDir(), "stage", "bogus", t.TempDir()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunCommand_NeedsRoot(t *testing.T) {
	if _, err := runCLI(t, t.TempDir(), "run"); !errors.Is(err, errNoRoot) {
		t.Fatalf("got %v, want errNoRoot", err)
	}
}

func TestHistory_Empty(t *testing.T) {
	out, err := runCLI(t, t.TempDir(), "history")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No jobs recorded yet.") {
		t.Errorf("got %q", out)
	}
}

// TestFindTool_RetriesAfterFailure verifies a failed lookup is not cached
// while a successful one is.
func TestFindTool_RetriesAfterFailure(t *testing.T) {
	calls := 0
	installed := false
	c := &commandContext{
		config: &config.Config{},
		resolveTool: func(ctx context.Context, bundledDir, binary string) (*mediatool.Tool, error) {
			calls++
			if !installed {
				return nil, mediatool.ErrToolNotFound
			}
			return &mediatool.Tool{Path: "/usr/bin/ffmpeg", Source: mediatool.SourcePath}, nil
		},
	}
	ctx := context.Background()

	if _, err := c.findTool(ctx); !errors.Is(err, mediatool.ErrToolNotFound) {
		t.Fatalf("first lookup: got %v, want ErrToolNotFound", err)
	}
	installed = true
	if _, err := c.findTool(ctx); err != nil {
		t.Fatalf("lookup after install: %v", err)
	}
	if _, err := c.findTool(ctx); err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if calls != 2 {
		t.Errorf("resolver called %d times, want 2", calls)
	}
}

func TestRenderTable_PadsRowsAndPrintsCaption(t *testing.T) {
	cols := []column{{title: "Name"}, {title: "Size", right: true}}
	out := renderTable(cols, [][]string{{"a.jpg", "10"}, {"b.jpg"}}, "Showing 2 of 5 jobs.")
	for _, want := range []string{"Name", "Size", "a.jpg", "b.jpg", "Showing 2 of 5 jobs."} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, "") != "" {
		t.Error("no columns must render nothing")
	}
}

func TestFormatCounts(t *testing.T) {
	got := formatCounts(stage.Counts{"moved": 3, "failed": 0, "dirs_removed": 1})
	if want := "dirs_removed=1 moved=3"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestProgressLine(t *testing.T) {
	s := pipeline.State{Stage: 2, Stages: 6, StageTitle: "Classify", Fraction: 0.25, Current: 3, Total: 10, Label: "photo.jpg"}
	if got, want := progressLine(s), "[2/6] Classify  25% (3/10) photo.jpg"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
