// Package stage implements the file-transformation steps of a job. Every
// stage re-scans the tree, checks for cancellation before each file, and
// reports progress through the sink it is handed.
package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"

	"github.com/eargollo/orgest/internal/disk"
	"github.com/eargollo/orgest/internal/logging"
	"github.com/eargollo/orgest/internal/media"
	"github.com/eargollo/orgest/internal/mediatool"
	"github.com/eargollo/orgest/internal/scan"
)

// Program-owned folders under the root. They are never scanned as input.
const (
	TrashDir      = "trash"
	BackupDir     = "sin_edit"
	QuarantineDir = "fallos"
)

// ProgramFolders lists the folders the stages create for their own use.
func ProgramFolders() []string {
	return []string{TrashDir, BackupDir, QuarantineDir}
}

var (
	// ErrNoMediaTools is returned by Optimize when neither the image codec
	// nor the transcoder is usable.
	ErrNoMediaTools = errors.New("no image codec or transcoder available")
	// ErrInvalidBatchSize is returned by Split for a non-positive batch size.
	ErrInvalidBatchSize = errors.New("files per folder must be greater than zero")
)

// Counts holds the named counters of a successful stage.
type Counts map[string]int

// Outcome tells which of the three forms a Result takes.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is the outcome of one stage run: counts on success, an error on
// failure, nothing when cancelled.
type Result struct {
	Outcome Outcome
	Counts  Counts
	Err     error
}

// Success wraps counts in a Succeeded result.
func Success(c Counts) Result {
	if c == nil {
		c = Counts{}
	}
	return Result{Outcome: Succeeded, Counts: c}
}

// Failure wraps err in a Failed result.
func Failure(err error) Result { return Result{Outcome: Failed, Err: err} }

// Cancellation is the empty Cancelled result.
func Cancellation() Result { return Result{Outcome: Cancelled} }

// Progress receives per-item progress. total is fixed for one stage run;
// total == 0 means the amount of work is unknown.
type Progress interface {
	Progress(current, total int, label string)
}

// ProgressFunc adapts a function to Progress.
type ProgressFunc func(current, total int, label string)

func (f ProgressFunc) Progress(current, total int, label string) { f(current, total, label) }

// Canceller is polled between items.
type Canceller interface {
	Cancelled() bool
}

// Token is a one-shot cancellation flag shared by the caller and every
// stage of one job.
type Token struct {
	set atomic.Bool
}

// NewToken returns an unset token.
func NewToken() *Token { return &Token{} }

// Cancel sets the token. Calling it again has no effect.
func (t *Token) Cancel() { t.set.Store(true) }

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool { return t.set.Load() }

// Transcoder runs one fixed media-tool operation. *mediatool.Tool
// implements it.
type Transcoder interface {
	Run(ctx context.Context, op mediatool.Operation, src, dst string) error
}

// Env carries everything a stage needs besides its own options.
type Env struct {
	Root     string
	Logger   *slog.Logger
	Progress Progress
	Cancel   Canceller
	// Report persists per-item errors. Optional.
	Report scan.ErrorReporter
	// ExcludeNames are skipped in addition to ProgramFolders.
	ExcludeNames []string

	// FindTool resolves the transcoder. A nil FindTool means none exists.
	FindTool func(ctx context.Context) (Transcoder, error)
	// Images re-encodes stills. Nil disables image optimization.
	Images media.ImageCodec

	// MinFreeBytes is the floor checked before writing transcoded output.
	MinFreeBytes uint64
	// FreeSpace defaults to disk.Free.
	FreeSpace func(path string) (uint64, error)
}

// Stage is one step of a job.
type Stage interface {
	Name() string
	Title() string
	Run(ctx context.Context, env *Env) Result
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func (e *Env) cancelled() bool {
	return e.Cancel != nil && e.Cancel.Cancelled()
}

func (e *Env) exclusions() scan.Exclusions {
	names := append(ProgramFolders(), e.ExcludeNames...)
	return scan.NewExclusions(names...)
}

func (e *Env) dir(name string) string {
	return filepath.Join(e.Root, name)
}

// reporter returns the walker-compatible reporter that also logs.
func (e *Env) reporter(stage string) scan.ErrorReporter {
	log := e.logger()
	return func(path, _ string, errMsg string) {
		log.Warn("skipping unreadable entry", "stage", stage, "path", path, "error", errMsg)
		if e.Report != nil {
			e.Report(path, stage, errMsg)
		}
	}
}

// itemFailed logs and records a per-item error.
func (e *Env) itemFailed(stage, path, msg string, err error) {
	e.logger().Warn(msg, "stage", stage, "path", path, "error", err)
	if e.Report != nil {
		e.Report(path, stage, err.Error())
	}
}

// logStderr writes the tail of a failed transcoder run at debug level.
func logStderr(log *slog.Logger, err error) {
	var ee *mediatool.ExecError
	if !errors.As(err, &ee) {
		return
	}
	for _, line := range ee.Tail(20) {
		log.Debug("ffmpeg stderr", "line", line)
	}
}

func (e *Env) findTool(ctx context.Context) (Transcoder, error) {
	if e.FindTool == nil {
		return nil, mediatool.ErrToolNotFound
	}
	return e.FindTool(ctx)
}

// requireSpace fails with disk.ErrInsufficientSpace when the root's
// filesystem is below MinFreeBytes. A failed probe only warns.
func (e *Env) requireSpace() error {
	floor := e.MinFreeBytes
	if floor == 0 {
		return nil
	}
	free := e.FreeSpace
	if free == nil {
		free = disk.Free
	}
	avail, err := free(e.Root)
	if err != nil {
		e.logger().Warn("could not determine free space, continuing", "root", e.Root, "error", err)
		return nil
	}
	if avail < floor {
		return fmt.Errorf("%w: %d MiB free, need %d MiB", disk.ErrInsufficientSpace, avail>>20, floor>>20)
	}
	return nil
}

// tracker emits progress for one stage run and stops emitting once
// cancellation has been observed.
type tracker struct {
	env     *Env
	total   int
	current int
	stopped bool
}

func (e *Env) track(total int) *tracker {
	t := &tracker{env: e, total: total}
	t.emit("")
	return t
}

func (t *tracker) emit(label string) {
	if t.stopped || t.env.Progress == nil {
		return
	}
	t.env.Progress.Progress(t.current, t.total, label)
}

// cancelled polls the token; once true, the tracker goes silent.
func (t *tracker) cancelled() bool {
	if t.env.cancelled() {
		t.stopped = true
	}
	return t.stopped
}

// step records one finished item.
func (t *tracker) step(label string) {
	if t.current < t.total {
		t.current++
	}
	t.emit(label)
}

// done emits the completion event. It reports true instead when the token
// was set during the last item, so a stage that saw the token always ends
// Cancelled.
func (t *tracker) done() bool {
	if t.cancelled() {
		return true
	}
	t.current = t.total
	t.emit("")
	return false
}

// registry maps stage names to constructors for the CLI and API.
var registry = map[string]func(Options) Stage{
	"dedup":    func(Options) Stage { return Dedup{} },
	"classify": func(Options) Stage { return Classify{} },
	"convert":  func(Options) Stage { return Convert{} },
	"flatten":  func(Options) Stage { return Flatten{} },
	"optimize": func(Options) Stage { return Optimize{} },
	"cleanup":  func(Options) Stage { return Cleanup{} },
	"split":    func(o Options) Stage { return Split{PerFolder: o.PerFolder} },
}

// Options holds per-stage settings selected by name.
type Options struct {
	PerFolder int
}

// ByName returns the stage registered under name.
func ByName(name string, opts Options) (Stage, error) {
	mk, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q (known: %v)", name, Names())
	}
	return mk(opts), nil
}

// Names lists the registered stage names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Default is the full pipeline order. Optimize is included only when
// withOptimize is set.
func Default(withOptimize bool) []Stage {
	stages := []Stage{Dedup{}, Classify{}, Convert{}, Flatten{}}
	if withOptimize {
		stages = append(stages, Optimize{})
	}
	return append(stages, Cleanup{})
}

// Build resolves names in order. With no names it returns
// Default(withOptimize).
func Build(names []string, withOptimize bool, opts Options) ([]Stage, error) {
	if len(names) == 0 {
		return Default(withOptimize), nil
	}
	out := make([]Stage, 0, len(names))
	for _, n := range names {
		st, err := ByName(n, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
