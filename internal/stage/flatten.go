package stage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/eargollo/orgest/internal/move"
	"github.com/eargollo/orgest/internal/scan"
)

// Flatten pulls every nested file up to the root, deepest first, and then
// removes the directories left empty.
type Flatten struct{}

func (Flatten) Name() string  { return "flatten" }
func (Flatten) Title() string { return "Extract files to root" }

func (fl Flatten) Run(ctx context.Context, env *Env) Result {
	log := env.logger().With("stage", fl.Name())
	excl := env.exclusions()

	files, err := scan.WalkDeepestFirst(env.Root, excl, scan.MatchNested(env.Root), env.reporter(fl.Name()))
	if err != nil {
		return Failure(err)
	}

	counts := Counts{"moved": 0, "failed": 0, "dirs_removed": 0}

	tr := env.track(len(files))
	for _, f := range files {
		if tr.cancelled() {
			log.Info("cancelled", "moved", counts["moved"])
			return Cancellation()
		}
		name := filepath.Base(f.Path)
		if _, err := move.Move(f.Path, env.Root); err != nil {
			counts["failed"]++
			env.itemFailed(fl.Name(), f.Path, "cannot move file to root", err)
			tr.step(name)
			continue
		}
		counts["moved"]++
		tr.step(name)
	}

	if tr.done() {
		log.Info("cancelled", "moved", counts["moved"])
		return Cancellation()
	}

	dirs, err := scan.Dirs(env.Root, excl, env.reporter(fl.Name()))
	if err != nil {
		return Failure(err)
	}
	for _, d := range dirs {
		// Remove only succeeds on empty directories.
		if err := os.Remove(d); err != nil {
			log.Debug("directory kept", "path", d, "error", err)
			continue
		}
		counts["dirs_removed"]++
	}

	log.Info("files extracted to root", "moved", counts["moved"], "dirs_removed", counts["dirs_removed"])
	return Success(counts)
}
