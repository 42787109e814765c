package stage

import (
	"context"
	"path/filepath"

	"github.com/eargollo/orgest/internal/media"
	"github.com/eargollo/orgest/internal/move"
	"github.com/eargollo/orgest/internal/scan"
)

// Classify moves every file directly under root/<category folder>. The
// category folders themselves are not walked, so whatever is already filed
// stays where it is and a second run moves nothing.
type Classify struct{}

func (Classify) Name() string  { return "classify" }
func (Classify) Title() string { return "Organize files" }

func (c Classify) Run(ctx context.Context, env *Env) Result {
	log := env.logger().With("stage", c.Name())

	var filed []string
	for _, folder := range media.Folders() {
		filed = append(filed, env.dir(folder))
	}
	excl := env.exclusions().WithPaths(filed...)

	files, err := scan.Walk(env.Root, excl, scan.MatchAll, env.reporter(c.Name()))
	if err != nil {
		return Failure(err)
	}

	counts := Counts{"failed": 0}
	for _, cat := range media.Categories() {
		counts[cat.Key()] = 0
	}

	tr := env.track(len(files))
	for _, f := range files {
		if tr.cancelled() {
			log.Info("cancelled")
			return Cancellation()
		}
		name := filepath.Base(f.Path)
		if _, err := move.Move(f.Path, env.dir(f.Category.Folder())); err != nil {
			counts["failed"]++
			env.itemFailed(c.Name(), f.Path, "cannot classify file", err)
			tr.step(name)
			continue
		}
		counts[f.Category.Key()]++
		tr.step(name)
	}
	if tr.done() {
		log.Info("cancelled")
		return Cancellation()
	}

	log.Info("files organized", "counts", counts)
	return Success(counts)
}
