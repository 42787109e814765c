package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eargollo/orgest/internal/move"
)

// Split groups the files directly under root into numbered folders
// (0001, 0002, ...) holding at most PerFolder files each.
type Split struct {
	PerFolder int
}

func (Split) Name() string  { return "split" }
func (Split) Title() string { return "Split into batches" }

func (s Split) Run(ctx context.Context, env *Env) Result {
	log := env.logger().With("stage", s.Name())
	if s.PerFolder <= 0 {
		return Failure(fmt.Errorf("%w: %d", ErrInvalidBatchSize, s.PerFolder))
	}

	entries, err := os.ReadDir(env.Root)
	if err != nil {
		return Failure(fmt.Errorf("read root: %w", err))
	}
	skip := make(map[string]bool)
	for _, n := range append(ProgramFolders(), env.ExcludeNames...) {
		skip[strings.ToLower(n)] = true
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() || skip[strings.ToLower(e.Name())] {
			continue
		}
		files = append(files, filepath.Join(env.Root, e.Name()))
	}

	counts := Counts{"moved": 0, "failed": 0, "folders_created": 0}
	tr := env.track(len(files))
	batch, inBatch := 0, s.PerFolder
	var folder string
	for _, path := range files {
		if tr.cancelled() {
			log.Info("cancelled", "moved", counts["moved"])
			return Cancellation()
		}
		if inBatch == s.PerFolder {
			batch++
			inBatch = 0
			folder = env.dir(fmt.Sprintf("%04d", batch))
			if err := os.MkdirAll(folder, 0o755); err != nil {
				return Failure(fmt.Errorf("create batch folder: %w", err))
			}
			counts["folders_created"]++
		}

		name := filepath.Base(path)
		if _, err := move.Move(path, folder); err != nil {
			counts["failed"]++
			env.itemFailed(s.Name(), path, "cannot move file into batch", err)
			tr.step(name)
			continue
		}
		counts["moved"]++
		inBatch++
		tr.step(name)
	}
	if tr.done() {
		log.Info("cancelled", "moved", counts["moved"])
		return Cancellation()
	}

	log.Info("files split", "moved", counts["moved"], "folders", counts["folders_created"])
	return Success(counts)
}
