package stage

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/eargollo/orgest/internal/move"
	"github.com/eargollo/orgest/internal/scan"
)

// Dedup moves every file whose content matches an earlier file (in walk
// order) into the trash folder. The first file seen for each digest stays.
type Dedup struct{}

func (Dedup) Name() string  { return "dedup" }
func (Dedup) Title() string { return "Remove duplicates" }

func (d Dedup) Run(ctx context.Context, env *Env) Result {
	log := env.logger().With("stage", d.Name())

	files, err := scan.Walk(env.Root, env.exclusions(), scan.MatchAll, env.reporter(d.Name()))
	if err != nil {
		return Failure(err)
	}

	// Only sizes shared by two or more files can collide.
	candidates := make(map[string]bool)
	for _, f := range scan.SharedSizes(files) {
		candidates[f.Path] = true
	}

	counts := Counts{"files_scanned": 0, "duplicates_moved": 0, "hash_errors": 0}
	trash := env.dir(TrashDir)
	hasher := scan.NewHasher()
	keepers := make(map[string]string) // digest → first path

	tr := env.track(len(files))
	for _, f := range files {
		if tr.cancelled() {
			log.Info("cancelled", "scanned", counts["files_scanned"])
			return Cancellation()
		}
		counts["files_scanned"]++
		name := filepath.Base(f.Path)

		if !candidates[f.Path] {
			tr.step(name)
			continue
		}

		digest, err := hasher.Sum(f.Path)
		if err != nil {
			counts["hash_errors"]++
			env.itemFailed(d.Name(), f.Path, "cannot hash file", err)
			tr.step(name)
			continue
		}

		keeper, seen := keepers[digest]
		if !seen {
			keepers[digest] = f.Path
			tr.step(name)
			continue
		}

		dst, err := move.Move(f.Path, trash)
		if err != nil {
			env.itemFailed(d.Name(), f.Path, "cannot move duplicate", fmt.Errorf("duplicate of %s: %w", keeper, err))
			tr.step(name)
			continue
		}
		counts["duplicates_moved"]++
		log.Debug("duplicate moved", "path", f.Path, "keeper", keeper, "to", dst)
		tr.step(name)
	}
	if tr.done() {
		log.Info("cancelled", "scanned", counts["files_scanned"])
		return Cancellation()
	}

	log.Info("duplicates removed", "moved", counts["duplicates_moved"], "scanned", counts["files_scanned"])
	return Success(counts)
}
