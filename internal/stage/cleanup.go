package stage

import (
	"context"
	"errors"
	"os"
)

// Cleanup deletes the trash, backup and quarantine folders.
type Cleanup struct{}

func (Cleanup) Name() string  { return "cleanup" }
func (Cleanup) Title() string { return "Final cleanup" }

func (c Cleanup) Run(ctx context.Context, env *Env) Result {
	log := env.logger().With("stage", c.Name())
	counts := Counts{"folders_removed": 0}

	if info, err := os.Stat(env.Root); err != nil {
		return Failure(err)
	} else if !info.IsDir() {
		return Failure(errors.New("root is not a directory"))
	}

	targets := ProgramFolders()
	tr := env.track(len(targets))
	for _, name := range targets {
		if tr.cancelled() {
			return Cancellation()
		}
		path := env.dir(name)
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			tr.step(name)
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Error("cannot remove folder", "path", path, "error", err)
			if env.Report != nil {
				env.Report(path, c.Name(), err.Error())
			}
			tr.step(name)
			continue
		}
		counts["folders_removed"]++
		log.Debug("folder removed", "path", path)
		tr.step(name)
	}
	if tr.done() {
		return Cancellation()
	}

	log.Info("cleanup finished", "folders_removed", counts["folders_removed"])
	return Success(counts)
}
