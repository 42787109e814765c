package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eargollo/orgest/internal/media"
	"github.com/eargollo/orgest/internal/mediatool"
	"github.com/eargollo/orgest/internal/move"
	"github.com/eargollo/orgest/internal/scan"
)

// conversion describes how one legacy extension is transcoded.
type conversion struct {
	op  mediatool.Operation
	ext string
}

var conversions = map[string]conversion{
	".webp": {mediatool.StillFrame, ".png"},
	".ts":   {mediatool.Repackage, ".mp4"},
	".m4s":  {mediatool.Repackage, ".mp4"},
}

// Convert transcodes legacy formats next to the original and moves the
// original to trash once the tool succeeds. It looks in the unprocessed
// category folder when one exists, otherwise in the whole root.
type Convert struct{}

func (Convert) Name() string  { return "convert" }
func (Convert) Title() string { return "Convert formats" }

func (c Convert) Run(ctx context.Context, env *Env) Result {
	log := env.logger().With("stage", c.Name())

	if err := env.requireSpace(); err != nil {
		return Failure(err)
	}
	tool, err := env.findTool(ctx)
	if err != nil {
		return Failure(err)
	}

	base := env.Root
	if info, err := os.Stat(filepath.Join(env.Root, media.Unprocessed.Folder())); err == nil && info.IsDir() {
		base = filepath.Join(env.Root, media.Unprocessed.Folder())
	}

	exts := make([]string, 0, len(conversions))
	for ext := range conversions {
		exts = append(exts, ext)
	}
	files, err := scan.Walk(base, env.exclusions(), scan.MatchExtensions(exts...), env.reporter(c.Name()))
	if err != nil {
		return Failure(err)
	}

	counts := Counts{"converted": 0, "failed": 0}
	trash := env.dir(TrashDir)

	tr := env.track(len(files))
	for _, f := range files {
		if tr.cancelled() {
			log.Info("cancelled", "converted", counts["converted"])
			return Cancellation()
		}
		name := filepath.Base(f.Path)

		if err := convertOne(ctx, tool, f); err != nil {
			counts["failed"]++
			env.itemFailed(c.Name(), f.Path, "conversion failed", err)
			logStderr(log, err)
			tr.step(name)
			continue
		}
		if _, err := move.Move(f.Path, trash); err != nil {
			env.itemFailed(c.Name(), f.Path, "converted but original could not be moved to trash", err)
		}
		counts["converted"]++
		tr.step(name)
	}
	if tr.done() {
		log.Info("cancelled", "converted", counts["converted"])
		return Cancellation()
	}

	log.Info("conversion finished", "converted", counts["converted"], "failed", counts["failed"])
	return Success(counts)
}

// convertOne writes the converted sibling of f. On failure no output is
// left behind and f is untouched.
func convertOne(ctx context.Context, tool Transcoder, f scan.FileTask) error {
	conv, ok := conversions[media.Ext(f.Path)]
	if !ok {
		return fmt.Errorf("no conversion for %s", media.Ext(f.Path))
	}
	if f.Size == 0 {
		return errors.New("source is empty")
	}

	dir := filepath.Dir(f.Path)
	stem := strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
	dst, err := move.Reserve(dir, stem+conv.ext)
	if err != nil {
		return err
	}
	if err := tool.Run(ctx, conv.op, f.Path, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return nil
}
