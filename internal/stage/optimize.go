package stage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eargollo/orgest/internal/media"
	"github.com/eargollo/orgest/internal/mediatool"
	"github.com/eargollo/orgest/internal/move"
	"github.com/eargollo/orgest/internal/scan"
)

// tempPrefix marks in-progress video output. Leftovers are never picked up
// as input.
const tempPrefix = "temp_"

var videoExts = []string{".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm", ".m4v"}

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tiff", ".tif"}

// Optimize backs every image and video up into the backup folder and then
// re-encodes it in place: images are capped in size and stripped of
// metadata, videos become H.264/AAC mp4. Files that cannot be processed
// are moved to the quarantine folder.
type Optimize struct{}

func (Optimize) Name() string  { return "optimize" }
func (Optimize) Title() string { return "Optimize media" }

func (o Optimize) Run(ctx context.Context, env *Env) Result {
	log := env.logger().With("stage", o.Name())

	imagesOK := env.Images != nil && env.Images.Available()
	tool, toolErr := env.findTool(ctx)
	videosOK := toolErr == nil

	switch {
	case !imagesOK && !videosOK:
		return Failure(fmt.Errorf("%w: %v", ErrNoMediaTools, toolErr))
	case !imagesOK:
		log.Warn("image codec unavailable, optimizing videos only")
	case !videosOK:
		log.Warn("transcoder unavailable, optimizing images only", "error", toolErr)
	}
	if err := env.requireSpace(); err != nil {
		return Failure(err)
	}

	var exts []string
	if imagesOK {
		exts = append(exts, imageExts...)
	}
	if videosOK {
		exts = append(exts, videoExts...)
	}
	notTemp := func(f scan.FileTask) bool { return !strings.HasPrefix(filepath.Base(f.Path), tempPrefix) }
	files, err := scan.Walk(env.Root, env.exclusions(), scan.And(scan.MatchExtensions(exts...), notTemp), env.reporter(o.Name()))
	if err != nil {
		return Failure(err)
	}

	isVideo := make(map[string]bool, len(videoExts))
	for _, e := range videoExts {
		isVideo[e] = true
	}

	counts := Counts{"optimized": 0, "images": 0, "videos": 0, "skipped": 0, "quarantined": 0}
	backup := env.dir(BackupDir)

	tr := env.track(len(files))
	for _, f := range files {
		if tr.cancelled() {
			log.Info("cancelled", "optimized", counts["optimized"])
			return Cancellation()
		}
		name := filepath.Base(f.Path)

		if _, err := move.Copy(f.Path, backup); err != nil {
			o.quarantine(env, f.Path, fmt.Errorf("backup: %w", err), counts)
			tr.step(name)
			continue
		}

		if isVideo[media.Ext(f.Path)] {
			final, err := reencodeVideo(ctx, tool, f.Path)
			if err != nil {
				logStderr(log, err)
				o.quarantine(env, f.Path, err, counts)
				tr.step(name)
				continue
			}
			counts["videos"]++
			counts["optimized"]++
			log.Debug("video optimized", "path", f.Path, "output", final)
			tr.step(name)
			continue
		}

		if !env.Images.Supports(f.Path) {
			counts["skipped"]++
			tr.step(name)
			continue
		}
		rep, err := env.Images.OptimizeFile(f.Path)
		if err != nil {
			o.quarantine(env, f.Path, err, counts)
			tr.step(name)
			continue
		}
		if rep.Skipped {
			counts["skipped"]++
		} else {
			counts["images"]++
			counts["optimized"]++
			log.Debug("image optimized", "path", f.Path,
				"width", rep.Width, "height", rep.Height, "resized", rep.Resized,
				"bytes_before", rep.BytesBefore, "bytes_after", rep.BytesAfter)
		}
		tr.step(name)
	}
	if tr.done() {
		log.Info("cancelled", "optimized", counts["optimized"])
		return Cancellation()
	}

	log.Info("optimization finished",
		"optimized", counts["optimized"], "quarantined", counts["quarantined"], "skipped", counts["skipped"])
	return Success(counts)
}

// quarantine records the failure and moves the untouched original into
// the quarantine folder.
func (o Optimize) quarantine(env *Env, path string, cause error, counts Counts) {
	env.itemFailed(o.Name(), path, "optimization failed, quarantining", cause)
	if _, err := move.Move(path, env.dir(QuarantineDir)); err != nil {
		env.logger().Error("cannot quarantine file", "stage", o.Name(), "path", path, "error", err)
		return
	}
	counts["quarantined"]++
}

// reencodeVideo transcodes path into temp_<stem>.mp4 beside it and then
// replaces the original with the result. It returns the final path. On
// failure the temp output is removed and path is left as it was.
func reencodeVideo(ctx context.Context, tool Transcoder, path string) (string, error) {
	dir := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	tmp, err := move.Reserve(dir, tempPrefix+stem+".mp4")
	if err != nil {
		return "", err
	}
	if err := tool.Run(ctx, mediatool.Reencode, path, tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}

	if media.Ext(path) == ".mp4" {
		if err := os.Rename(tmp, path); err != nil {
			os.Remove(tmp)
			return "", fmt.Errorf("replace original: %w", err)
		}
		return path, nil
	}

	final, err := move.Reserve(dir, stem+".mp4")
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		os.Remove(final)
		return "", fmt.Errorf("promote output: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return final, fmt.Errorf("remove original: %w", err)
	}
	return final, nil
}
