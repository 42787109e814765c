package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/eargollo/orgest/internal/media"
)

// FileTask is a regular file found by Walk. It is produced fresh by every
// walk and never cached.
type FileTask struct {
	Path     string
	Size     int64
	MTime    time.Time
	Category media.Category
}

// ErrorReporter records a per-file error: the walker and the stages call
// it for every item they skip, and the job runner persists the event.
type ErrorReporter func(path, stage, errMsg string)

// Discard is an ErrorReporter that drops everything.
func Discard(path, stage, errMsg string) {}

// Exclusions names directories the walker never descends into.
type Exclusions struct {
	names map[string]struct{}
	paths map[string]struct{}
}

// NewExclusions excludes every directory whose base name matches one of
// names, case-insensitively, at any depth.
func NewExclusions(names ...string) Exclusions {
	e := Exclusions{names: map[string]struct{}{}, paths: map[string]struct{}{}}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			e.names[strings.ToLower(n)] = struct{}{}
		}
	}
	return e
}

// WithPaths returns a copy of e that also excludes the given absolute
// directory paths.
func (e Exclusions) WithPaths(paths ...string) Exclusions {
	out := Exclusions{names: e.names, paths: make(map[string]struct{}, len(e.paths)+len(paths))}
	for p := range e.paths {
		out.paths[p] = struct{}{}
	}
	for _, p := range paths {
		out.paths[filepath.Clean(p)] = struct{}{}
	}
	return out
}

// Excluded reports whether the directory at path should be pruned.
func (e Exclusions) Excluded(path string) bool {
	if _, ok := e.paths[filepath.Clean(path)]; ok {
		return true
	}
	_, ok := e.names[strings.ToLower(filepath.Base(path))]
	return ok
}

// Matcher decides whether a file found by Walk is returned.
type Matcher func(FileTask) bool

// MatchAll accepts every file.
func MatchAll(FileTask) bool { return true }

// MatchExtensions accepts files whose extension is one of exts.
func MatchExtensions(exts ...string) Matcher {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[media.NormalizeExt(e)] = true
	}
	return func(f FileTask) bool { return set[media.Ext(f.Path)] }
}

// MatchNested accepts files that do not sit directly under root.
func MatchNested(root string) Matcher {
	root = filepath.Clean(root)
	return func(f FileTask) bool { return filepath.Dir(f.Path) != root }
}

// MatchTopLevel accepts files that sit directly under root.
func MatchTopLevel(root string) Matcher {
	root = filepath.Clean(root)
	return func(f FileTask) bool { return filepath.Dir(f.Path) == root }
}

// And accepts a file only when every matcher does.
func And(ms ...Matcher) Matcher {
	return func(f FileTask) bool {
		for _, m := range ms {
			if !m(f) {
				return false
			}
		}
		return true
	}
}

// Walk returns every regular file under root accepted by match, in lexical
// order, skipping excluded directories. Symlinks are never followed.
// Unreadable entries are passed to report and skipped; only an unusable
// root is an error.
func Walk(root string, excl Exclusions, match Matcher, report ErrorReporter) ([]FileTask, error) {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root %q is not a directory", root)
	}
	if match == nil {
		match = MatchAll
	}
	if report == nil {
		report = Discard
	}

	var out []FileTask
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			report(path, "walk", err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path != root && excl.Excluded(path) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 || !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			report(path, "walk", err.Error())
			return nil
		}
		task := FileTask{
			Path:     path,
			Size:     fi.Size(),
			MTime:    fi.ModTime(),
			Category: media.Classify(path),
		}
		if match(task) {
			out = append(out, task)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", root, err)
	}
	return out, nil
}

// WalkDeepestFirst is Walk with the result ordered by descending directory
// depth. Files at equal depth keep their lexical order.
func WalkDeepestFirst(root string, excl Exclusions, match Matcher, report ErrorReporter) ([]FileTask, error) {
	files, err := Walk(root, excl, match, report)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool {
		return depth(files[i].Path) > depth(files[j].Path)
	})
	return files, nil
}

// Dirs returns every non-excluded directory below root, deepest first.
// root itself is not included.
func Dirs(root string, excl Exclusions, report ErrorReporter) ([]string, error) {
	root = filepath.Clean(root)
	if report == nil {
		report = Discard
	}
	var dirs []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			report(path, "walk", err.Error())
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if excl.Excluded(path) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", root, err)
	}
	sort.SliceStable(dirs, func(i, j int) bool { return depth(dirs[i]) > depth(dirs[j]) })
	return dirs, nil
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(filepath.Clean(path)), "/")
}
