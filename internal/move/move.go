// Package move relocates files without ever overwriting an existing one.
// When the destination name is taken, a numeric suffix is inserted before
// the extension: a.txt, a_1.txt, a_2.txt, ...
package move

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
)

// ErrNoFreeName is returned when every suffix up to maxSuffix is taken.
var ErrNoFreeName = errors.New("no free destination name")

const maxSuffix = 100000

// Candidate returns the n-th candidate name for base: base itself for n=0,
// otherwise the stem with _n inserted before the extension. Names that
// start with a dot and have no other dot keep the whole name as stem.
func Candidate(base string, n int) string {
	if n == 0 {
		return base
	}
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	if stem == "" {
		stem, ext = base, ""
	}
	return stem + "_" + strconv.Itoa(n) + ext
}

// Reserve creates an empty placeholder for the first free candidate of base
// inside dir and returns its path. The caller replaces the placeholder
// (by rename or by writing into it) or removes it on failure. dir is
// created when missing.
func Reserve(dir, base string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %q: %w", dir, err)
	}
	for n := 0; n < maxSuffix; n++ {
		p := filepath.Join(dir, Candidate(base, n))
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			f.Close()
			return p, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("reserve %q: %w", p, err)
		}
	}
	return "", fmt.Errorf("%s in %q: %w", base, dir, ErrNoFreeName)
}

// Move moves src into dstDir keeping its base name, adding a numeric suffix
// when the name is taken. It returns the final path. Moving a file onto
// its own location is a no-op.
func Move(src, dstDir string) (string, error) {
	return MoveAs(src, dstDir, filepath.Base(src))
}

// MoveAs is Move with an explicit destination base name.
func MoveAs(src, dstDir, base string) (string, error) {
	if sameFile(filepath.Join(dstDir, base), src) {
		return src, nil
	}
	if _, err := os.Lstat(src); err != nil {
		return "", err
	}
	dst, err := Reserve(dstDir, base)
	if err != nil {
		return "", err
	}
	if err := moveFile(src, dst); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("move %q to %q: %w", src, dst, err)
	}
	return dst, nil
}

// Copy copies src into dstDir with the collision policy, preserving the
// permission bits and modification time. The source is left untouched.
func Copy(src, dstDir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	dst, err := Reserve(dstDir, filepath.Base(src))
	if err != nil {
		return "", err
	}
	if err := copyContents(src, dst, info); err != nil {
		os.Remove(dst)
		return "", fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	return dst, nil
}

// moveFile tries os.Rename first; falls back to copy+delete on cross-device errors.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var le *os.LinkError
	if errors.As(err, &le) && errors.Is(le.Err, syscall.EXDEV) {
		return copyThenDelete(src, dst)
	}
	return err
}

// copyThenDelete copies src to dst then removes src. dst is cleaned up on error.
func copyThenDelete(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := copyContents(src, dst, info); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

// copyContents writes src's bytes into dst (truncating it) and applies
// info's mode and mtime.
func copyContents(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Chmod(info.Mode().Perm()); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

func sameFile(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
