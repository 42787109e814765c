// Package disk reports free space on the filesystem holding a path.
package disk

import (
	"errors"
	"fmt"
)

// ErrInsufficientSpace is returned by Require when the free space is below
// the requested floor.
var ErrInsufficientSpace = errors.New("insufficient free disk space")

// Free returns the bytes available to the current user on the filesystem
// containing path.
func Free(path string) (uint64, error) {
	return free(path)
}

// Require returns ErrInsufficientSpace when fewer than floor bytes are free
// at path. Probe failures are returned as-is so callers can decide whether
// an unknown amount of space is acceptable.
func Require(path string, floor uint64) error {
	avail, err := Free(path)
	if err != nil {
		return fmt.Errorf("probe free space at %q: %w", path, err)
	}
	if avail < floor {
		return fmt.Errorf("%w: %d MiB free at %q, need %d MiB",
			ErrInsufficientSpace, avail>>20, path, floor>>20)
	}
	return nil
}
