package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// hashBlockSize is the read size used when streaming file content.
const hashBlockSize = 64 * 1024

// ErrEmptyFile is returned for zero-length files. They have no meaningful
// digest and are never treated as duplicates.
var ErrEmptyFile = errors.New("zero-length file")

// Hasher computes content digests: SHA-256 over the full file, encoded as
// lowercase hex. It reuses one read buffer and is not safe for concurrent
// use.
type Hasher struct {
	buf []byte
}

// NewHasher returns a Hasher with its block buffer allocated.
func NewHasher() *Hasher {
	return &Hasher{buf: make([]byte, hashBlockSize)}
}

// Sum streams path through SHA-256. Any error means the file has no digest.
func (h *Hasher) Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	d := sha256.New()
	n, err := io.CopyBuffer(d, struct{ io.Reader }{f}, h.buf)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	if n == 0 {
		return "", ErrEmptyFile
	}
	return hex.EncodeToString(d.Sum(nil)), nil
}

// Hash is a convenience wrapper around a fresh Hasher.
func Hash(path string) (string, error) {
	return NewHasher().Sum(path)
}
