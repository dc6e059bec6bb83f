package fileutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned when a stream exceeds the allowed size.
var ErrTooLarge = errors.New("file exceeds size limit")

// CopyFile streams src to dst with default permissions (0o644).
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, _, err = WriteStream(dst, in, 0)
	return err
}

// WriteStream copies r into dst through a temp file in the same directory and
// renames it into place, so readers never observe a partial file. A positive
// limit caps the number of bytes accepted. Returns the byte count and the
// hex SHA256 of the content.
func WriteStream(dst string, r io.Reader, limit int64) (int64, string, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		cleanup()
		return 0, "", err
	}
	if limit > 0 && written > limit {
		cleanup()
		return 0, "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}
	if err := tmp.Chmod(0o644); err != nil {
		cleanup()
		return 0, "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return 0, "", fmt.Errorf("rename into place: %w", err)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

// WriteFileAtomic writes data to path via WriteStream.
func WriteFileAtomic(path string, data []byte) error {
	_, _, err := WriteStream(path, bytes.NewReader(data), 0)
	return err
}
