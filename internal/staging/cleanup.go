package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"artstudio/internal/logging"
)

// CleanResult contains the outcome of a cleanup pass.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a file path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanOrphaned removes files in dir that no session references. Files
// younger than grace are kept so a render or upload that has not been
// committed yet survives.
func CleanOrphaned(ctx context.Context, dir string, referenced map[string]struct{}, grace time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return result
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: dir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-grace)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, ok := referenced[filepath.Clean(path)]; ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logger.Warn("failed to remove orphaned media file",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldEventType, "media_cleanup_failed"),
					logging.String(logging.FieldErrorHint, "check data_dir permissions"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed orphaned media file",
				logging.String("path", path),
				logging.Duration("age", time.Since(info.ModTime())),
				logging.String(logging.FieldEventType, "media_cleanup"),
			)
		}
	}
	return result
}

// Usage summarizes the files kept in one media directory.
type Usage struct {
	Dir   string
	Files int
	Bytes int64
}

// DirUsage counts the regular files in dir and their total size. A missing
// directory reports zero usage.
func DirUsage(dir string) (Usage, error) {
	usage := Usage{Dir: dir}
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return usage, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return usage, nil
		}
		return usage, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		usage.Files++
		usage.Bytes += info.Size()
	}
	return usage, nil
}
