package studio

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"artstudio/internal/logging"
	"artstudio/internal/services"
	"artstudio/internal/staging"
)

// Uploads and renders are written before the session row that points at
// them, so fresh files are left alone.
const orphanGrace = 15 * time.Minute

// PruneResult summarizes a retention pass.
type PruneResult struct {
	Sessions int
	Files    int
}

// Prune deletes sessions untouched for longer than olderThan and removes
// media files no remaining session references. olderThan <= 0 only cleans
// orphaned files.
func (s *Studio) Prune(ctx context.Context, olderThan time.Duration) (PruneResult, error) {
	var result PruneResult
	logger := s.loggerFor(ctx).With(logging.String(logging.FieldEventType, "retention"))

	sessions, err := s.store.List(ctx)
	if err != nil {
		return result, err
	}
	if olderThan > 0 {
		cutoff := time.Now().Add(-olderThan)
		for _, sess := range sessions {
			if sess.Status.IsProcessing() || !sess.UpdatedAt.Before(cutoff) {
				continue
			}
			if err := s.Delete(ctx, sess.ID); err != nil {
				if errors.Is(err, services.ErrBusy) || errors.Is(err, services.ErrNotFound) {
					continue
				}
				return result, err
			}
			result.Sessions++
		}
		if result.Sessions > 0 {
			if sessions, err = s.store.List(ctx); err != nil {
				return result, err
			}
		}
	}

	referenced := make(map[string]struct{}, len(sessions)*2)
	for _, sess := range sessions {
		for _, path := range []string{sess.SourcePath, sess.AnimationPath} {
			if path != "" {
				referenced[filepath.Clean(path)] = struct{}{}
			}
		}
	}
	for _, dir := range []string{s.cfg.UploadDir(), s.cfg.RenderDir()} {
		cleaned := staging.CleanOrphaned(ctx, dir, referenced, orphanGrace, s.logger)
		result.Files += len(cleaned.Removed)
	}

	if result.Sessions > 0 || result.Files > 0 {
		logger.Info("retention pass complete",
			logging.Int("sessions_removed", result.Sessions),
			logging.Int("files_removed", result.Files),
		)
	}
	return result, ctx.Err()
}
