package studio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"artstudio/internal/fileutil"
	"artstudio/internal/logging"
	"artstudio/internal/metrics"
	"artstudio/internal/services"
	"artstudio/internal/session"
	"artstudio/internal/textutil"
)

// NewSession creates an empty idle session.
func (s *Studio) NewSession(ctx context.Context) (*session.Session, error) {
	sess, err := s.store.Create(ctx)
	if err != nil {
		return nil, err
	}
	s.loggerFor(services.WithSessionID(ctx, sess.ID)).Info("session created",
		logging.String(logging.FieldEventType, "session_created"),
	)
	return sess, nil
}

// Get returns a session by id.
func (s *Studio) Get(ctx context.Context, id string) (*session.Session, error) {
	return s.lookup(ctx, id)
}

// List returns sessions, optionally filtered by status.
func (s *Studio) List(ctx context.Context, statuses ...session.Status) ([]*session.Session, error) {
	return s.store.List(ctx, statuses...)
}

// Frames returns one frame sequence of a session.
func (s *Studio) Frames(ctx context.Context, id string, kind session.Kind) ([]session.Frame, error) {
	if _, err := s.lookup(ctx, id); err != nil {
		return nil, err
	}
	return s.store.Frames(ctx, id, kind)
}

// Frame returns one frame of a sequence.
func (s *Studio) Frame(ctx context.Context, id string, kind session.Kind, index int) (session.Frame, error) {
	frame, err := s.store.Frame(ctx, id, kind, index)
	if errors.Is(err, session.ErrNotFound) {
		return session.Frame{}, services.Wrap(services.ErrNotFound, "frames", "get", fmt.Sprintf("%s frame %d of %s", kind, index, id), err)
	}
	return frame, err
}

// Reset clears both frame sequences, the source media, the animation, and
// any error, returning the session to idle.
func (s *Studio) Reset(ctx context.Context, id string) (*session.Session, error) {
	release, err := s.claim(id, "resetting")
	if err != nil {
		return nil, err
	}
	defer release()
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.reset(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Studio) reset(ctx context.Context, sess *session.Session) error {
	if err := s.store.ReplaceCaptured(ctx, sess.ID, nil); err != nil {
		return err
	}
	removeFile(sess.SourcePath)
	removeFile(sess.AnimationPath)
	sess.MediaType = session.MediaNone
	sess.SourceName = ""
	sess.SourcePath = ""
	sess.SourceMime = ""
	sess.Status = session.StatusIdle
	sess.ProgressMessage = ""
	sess.ProgressPercent = 0
	sess.ErrorMessage = ""
	sess.NeedsReauth = false
	sess.AnimationPath = ""
	sess.CapturedCount = 0
	sess.StylizedCount = 0
	return s.store.Update(ctx, sess)
}

// Delete removes a session along with its files. A session whose stored
// status shows a running job is refused even when this process holds no
// claim on it, since another process sharing the store may be driving it.
func (s *Studio) Delete(ctx context.Context, id string) error {
	release, err := s.claim(id, "deleting")
	if err != nil {
		return err
	}
	defer release()
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if sess.Status.IsProcessing() {
		return services.Wrap(services.ErrBusy, "delete", "session", fmt.Sprintf("session %s is %s", id, sess.Status), nil)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	removeFile(sess.SourcePath)
	removeFile(sess.AnimationPath)
	return nil
}

// Clear removes every session. It refuses while any job is running.
func (s *Studio) Clear(ctx context.Context) (int64, error) {
	if n := s.ActiveJobs(); n > 0 {
		return 0, services.Wrap(services.ErrBusy, "clear", "sessions", fmt.Sprintf("%d sessions busy", n), nil)
	}
	sessions, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		if sess.Status.IsProcessing() {
			return 0, services.Wrap(services.ErrBusy, "clear", "sessions", fmt.Sprintf("session %s is %s", sess.ID, sess.Status), nil)
		}
	}
	removed, err := s.store.Clear(ctx)
	if err != nil {
		return 0, err
	}
	for _, sess := range sessions {
		removeFile(sess.SourcePath)
		removeFile(sess.AnimationPath)
	}
	return removed, nil
}

// UploadMedia replaces the session's media with an uploaded file. Images
// become the single captured frame; videos are stored on disk for later
// extraction. Any other type is rejected after the session is reset.
func (s *Studio) UploadMedia(ctx context.Context, id, name, mimeType string, r io.Reader) (*session.Session, error) {
	release, err := s.claim(id, "uploading")
	if err != nil {
		return nil, err
	}
	defer release()
	ctx = services.WithStage(services.WithSessionID(ctx, id), "upload")

	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.reset(ctx, sess); err != nil {
		return nil, err
	}

	buffered := bufio.NewReader(r)
	mimeType = detectMime(name, mimeType, buffered)
	limit := int64(s.cfg.Studio.MaxUploadMB) * 1024 * 1024

	switch {
	case strings.HasPrefix(mimeType, "image/"):
		data, err := readLimited(buffered, limit)
		if err != nil {
			return nil, err
		}
		frame := session.Frame{Index: 0, MimeType: mimeType, Data: data}
		if err := s.store.ReplaceFrames(ctx, id, session.KindCaptured, []session.Frame{frame}); err != nil {
			return nil, err
		}
		sess.MediaType = session.MediaImage
		sess.CapturedCount = 1
	case strings.HasPrefix(mimeType, "video/"):
		dest := filepath.Join(s.cfg.UploadDir(), uploadFileName(id, name, mimeType))
		size, _, err := fileutil.WriteStream(dest, buffered, limit)
		if err != nil {
			if errors.Is(err, fileutil.ErrTooLarge) {
				return nil, services.Wrap(services.ErrValidation, "upload", "video", "", err)
			}
			return nil, fmt.Errorf("store upload: %w", err)
		}
		if size == 0 {
			removeFile(dest)
			return nil, services.Wrap(services.ErrValidation, "upload", "video", "empty file", nil)
		}
		sess.MediaType = session.MediaVideo
		sess.SourcePath = dest
	default:
		return nil, services.Wrap(services.ErrValidation, "upload", "media", fmt.Sprintf("unsupported media type %q", mimeType), nil)
	}

	sess.SourceName = strings.TrimSpace(name)
	sess.SourceMime = mimeType
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.metrics.AddFrames(string(session.KindCaptured), sess.CapturedCount)
	s.loggerFor(ctx).Info("media uploaded",
		logging.String("media_type", string(sess.MediaType)),
		logging.String("mime", mimeType),
		logging.String(logging.FieldEventType, "media_uploaded"),
	)
	return sess, nil
}

// CapturePhoto replaces the session's media with a single camera snapshot.
func (s *Studio) CapturePhoto(ctx context.Context, id string, frame session.Frame) (*session.Session, error) {
	if len(frame.Data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "capture", "photo", "empty snapshot", nil)
	}
	if frame.MimeType == "" {
		frame.MimeType = "image/jpeg"
	}
	if !strings.HasPrefix(frame.MimeType, "image/") {
		return nil, services.Wrap(services.ErrValidation, "capture", "photo", fmt.Sprintf("snapshot is %q, not an image", frame.MimeType), nil)
	}
	release, err := s.claim(id, "capturing")
	if err != nil {
		return nil, err
	}
	defer release()
	ctx = services.WithStage(services.WithSessionID(ctx, id), "capture")

	sess, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.reset(ctx, sess); err != nil {
		return nil, err
	}
	frame.Index = 0
	if err := s.store.ReplaceFrames(ctx, id, session.KindCaptured, []session.Frame{frame}); err != nil {
		return nil, err
	}
	sess.MediaType = session.MediaImage
	sess.SourceName = "camera"
	sess.SourceMime = frame.MimeType
	sess.CapturedCount = 1
	if err := s.store.Update(ctx, sess); err != nil {
		return nil, err
	}
	s.metrics.AddFrames(string(session.KindCaptured), 1)
	s.loggerFor(ctx).Info("photo captured", logging.String(logging.FieldEventType, "photo_captured"))
	return sess, nil
}

// ExtractFrames samples n frames from the session's uploaded video and
// blocks until done. n is clamped to [1, max_frame_count].
func (s *Studio) ExtractFrames(ctx context.Context, id string, n int) (*session.Session, error) {
	sess, release, n, err := s.prepareExtract(ctx, id, n)
	if err != nil {
		return nil, err
	}
	defer release()
	ctx = services.WithStage(services.WithSessionID(ctx, id), "extract")
	if err := s.extract(ctx, sess, n); err != nil {
		return sess, err
	}
	return sess, nil
}

// StartExtract validates the request, marks the session extracting, and
// runs the extraction in the background.
func (s *Studio) StartExtract(ctx context.Context, id string, n int) (*session.Session, error) {
	sess, release, n, err := s.prepareExtract(ctx, id, n)
	if err != nil {
		return nil, err
	}
	snapshot := *sess
	s.runJob(id, "extract", release, func(jobCtx context.Context) {
		_ = s.extract(jobCtx, sess, n)
	})
	return &snapshot, nil
}

func (s *Studio) prepareExtract(ctx context.Context, id string, n int) (*session.Session, func(), int, error) {
	release, err := s.claim(id, "extracting")
	if err != nil {
		return nil, nil, 0, err
	}
	sess, err := s.lookup(ctx, id)
	if err != nil {
		release()
		return nil, nil, 0, err
	}
	if sess.MediaType != session.MediaVideo || sess.SourcePath == "" {
		release()
		return nil, nil, 0, services.Wrap(services.ErrValidation, "extract", "frames", "session has no video to extract from", nil)
	}
	if s.extractor == nil {
		release()
		return nil, nil, 0, services.Wrap(services.ErrConfiguration, "extract", "frames", "frame extraction unavailable", nil)
	}
	n = s.cfg.ClampFrameCount(n)
	sess.Status = session.StatusExtracting
	sess.ErrorMessage = ""
	sess.NeedsReauth = false
	sess.ProgressMessage = "Extracting frames"
	sess.ProgressPercent = 0
	if err := s.store.Update(ctx, sess); err != nil {
		release()
		return nil, nil, 0, err
	}
	return sess, release, n, nil
}

func (s *Studio) extract(ctx context.Context, sess *session.Session, n int) error {
	logger := s.loggerFor(ctx)
	started := time.Now()
	frames, err := s.extractor.Extract(ctx, sess.SourcePath, n, func(done, total int) {
		s.setProgress(ctx, sess, fmt.Sprintf("Extracting frame %d/%d", done, total), percent(done, total))
	})
	if err == nil && len(frames) != n {
		err = services.Wrap(services.ErrExternalTool, "extract", "frames", fmt.Sprintf("expected %d frames, got %d", n, len(frames)), nil)
	}
	if err == nil {
		err = s.store.ReplaceCaptured(ctx, sess.ID, frames)
	}
	s.metrics.ObserveStage("extract", metrics.Outcome(err, false), time.Since(started))
	if err != nil {
		logger.Error("frame extraction failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "extract_failed"),
			logging.String(logging.FieldErrorHint, "check the upload is a readable video and ffmpeg is installed"),
		)
		s.fail(ctx, sess, err)
		return err
	}

	removeFile(sess.AnimationPath)
	sess.AnimationPath = ""
	sess.CapturedCount = len(frames)
	sess.StylizedCount = 0
	sess.Status = session.StatusIdle
	sess.ProgressMessage = ""
	sess.ProgressPercent = 0
	if err := s.persist(ctx, sess); err != nil {
		return err
	}
	s.metrics.AddFrames(string(session.KindCaptured), len(frames))
	logger.Info("frames extracted",
		logging.Int(logging.FieldFrameCount, len(frames)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "frames_extracted"),
	)
	return nil
}

func (s *Studio) lookup(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.store.Get(ctx, id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, services.Wrap(services.ErrNotFound, "session", "get", id, err)
	}
	return sess, err
}

func detectMime(name, declared string, r *bufio.Reader) string {
	declared = strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(declared); err == nil {
		declared = parsed
	}
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
			return parsed
		}
	}
	head, _ := r.Peek(512)
	if len(head) == 0 {
		return declared
	}
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	return sniffed
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, services.Wrap(services.ErrValidation, "upload", "image", fmt.Sprintf("exceeds %d bytes", limit), nil)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrValidation, "upload", "image", "empty file", nil)
	}
	return data, nil
}

func uploadFileName(id, name, mimeType string) string {
	base := filepath.Base(strings.TrimSpace(name))
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if ext == "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			ext = exts[0]
		} else {
			ext = ".bin"
		}
	}
	return id + "-" + textutil.Slug(stem, "source") + ext
}

func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

func removeFile(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	_ = os.Remove(path)
}
