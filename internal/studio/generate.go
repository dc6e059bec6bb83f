package studio

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"artstudio/internal/logging"
	"artstudio/internal/metrics"
	"artstudio/internal/services"
	"artstudio/internal/session"
	"artstudio/internal/textutil"
)

// ResolveStyle returns the style to paint with: the configured default when
// empty, the canonical preset name when it matches one, or the free-form text.
func (s *Studio) ResolveStyle(style string) string {
	style = strings.TrimSpace(style)
	if style == "" {
		return s.cfg.Studio.DefaultStyle
	}
	if preset, ok := textutil.MatchOption(style, s.cfg.Studio.Styles); ok {
		return preset
	}
	return style
}

// Styles lists the configured style presets.
func (s *Studio) Styles() []string {
	return append([]string(nil), s.cfg.Studio.Styles...)
}

// Generate stylizes every captured frame and blocks until the batch ends.
func (s *Studio) Generate(ctx context.Context, id, style string) (*session.Session, error) {
	job, err := s.prepareGenerate(ctx, id, style)
	if err != nil {
		return nil, err
	}
	defer job.release()
	ctx = services.WithStage(services.WithSessionID(ctx, id), "generate")
	err = s.generate(ctx, job)
	return job.sess, err
}

// StartGenerate validates the request, marks the session generating, and
// runs the batch in the background.
func (s *Studio) StartGenerate(ctx context.Context, id, style string) (*session.Session, error) {
	job, err := s.prepareGenerate(ctx, id, style)
	if err != nil {
		return nil, err
	}
	snapshot := *job.sess
	s.runJob(id, "generate", job.release, func(jobCtx context.Context) {
		_ = s.generate(jobCtx, job)
	})
	return &snapshot, nil
}

type generateJob struct {
	sess    *session.Session
	release func()
	frames  []session.Frame
	style   string
}

func (s *Studio) prepareGenerate(ctx context.Context, id, style string) (*generateJob, error) {
	release, err := s.claim(id, "generating")
	if err != nil {
		return nil, err
	}
	sess, err := s.lookup(ctx, id)
	if err != nil {
		release()
		return nil, err
	}
	frames, err := s.store.Frames(ctx, id, session.KindCaptured)
	if err != nil {
		release()
		return nil, err
	}
	if len(frames) == 0 {
		release()
		msg := "capture or upload an image first"
		if sess.MediaType == session.MediaVideo {
			msg = "extract frames from the video first"
		}
		return nil, services.Wrap(services.ErrValidation, "generate", "frames", msg, nil)
	}
	style = s.ResolveStyle(style)
	sess.Style = style
	sess.Status = session.StatusGenerating
	sess.ErrorMessage = ""
	sess.NeedsReauth = false
	sess.ProgressMessage = paintingMessage(0, len(frames))
	sess.ProgressPercent = 0
	if err := s.store.Update(ctx, sess); err != nil {
		release()
		return nil, err
	}
	return &generateJob{sess: sess, release: release, frames: frames, style: style}, nil
}

func (s *Studio) generate(ctx context.Context, job *generateJob) error {
	sess := job.sess
	logger := s.loggerFor(ctx).With(logging.String(logging.FieldStyle, job.style))
	total := len(job.frames)
	started := time.Now()
	logger.Info("generation started",
		logging.Int(logging.FieldFrameCount, total),
		logging.String(logging.FieldEventType, "generation_started"),
	)

	stylized, err := s.stylizeAll(ctx, sess, job.frames, job.style)
	if err == nil {
		err = s.commit(ctx, sess, stylized, func() error {
			return s.store.ReplaceFrames(ctx, sess.ID, session.KindStylized, stylized)
		})
	}
	s.metrics.ObserveStage("generate", metrics.Outcome(err, services.NeedsReauth(err)), time.Since(started))
	if err != nil {
		s.generationFailed(ctx, logger, sess, err)
		return err
	}

	s.metrics.AddFrames(string(session.KindStylized), len(stylized))
	elapsed := time.Since(started)
	logger.Info("generation completed",
		logging.Int(logging.FieldFrameCount, total),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "generation_completed"),
	)
	if nerr := s.notifier.NotifyGenerationCompleted(ctx, sess.ID, job.style, total, elapsed); nerr != nil {
		logger.Warn("generation notification failed",
			logging.Error(nerr),
			logging.String(logging.FieldEventType, "notification_failed"),
		)
	}
	return nil
}

// stylizeAll sends each frame to the generator in order and stops at the
// first failure.
func (s *Studio) stylizeAll(ctx context.Context, sess *session.Session, frames []session.Frame, style string) ([]session.Frame, error) {
	if s.generator == nil {
		return nil, services.Wrap(services.ErrAuth, "generate", "gemini", "no API key configured", nil)
	}
	total := len(frames)
	out := make([]session.Frame, 0, total)
	for i, frame := range frames {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.setProgress(ctx, sess, paintingMessage(i+1, total), percent(i, total))
		frameCtx := services.WithFrameIndex(ctx, i)
		callStarted := time.Now()
		result, err := s.generator.ApplyStyle(frameCtx, frame, style)
		s.metrics.ObserveGeneration("style", metrics.Outcome(err, services.NeedsReauth(err)), time.Since(callStarted))
		if err != nil {
			return nil, fmt.Errorf("frame %d/%d: %w", i+1, total, err)
		}
		result.Index = i
		out = append(out, result)
		s.loggerFor(frameCtx).Debug("frame stylized",
			logging.Duration("elapsed", time.Since(callStarted)),
			logging.Int("bytes", len(result.Data)),
		)
	}
	return out, nil
}

// Refine applies follow-up instructions to stylized frame 0 and blocks until
// done.
func (s *Studio) Refine(ctx context.Context, id, instructions string) (*session.Session, error) {
	job, err := s.prepareRefine(ctx, id, instructions)
	if err != nil {
		return nil, err
	}
	defer job.release()
	ctx = services.WithStage(services.WithSessionID(ctx, id), "refine")
	err = s.refine(ctx, job)
	return job.sess, err
}

// StartRefine validates the request, marks the session refining, and runs
// the refinement in the background.
func (s *Studio) StartRefine(ctx context.Context, id, instructions string) (*session.Session, error) {
	job, err := s.prepareRefine(ctx, id, instructions)
	if err != nil {
		return nil, err
	}
	snapshot := *job.sess
	s.runJob(id, "refine", job.release, func(jobCtx context.Context) {
		_ = s.refine(jobCtx, job)
	})
	return &snapshot, nil
}

type refineJob struct {
	sess         *session.Session
	release      func()
	stylized     []session.Frame
	instructions string
}

func (s *Studio) prepareRefine(ctx context.Context, id, instructions string) (*refineJob, error) {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return nil, services.Wrap(services.ErrValidation, "refine", "instructions", "instructions are required", nil)
	}
	release, err := s.claim(id, "refining")
	if err != nil {
		return nil, err
	}
	sess, err := s.lookup(ctx, id)
	if err != nil {
		release()
		return nil, err
	}
	stylized, err := s.store.Frames(ctx, id, session.KindStylized)
	if err != nil {
		release()
		return nil, err
	}
	if len(stylized) == 0 {
		release()
		return nil, services.Wrap(services.ErrValidation, "refine", "frames", "generate artwork before refining it", nil)
	}
	sess.Status = session.StatusRefining
	sess.ErrorMessage = ""
	sess.NeedsReauth = false
	sess.ProgressMessage = "Refining artwork"
	sess.ProgressPercent = 0
	if err := s.store.Update(ctx, sess); err != nil {
		release()
		return nil, err
	}
	return &refineJob{sess: sess, release: release, stylized: stylized, instructions: instructions}, nil
}

func (s *Studio) refine(ctx context.Context, job *refineJob) error {
	sess := job.sess
	logger := s.loggerFor(ctx)
	started := time.Now()

	refined, err := s.refineFirst(ctx, job)
	if err == nil {
		frames := append([]session.Frame{refined}, job.stylized[1:]...)
		err = s.commit(ctx, sess, frames, func() error {
			if err := s.store.SetFrame(ctx, sess.ID, session.KindStylized, refined); err != nil {
				return err
			}
			sess.MediaType = session.MediaImage
			return nil
		})
	}
	s.metrics.ObserveStage("refine", metrics.Outcome(err, services.NeedsReauth(err)), time.Since(started))
	if err != nil {
		s.generationFailed(ctx, logger, sess, err)
		return err
	}
	logger.Info("artwork refined",
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "refine_completed"),
	)
	return nil
}

func (s *Studio) refineFirst(ctx context.Context, job *refineJob) (session.Frame, error) {
	if s.generator == nil {
		return session.Frame{}, services.Wrap(services.ErrAuth, "refine", "gemini", "no API key configured", nil)
	}
	callStarted := time.Now()
	result, err := s.generator.Refine(services.WithFrameIndex(ctx, 0), job.stylized[0], job.instructions)
	s.metrics.ObserveGeneration("refine", metrics.Outcome(err, services.NeedsReauth(err)), time.Since(callStarted))
	if err != nil {
		return session.Frame{}, err
	}
	result.Index = 0
	return result, nil
}

// commit publishes a new stylized sequence. The animation is rendered to a
// fresh file before store runs, so any failure leaves the previous frames and
// animation in place. On success the session is marked ready.
func (s *Studio) commit(ctx context.Context, sess *session.Session, stylized []session.Frame, store func() error) error {
	previous := sess.AnimationPath
	next := ""
	if len(stylized) > 1 {
		path, err := s.render(ctx, sess, stylized)
		if err != nil {
			return err
		}
		next = path
	}
	if err := store(); err != nil {
		removeFile(next)
		return err
	}
	sess.AnimationPath = next
	sess.StylizedCount = len(stylized)
	sess.Status = session.StatusReady
	sess.ProgressMessage = ""
	sess.ProgressPercent = 100
	if err := s.persist(ctx, sess); err != nil {
		return err
	}
	if previous != "" && previous != next {
		removeFile(previous)
	}
	return nil
}

func (s *Studio) render(ctx context.Context, sess *session.Session, frames []session.Frame) (string, error) {
	if s.renderer == nil {
		return "", services.Wrap(services.ErrConfiguration, "render", "animation", "animation rendering unavailable", nil)
	}
	sess.Status = session.StatusRendering
	s.setProgress(ctx, sess, "Compiling animation", 100)

	started := time.Now()
	dest := filepath.Join(s.cfg.RenderDir(), sess.ID+"-"+uuid.NewString()[:8]+".webm")
	err := s.renderer.Render(services.WithStage(ctx, "render"), frames, dest)
	s.metrics.ObserveStage("render", metrics.Outcome(err, false), time.Since(started))
	if err != nil {
		removeFile(dest)
		return "", err
	}
	return dest, nil
}

func (s *Studio) generationFailed(ctx context.Context, logger *slog.Logger, sess *session.Session, err error) {
	reauth := services.NeedsReauth(err)
	attrs := []logging.Attr{logging.Error(err), logging.Bool("reauth", reauth)}
	switch {
	case reauth:
		attrs = append(attrs, logging.String(logging.FieldErrorHint, "the API key was rejected; supply a new key"))
		logging.ErrorWithContext(logger, "generation failed", "generation_failed", attrs...)
	case services.IsClientError(err):
		// Blocked content or bad input; nothing for the operator to fix.
		logging.WarnWithContext(logger, "generation rejected", "generation_failed",
			append(attrs, logging.String(logging.FieldErrorHint, "see error_message on the session"))...)
	default:
		logging.ErrorWithContext(logger, "generation failed", "generation_failed", attrs...)
	}
	s.fail(ctx, sess, err)
	if nerr := s.notifier.NotifyGenerationFailed(context.WithoutCancel(ctx), sess.ID, err, reauth); nerr != nil {
		logging.WarnWithContext(logger, "failure notification failed", "notification_failed", logging.Error(nerr))
	}
}

func paintingMessage(current, total int) string {
	if total <= 1 {
		return "Painting"
	}
	if current < 1 {
		current = 1
	}
	return fmt.Sprintf("Painting frame %d/%d", current, total)
}
