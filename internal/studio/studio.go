package studio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"artstudio/internal/config"
	"artstudio/internal/logging"
	"artstudio/internal/metrics"
	"artstudio/internal/notifications"
	"artstudio/internal/services"
	"artstudio/internal/session"
)

// Generator performs the remote image transformations.
type Generator interface {
	ApplyStyle(ctx context.Context, frame session.Frame, style string) (session.Frame, error)
	Refine(ctx context.Context, frame session.Frame, instructions string) (session.Frame, error)
}

// FrameExtractor samples stills from a video file.
type FrameExtractor interface {
	Extract(ctx context.Context, path string, n int, progress func(done, total int)) ([]session.Frame, error)
}

// AnimationRenderer composes stylized frames into a video file.
type AnimationRenderer interface {
	Render(ctx context.Context, frames []session.Frame, dest string) error
}

// Studio coordinates sessions and the work performed on them.
type Studio struct {
	cfg       *config.Config
	store     session.Store
	generator Generator
	extractor FrameExtractor
	renderer  AnimationRenderer
	notifier  notifications.Service
	metrics   *metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	claims map[string]string

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures optional Studio collaborators.
type Option func(*Studio)

// WithExtractor sets the video frame extractor.
func WithExtractor(extractor FrameExtractor) Option {
	return func(s *Studio) { s.extractor = extractor }
}

// WithRenderer sets the animation renderer.
func WithRenderer(renderer AnimationRenderer) Option {
	return func(s *Studio) { s.renderer = renderer }
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(notifier notifications.Service) Option {
	return func(s *Studio) { s.notifier = notifier }
}

// WithMetrics attaches a Prometheus recorder.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(s *Studio) { s.metrics = recorder }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Studio) { s.logger = logger }
}

// WithClock overrides time.Now, used for export file names.
func WithClock(now func() time.Time) Option {
	return func(s *Studio) { s.now = now }
}

// New constructs a Studio. generator may be nil when no API key is configured;
// generation then fails with an authorization error.
func New(cfg *config.Config, store session.Store, generator Generator, opts ...Option) *Studio {
	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Studio{
		cfg:       cfg,
		store:     store,
		generator: generator,
		now:       time.Now,
		claims:    make(map[string]string),
		baseCtx:   baseCtx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = notifications.NewService(cfg)
	}
	s.logger = logging.NewComponentLogger(s.logger, "studio")
	return s
}

// Config returns the configuration the studio was built with.
func (s *Studio) Config() *config.Config {
	return s.cfg
}

// Close cancels running jobs and waits for them to record their outcome.
func (s *Studio) Close() {
	s.cancel()
	s.wg.Wait()
}

// ActiveJobs returns the number of sessions currently claimed.
func (s *Studio) ActiveJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claims)
}

// claim marks a session busy for op. The returned release must be called
// exactly once.
func (s *Studio) claim(id, op string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if running, busy := s.claims[id]; busy {
		return nil, services.Wrap(services.ErrBusy, op, "claim", fmt.Sprintf("session %s is %s", id, running), nil)
	}
	s.claims[id] = op
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.claims, id)
			s.mu.Unlock()
		})
	}, nil
}

// runJob runs fn in the background under the studio lifetime context. The
// claim is released when fn returns.
func (s *Studio) runJob(id, stage string, release func(), fn func(ctx context.Context)) {
	s.wg.Add(1)
	s.metrics.JobStarted()
	go func() {
		defer s.wg.Done()
		defer s.metrics.JobFinished()
		defer release()
		ctx := services.WithStage(services.WithSessionID(s.baseCtx, id), stage)
		fn(ctx)
	}()
}

func (s *Studio) loggerFor(ctx context.Context) *slog.Logger {
	return logging.WithContext(ctx, s.logger)
}

// persist writes sess with a context that survives cancellation, so shutdown
// still records the final state of an interrupted job.
func (s *Studio) persist(ctx context.Context, sess *session.Session) error {
	return s.store.Update(context.WithoutCancel(ctx), sess)
}

func (s *Studio) setProgress(ctx context.Context, sess *session.Session, message string, percent float64) {
	sess.ProgressMessage = message
	sess.ProgressPercent = percent
	if err := s.persist(ctx, sess); err != nil {
		s.loggerFor(ctx).Warn("progress update failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "progress_persist_failed"),
		)
	}
}

func (s *Studio) fail(ctx context.Context, sess *session.Session, err error) {
	sess.Status = session.StatusFailed
	sess.ProgressMessage = ""
	sess.ProgressPercent = 0
	sess.ErrorMessage = errorMessage(ctx, err)
	sess.NeedsReauth = services.NeedsReauth(err)
	if perr := s.persist(ctx, sess); perr != nil {
		s.loggerFor(ctx).Error("record failure",
			logging.Error(perr),
			logging.String(logging.FieldEventType, "failure_persist_failed"),
		)
	}
}

func errorMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return session.InterruptedMessage
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
