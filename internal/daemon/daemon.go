package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"artstudio/internal/api"
	"artstudio/internal/config"
	"artstudio/internal/deps"
	"artstudio/internal/logging"
	"artstudio/internal/metrics"
	"artstudio/internal/notifications"
	"artstudio/internal/preflight"
	"artstudio/internal/session"
	"artstudio/internal/studio"
)

// defaultStuckGrace exceeds the longest gap between progress updates of a
// running job: one Gemini call including its retries.
const defaultStuckGrace = 15 * time.Minute

// Daemon owns the session store, the studio, and the HTTP API, and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   session.Store
	studio  *studio.Studio
	metrics *metrics.Recorder
	api     *apiServer

	lockPath string
	lock     *flock.Flock

	depsMu       sync.RWMutex
	dependencies []deps.Status

	retentionEvery time.Duration
	stuckGrace     time.Duration
	background     sync.WaitGroup

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	StorageDriver string
	SessionDBPath string
	LockFilePath  string
	APIAddress    string
	ActiveJobs    int
	SessionCounts map[string]int
	Dependencies  []deps.Status
}

// Option customizes the daemon.
type Option func(*Daemon)

// WithMetrics exposes recorder on /metrics.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(d *Daemon) { d.metrics = recorder }
}

// WithStuckGrace sets how long a processing session must sit untouched before
// Start marks it interrupted. CLI runs against the same store keep their
// sessions fresh, so they are not reset underneath.
func WithStuckGrace(grace time.Duration) Option {
	return func(d *Daemon) {
		if grace >= 0 {
			d.stuckGrace = grace
		}
	}
}

// WithCamera overrides how the daemon grabs a snapshot from its own camera.
func WithCamera(camera CameraFunc) Option {
	return func(d *Daemon) {
		if camera != nil {
			d.api.camera = camera
		}
	}
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store session.Store, st *studio.Studio, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || st == nil {
		return nil, errors.New("daemon requires config, store, and studio")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		studio:   st,
		lockPath: lockPath,
		lock:     flock.New(lockPath),

		retentionEvery: time.Hour,
		stuckGrace:     defaultStuckGrace,
	}
	d.api = newAPIServer(cfg, d, logger)
	for _, opt := range opts {
		opt(d)
	}
	d.api.routes()
	return d, nil
}

// Start acquires the daemon lock, recovers interrupted sessions, and starts
// serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another artstudio daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	if recovered, err := d.store.ResetStuck(d.ctx, d.stuckGrace); err != nil {
		d.logger.Warn("failed to recover interrupted sessions",
			logging.Error(err),
			logging.String(logging.FieldEventType, "reset_stuck_failed"),
		)
	} else if recovered > 0 {
		d.logger.Info("marked interrupted sessions as failed",
			logging.Int64("count", recovered),
			logging.String(logging.FieldEventType, "sessions_recovered"),
		)
	}

	d.refreshDependencies(d.ctx)
	for _, result := range preflight.Failed(preflight.RunAll(d.ctx, d.cfg)) {
		d.logger.Warn("preflight check failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
		)
	}

	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.background.Add(1)
	go d.retentionLoop(d.ctx)
	d.logger.Info("artstudio daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop shuts down the API, interrupts running jobs, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.background.Wait()
	d.api.stop()
	d.studio.Close()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("artstudio daemon stopped")
}

// retentionLoop cleans orphaned media once at startup and, when
// studio.retention_days is set, prunes stale sessions on every tick.
func (d *Daemon) retentionLoop(ctx context.Context) {
	defer d.background.Done()
	maxAge := d.cfg.Retention()
	d.prune(ctx, maxAge)
	if maxAge <= 0 {
		return
	}
	ticker := time.NewTicker(d.retentionEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.prune(ctx, maxAge)
		}
	}
}

func (d *Daemon) prune(ctx context.Context, maxAge time.Duration) {
	if _, err := d.studio.Prune(ctx, maxAge); err != nil && ctx.Err() == nil {
		d.logger.Warn("retention pass failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "retention_failed"),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
		)
	}
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Handler returns the HTTP handler serving the UI and the API.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Address returns the bound API address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		StorageDriver: d.cfg.Storage.Driver,
		LockFilePath:  d.lockPath,
		APIAddress:    d.api.address(),
		ActiveJobs:    d.studio.ActiveJobs(),
		Dependencies:  d.cachedDependencies(),
	}
	if status.StorageDriver == "sqlite" {
		status.SessionDBPath = d.cfg.SessionDBPath()
	}
	if sessions, err := d.store.List(ctx); err == nil {
		status.SessionCounts = api.CountByStatus(sessions)
	} else {
		d.logger.Warn("failed to count sessions", logging.Error(err))
	}
	return status
}

func (d *Daemon) refreshDependencies(ctx context.Context) {
	statuses := preflight.CheckSystemDeps(ctx, d.cfg)
	for _, missing := range deps.Missing(statuses) {
		d.logger.Warn("dependency unavailable",
			logging.String("dependency", missing.Name),
			logging.String("detail", missing.Detail),
			logging.String(logging.FieldEventType, "dependency_missing"),
			logging.String(logging.FieldErrorHint, missing.Description),
		)
	}
	d.depsMu.Lock()
	d.dependencies = statuses
	d.depsMu.Unlock()
}

func (d *Daemon) cachedDependencies() []deps.Status {
	d.depsMu.RLock()
	defer d.depsMu.RUnlock()
	return append([]deps.Status(nil), d.dependencies...)
}
