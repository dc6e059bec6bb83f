package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"artstudio/internal/api"
	"artstudio/internal/config"
	"artstudio/internal/logging"
	"artstudio/internal/media"
	"artstudio/internal/services"
	"artstudio/internal/session"
	"artstudio/internal/studio"
)

// CameraFunc grabs one snapshot from a camera attached to the daemon host.
type CameraFunc func(ctx context.Context) (session.Frame, error)

type apiServer struct {
	cfg     *config.Config
	bind    string
	token   string
	logger  *slog.Logger
	daemon  *Daemon
	studio  *studio.Studio
	camera  CameraFunc
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		cfg:    cfg,
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		token:  cfg.Paths.APIToken,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		studio: d.studio,
	}
	srv.camera = func(ctx context.Context) (session.Frame, error) {
		return media.CapturePhoto(ctx, cfg.FFmpegBinary(), cfg.Studio.CameraDevice)
	}
	return srv
}

// routes registers every endpoint. API routes require the bearer token when
// one is configured; the static UI does not.
func (s *apiServer) routes() {
	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authMiddleware(s.token, h))
	}

	mux.Handle("GET /", uiHandler())

	handle("GET /api/status", s.handleStatus)
	handle("GET /api/config", s.handleConfig)
	handle("GET /api/styles", s.handleStyles)
	handle("GET /api/sessions", s.handleListSessions)
	handle("POST /api/sessions", s.handleCreateSession)
	handle("DELETE /api/sessions", s.handleClearSessions)
	handle("GET /api/sessions/{id}", s.handleGetSession)
	handle("DELETE /api/sessions/{id}", s.handleDeleteSession)
	handle("POST /api/sessions/{id}/reset", s.handleResetSession)
	handle("POST /api/sessions/{id}/media", s.handleUploadMedia)
	handle("POST /api/sessions/{id}/capture", s.handleCapture)
	handle("POST /api/sessions/{id}/frames", s.handleExtractFrames)
	handle("GET /api/sessions/{id}/frames/{kind}/{index}", s.handleFrame)
	handle("POST /api/sessions/{id}/generate", s.handleGenerate)
	handle("POST /api/sessions/{id}/refine", s.handleRefine)
	handle("GET /api/sessions/{id}/result", s.handleResult)
	handle("GET /api/sessions/{id}/export.pdf", s.handleExportPDF)
	handle("GET /api/", s.handleUnknown)

	if recorder := s.daemon.metrics; recorder != nil && s.cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", authMiddleware(s.token, recorder.Handler().ServeHTTP))
	}

	s.handler = requestMiddleware(s.logger, mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api listen: paths.api_bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		// Uploads stream straight to disk; only bound them loosely.
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:         status.Running,
		PID:             status.PID,
		StorageDriver:   status.StorageDriver,
		SessionDBPath:   status.SessionDBPath,
		LockFilePath:    status.LockFilePath,
		GeminiModel:     s.cfg.Gemini.Model,
		GeminiKeyLoaded: s.cfg.HasGeminiKey(),
		ActiveJobs:      status.ActiveJobs,
		SessionCounts:   status.SessionCounts,
		Dependencies:    deps,
	})
}

func (s *apiServer) handleConfig(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.FromConfig(s.cfg))
}

func (s *apiServer) handleStyles(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, api.StylesResponse{
		Default: s.cfg.Studio.DefaultStyle,
		Styles:  s.studio.Styles(),
	})
}

func (s *apiServer) handleUnknown(w http.ResponseWriter, _ *http.Request) {
	s.writeError(w, http.StatusNotFound, "not found")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// writeFailure maps a studio error onto an HTTP status. Rejected API keys
// answer 401 with reauth set so the UI can ask for a new key.
func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.logger).Error("request failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "request_failed"),
		)
	}
	s.writeJSON(w, status, api.ErrorResponse{Error: err.Error(), Reauth: services.NeedsReauth(err)})
}

func statusForError(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case services.NeedsReauth(err):
		return http.StatusUnauthorized
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, services.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, services.ErrTransient):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrExternalTool):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
