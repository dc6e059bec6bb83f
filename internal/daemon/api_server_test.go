package daemon

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"artstudio/internal/api"
	"artstudio/internal/config"
	"artstudio/internal/metrics"
	"artstudio/internal/services"
	"artstudio/internal/services/gemini"
	"artstudio/internal/session"
	"artstudio/internal/studio"
	"artstudio/internal/testsupport"
)

type stubGenerator struct {
	t     testing.TB
	mu    sync.Mutex
	err   error
	block chan struct{}
}

func (g *stubGenerator) ApplyStyle(ctx context.Context, frame session.Frame, _ string) (session.Frame, error) {
	g.mu.Lock()
	err, block := g.err, g.block
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return session.Frame{}, ctx.Err()
		}
	}
	if err != nil {
		return session.Frame{}, err
	}
	return session.Frame{Index: frame.Index, MimeType: "image/png", Data: testsupport.PNG(g.t, 20, 10)}, nil
}

func (g *stubGenerator) Refine(_ context.Context, frame session.Frame, _ string) (session.Frame, error) {
	return session.Frame{Index: frame.Index, MimeType: "image/png", Data: testsupport.PNG(g.t, 20, 10)}, nil
}

type testServer struct {
	cfg     *config.Config
	gen     *stubGenerator
	daemon  *Daemon
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) *testServer {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithGeminiKey(""))
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}
	store := testsupport.MustOpenStore(t, cfg)
	gen := &stubGenerator{t: t}
	recorder := metrics.New()
	st := studio.New(cfg, store, gen, studio.WithMetrics(recorder))
	t.Cleanup(st.Close)
	d, err := New(cfg, store, st, nil, append([]Option{WithMetrics(recorder)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testServer{cfg: cfg, gen: gen, daemon: d, handler: d.Handler()}
}

func (s *testServer) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	return s.do(t, method, path, body, map[string]string{"Content-Type": "application/json"})
}

func (s *testServer) createSession(t *testing.T) api.Session {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/sessions", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session: %d %s", w.Code, w.Body.String())
	}
	return decodeSession(t, w)
}

func (s *testServer) waitForStatus(t *testing.T, id string, want session.Status) api.Session {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		w := s.do(t, http.MethodGet, "/api/sessions/"+id, nil, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("get session: %d %s", w.Code, w.Body.String())
		}
		sess := decodeSession(t, w)
		if sess.Status == string(want) {
			return sess
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s stuck in %q waiting for %q", id, sess.Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func decodeSession(t *testing.T, w *httptest.ResponseRecorder) api.Session {
	t.Helper()
	var resp api.SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v (%s)", err, w.Body.String())
	}
	return resp.Session
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestSessionImageWorkflow(t *testing.T) {
	srv := newTestServer(t, nil)
	sess := srv.createSession(t)

	png := testsupport.PNG(t, 16, 9)
	w := srv.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/media?name=photo.png", bytes.NewReader(png),
		map[string]string{"Content-Type": "image/png"})
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	uploaded := decodeSession(t, w)
	if uploaded.MediaType != "image" || uploaded.CapturedCount != 1 {
		t.Fatalf("unexpected session after upload: %+v", uploaded)
	}

	w = srv.do(t, http.MethodGet, uploaded.CapturedURLs[0], nil, nil)
	if w.Code != http.StatusOK || !bytes.Equal(w.Body.Bytes(), png) {
		t.Fatalf("captured frame not served back: %d", w.Code)
	}

	w = srv.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", api.GenerateRequest{Style: "oil painting"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}
	ready := srv.waitForStatus(t, sess.ID, session.StatusReady)
	if ready.Style != "Oil Painting" {
		t.Fatalf("expected preset style resolution, got %q", ready.Style)
	}
	if ready.ResultKind != api.ResultImage || ready.StylizedCount != 1 {
		t.Fatalf("unexpected result: %+v", ready)
	}

	w = srv.do(t, http.MethodGet, ready.ResultURL+"?download=1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("result: %d %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Disposition"); !strings.HasPrefix(got, `attachment; filename="art-`) || !strings.HasSuffix(got, `.png"`) {
		t.Fatalf("unexpected disposition: %q", got)
	}

	w = srv.do(t, http.MethodGet, ready.ExportURL, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export: %d %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected a pdf, got %q", w.Header().Get("Content-Type"))
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "art-studio-export-") {
		t.Fatalf("unexpected pdf disposition: %q", got)
	}

	w = srv.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/refine", api.RefineRequest{Instructions: "warmer light"})
	if w.Code != http.StatusAccepted {
		t.Fatalf("refine: %d %s", w.Code, w.Body.String())
	}
	srv.waitForStatus(t, sess.ID, session.StatusReady)

	w = srv.do(t, http.MethodDelete, "/api/sessions/"+sess.ID, nil, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	w = srv.do(t, http.MethodGet, "/api/sessions/"+sess.ID, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestUploadMultipart(t *testing.T) {
	srv := newTestServer(t, nil)
	sess := srv.createSession(t)

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("note", "ignored"); err != nil {
		t.Fatal(err)
	}
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="shot.jpg"`}
	header["Content-Type"] = []string{"image/jpeg"}
	part, err := form.CreatePart(header)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write(testsupport.JPEG(t, 8, 8)); err != nil {
		t.Fatal(err)
	}
	if err := form.Close(); err != nil {
		t.Fatal(err)
	}

	w := srv.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/media", &body,
		map[string]string{"Content-Type": form.FormDataContentType()})
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d %s", w.Code, w.Body.String())
	}
	got := decodeSession(t, w)
	if got.SourceName != "shot.jpg" || got.SourceMime != "image/jpeg" || got.CapturedCount != 1 {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestUploadRejectsUnsupportedMedia(t *testing.T) {
	srv := newTestServer(t, nil)
	sess := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/media?name=notes.txt", strings.NewReader("hello"),
		map[string]string{"Content-Type": "text/plain"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", w.Code, w.Body.String())
	}
	if msg := decodeError(t, w).Error; !strings.Contains(msg, "unsupported media type") {
		t.Fatalf("unexpected error: %q", msg)
	}
}

func TestCaptureDataURLAndHostCamera(t *testing.T) {
	jpeg := testsupport.JPEG(t, 8, 8)
	var cameraCalls int
	srv := newTestServer(t, nil, WithCamera(func(context.Context) (session.Frame, error) {
		cameraCalls++
		return session.Frame{MimeType: "image/jpeg", Data: jpeg}, nil
	}))
	sess := srv.createSession(t)

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
	w := srv.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/capture", api.CaptureRequest{Image: dataURL})
	if w.Code != http.StatusOK {
		t.Fatalf("capture: %d %s", w.Code, w.Body.String())
	}
	if got := decodeSession(t, w); got.CapturedCount != 1 || got.MediaType != "image" {
		t.Fatalf("unexpected session: %+v", got)
	}

	w = srv.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/capture?source=camera", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("host camera capture: %d %s", w.Code, w.Body.String())
	}
	if cameraCalls != 1 {
		t.Fatalf("expected one camera call, got %d", cameraCalls)
	}

	w = srv.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/capture", api.CaptureRequest{Image: "not a data url"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad data url, got %d", w.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t, nil)
	sess := srv.createSession(t)
	base := "/api/sessions/" + sess.ID

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"generate without frames", http.MethodPost, base + "/generate", api.GenerateRequest{}, http.StatusBadRequest},
		{"extract without video", http.MethodPost, base + "/frames", api.ExtractRequest{Count: 3}, http.StatusBadRequest},
		{"blank refine", http.MethodPost, base + "/refine", api.RefineRequest{Instructions: "  "}, http.StatusBadRequest},
		{"refine bad json", http.MethodPost, base + "/refine", map[string]int{"unknown": 1}, http.StatusBadRequest},
		{"unknown session", http.MethodGet, "/api/sessions/00000000-0000-0000-0000-000000000000", nil, http.StatusNotFound},
		{"result before generation", http.MethodGet, base + "/result", nil, http.StatusNotFound},
		{"pdf before generation", http.MethodGet, base + "/export.pdf", nil, http.StatusNotFound},
		{"bad frame kind", http.MethodGet, base + "/frames/sketch/0", nil, http.StatusNotFound},
		{"missing frame", http.MethodGet, base + "/frames/captured/4", nil, http.StatusNotFound},
		{"unknown api route", http.MethodGet, "/api/nope", nil, http.StatusNotFound},
		{"bad status filter", http.MethodGet, "/api/sessions?status=sleeping", nil, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := srv.doJSON(t, tc.method, tc.path, tc.body)
			if w.Code != tc.want {
				t.Fatalf("got %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected JSON error, got %q", ct)
			}
		})
	}
}

func TestBusySessionReturnsConflict(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.gen.block = make(chan struct{})
	defer close(srv.gen.block)
	sess := srv.createSession(t)

	w := srv.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/media", bytes.NewReader(testsupport.PNG(t, 4, 4)),
		map[string]string{"Content-Type": "image/png"})
	if w.Code != http.StatusOK {
		t.Fatalf("upload: %d", w.Code)
	}
	w = srv.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}
	if got := decodeSession(t, w); !got.Processing || got.Progress.Message != "Painting" {
		t.Fatalf("expected processing snapshot, got %+v", got)
	}

	w = srv.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 while busy, got %d %s", w.Code, w.Body.String())
	}
	w = srv.do(t, http.MethodDelete, "/api/sessions", nil, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected clear to be refused while a job runs, got %d", w.Code)
	}
}

func TestReauthFailureSurfacesOnSession(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.gen.err = fmt.Errorf("gemini style: %w", &gemini.APIError{StatusCode: 404, Message: "Requested entity was not found."})
	sess := srv.createSession(t)

	srv.do(t, http.MethodPost, "/api/sessions/"+sess.ID+"/media", bytes.NewReader(testsupport.PNG(t, 4, 4)),
		map[string]string{"Content-Type": "image/png"})
	w := srv.doJSON(t, http.MethodPost, "/api/sessions/"+sess.ID+"/generate", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("generate: %d", w.Code)
	}
	failed := srv.waitForStatus(t, sess.ID, session.StatusFailed)
	if !failed.NeedsReauth {
		t.Fatalf("expected needsReauth, got %+v", failed)
	}
	if failed.StylizedCount != 0 || failed.ResultKind != api.ResultNone {
		t.Fatalf("expected no result after failure, got %+v", failed)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.Wrap(services.ErrAuth, "generate", "gemini", "", nil), http.StatusUnauthorized},
		{gemini.ErrMissingAPIKey, http.StatusUnauthorized},
		{services.Wrap(services.ErrValidation, "", "", "bad", nil), http.StatusBadRequest},
		{services.Wrap(services.ErrNotFound, "", "", "", nil), http.StatusNotFound},
		{session.ErrNotFound, http.StatusNotFound},
		{services.Wrap(services.ErrBusy, "", "", "", nil), http.StatusConflict},
		{services.Wrap(services.ErrExternalTool, "capture", "ffmpeg", "", nil), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&gemini.APIError{StatusCode: http.StatusTooManyRequests}, http.StatusServiceUnavailable},
		{&gemini.APIError{StatusCode: http.StatusGatewayTimeout}, http.StatusGatewayTimeout},
		{&gemini.BlockedError{Reason: "SAFETY"}, http.StatusBadRequest},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := statusForError(tc.err); got != tc.want {
			t.Errorf("statusForError(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestWriteFailureSetsReauthFlag(t *testing.T) {
	srv := newTestServer(t, nil)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions/x/generate", nil)
	srv.daemon.api.writeFailure(w, req, gemini.ErrMissingAPIKey)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if resp := decodeError(t, w); !resp.Reauth {
		t.Fatalf("expected reauth flag, got %+v", resp)
	}
}

func TestAuthTokenProtectsAPIButNotUI(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) { cfg.Paths.APIToken = "secret" })

	w := srv.do(t, http.MethodGet, "/api/styles", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error != "unauthorized" || resp.Reauth {
		t.Fatalf("unexpected body: %+v", resp)
	}

	w = srv.do(t, http.MethodGet, "/api/styles", nil, map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}

	w = srv.do(t, http.MethodGet, "/api/styles", nil, map[string]string{"Authorization": "Bearer secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
	var styles api.StylesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &styles); err != nil {
		t.Fatal(err)
	}
	if styles.Default != srv.cfg.Studio.DefaultStyle || len(styles.Styles) == 0 {
		t.Fatalf("unexpected styles: %+v", styles)
	}

	w = srv.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<title>Art Studio</title>") {
		t.Fatalf("expected public UI, got %d", w.Code)
	}
	w = srv.do(t, http.MethodGet, "/app.js", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected app.js, got %d", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(t, http.MethodGet, "/api/config", nil, map[string]string{requestIDHeader: "req-123"})
	if got := w.Header().Get(requestIDHeader); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	w = srv.do(t, http.MethodGet, "/api/config", nil, nil)
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", got)
	}
	var cfg api.Config
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.DefaultFrameCount != srv.cfg.Studio.DefaultFrameCount || cfg.PreviewIntervalMS != 200 {
		t.Fatalf("unexpected config payload: %+v", cfg)
	}
}

func TestStatusAndMetricsEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.createSession(t)

	w := srv.do(t, http.MethodGet, "/api/status", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Running || status.GeminiKeyLoaded || status.StorageDriver != "sqlite" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.SessionCounts["idle"] != 1 {
		t.Fatalf("unexpected session counts: %v", status.SessionCounts)
	}

	w = srv.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "artstudio_active_jobs") {
		t.Fatalf("expected artstudio metrics in exposition")
	}
}

func TestMetricsDisabled(t *testing.T) {
	srv := newTestServer(t, func(cfg *config.Config) { cfg.Metrics.Enabled = false })
	w := srv.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code == http.StatusOK && strings.Contains(w.Body.String(), "artstudio_") {
		t.Fatal("expected metrics endpoint to be absent")
	}
}
