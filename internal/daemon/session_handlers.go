package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"artstudio/internal/api"
	"artstudio/internal/services"
	"artstudio/internal/session"
)

// maxJSONBody bounds request bodies that carry JSON rather than media.
const maxJSONBody = 1 << 20

func (s *apiServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	var statuses []session.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := session.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	sessions, err := s.studio.List(r.Context(), statuses...)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.SessionListResponse{Sessions: api.FromSessions(sessions)})
}

func (s *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.studio.NewSession(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Location", api.SessionPath(sess.ID))
	s.writeJSON(w, http.StatusCreated, api.SessionResponse{Session: api.FromSession(sess)})
}

func (s *apiServer) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	removed, err := s.studio.Clear(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClearResponse{Removed: removed})
}

func (s *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.studio.Get(r.Context(), r.PathValue("id"))
	s.writeSession(w, r, http.StatusOK, sess, err)
}

func (s *apiServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.studio.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.studio.Reset(r.Context(), r.PathValue("id"))
	s.writeSession(w, r, http.StatusOK, sess, err)
}

// handleUploadMedia accepts either a multipart form with a "file" part or a
// raw body whose Content-Type is the media type.
func (s *apiServer) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	limit := int64(s.cfg.Studio.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxJSONBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		sess, err := s.studio.UploadMedia(r.Context(), id, name, mediaType, r.Body)
		s.writeSession(w, r, http.StatusOK, sess, err)
		return
	}

	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid multipart body: %v", err))
		return
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "upload", "multipart", "", err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}
		sess, err := s.studio.UploadMedia(r.Context(), id, part.FileName(), part.Header.Get("Content-Type"), part)
		_ = part.Close()
		s.writeSession(w, r, http.StatusOK, sess, err)
		return
	}
	s.writeError(w, http.StatusBadRequest, `multipart body has no "file" part`)
}

// handleCapture stores a camera snapshot. Browsers post {"image": dataURL};
// ?source=camera grabs a frame from the daemon host's own camera instead.
func (s *apiServer) handleCapture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var frame session.Frame

	if strings.EqualFold(r.URL.Query().Get("source"), "camera") {
		captured, err := s.camera(r.Context())
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		frame = captured
	} else {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if strings.HasPrefix(mediaType, "image/") {
			limit := int64(s.cfg.Studio.MaxUploadMB) << 20
			data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
			if err != nil {
				s.writeFailure(w, r, err)
				return
			}
			frame = session.Frame{MimeType: mediaType, Data: data}
		} else {
			var req api.CaptureRequest
			if err := s.decodeBody(w, r, &req, int64(s.cfg.Studio.MaxUploadMB)<<21); err != nil {
				s.writeFailure(w, r, err)
				return
			}
			decoded, err := session.FrameFromDataURL(req.Image)
			if err != nil {
				s.writeFailure(w, r, services.Wrap(services.ErrValidation, "capture", "decode", "", err))
				return
			}
			frame = decoded
		}
	}

	sess, err := s.studio.CapturePhoto(r.Context(), id, frame)
	s.writeSession(w, r, http.StatusOK, sess, err)
}

func (s *apiServer) handleExtractFrames(w http.ResponseWriter, r *http.Request) {
	var req api.ExtractRequest
	if err := s.decodeOptionalBody(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if value := r.URL.Query().Get("count"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid count %q", value))
			return
		}
		req.Count = n
	}
	sess, err := s.studio.StartExtract(r.Context(), r.PathValue("id"), req.Count)
	s.writeSession(w, r, http.StatusAccepted, sess, err)
}

func (s *apiServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	kind, err := session.ParseKind(r.PathValue("kind"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("invalid frame index %q", r.PathValue("index")))
		return
	}
	frame, err := s.studio.Frame(r.Context(), r.PathValue("id"), kind, index)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", frame.MimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	_, _ = w.Write(frame.Data)
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateRequest
	if err := s.decodeOptionalBody(w, r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	sess, err := s.studio.StartGenerate(r.Context(), r.PathValue("id"), req.Style)
	s.writeSession(w, r, http.StatusAccepted, sess, err)
}

func (s *apiServer) handleRefine(w http.ResponseWriter, r *http.Request) {
	var req api.RefineRequest
	if err := s.decodeBody(w, r, &req, maxJSONBody); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	sess, err := s.studio.StartRefine(r.Context(), r.PathValue("id"), req.Instructions)
	s.writeSession(w, r, http.StatusAccepted, sess, err)
}

// handleResult serves the single stylized image or the animation. With
// ?download=1 the response is marked as an attachment.
func (s *apiServer) handleResult(w http.ResponseWriter, r *http.Request) {
	artifact, err := s.studio.Result(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", artifact.MimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Disposition", contentDisposition(r, artifact.FileName))

	if !artifact.IsAnimation() {
		http.ServeContent(w, r, artifact.FileName, time.Time{}, bytes.NewReader(artifact.Data))
		return
	}
	file, err := os.Open(artifact.Path)
	if err != nil {
		s.writeFailure(w, r, services.Wrap(services.ErrNotFound, "export", "animation", "", err))
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	http.ServeContent(w, r, artifact.FileName, info.ModTime(), file)
}

func (s *apiServer) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := s.studio.ExportPDF(r.Context(), r.PathValue("id"), &buf)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *apiServer) writeSession(w http.ResponseWriter, r *http.Request, status int, sess *session.Session, err error) {
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, status, api.SessionResponse{Session: api.FromSession(sess)})
}

func (s *apiServer) decodeBody(w http.ResponseWriter, r *http.Request, dst any, limit int64) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return services.Wrap(services.ErrValidation, "api", "decode", "invalid JSON body", err)
	}
	return nil
}

// decodeOptionalBody treats an empty body as the zero request.
func (s *apiServer) decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := s.decodeBody(w, r, dst, maxJSONBody)
	if err != nil && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func contentDisposition(r *http.Request, name string) string {
	disposition := "inline"
	if value := r.URL.Query().Get("download"); value == "1" || strings.EqualFold(value, "true") {
		disposition = "attachment"
	}
	return fmt.Sprintf("%s; filename=%q", disposition, name)
}
