package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a session or frame does not exist.
var ErrNotFound = errors.New("session not found")

// Status represents a session lifecycle state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusExtracting Status = "extracting"
	StatusGenerating Status = "generating"
	StatusRefining   Status = "refining"
	StatusRendering  Status = "rendering"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

var processingStatuses = []Status{
	StatusExtracting,
	StatusGenerating,
	StatusRefining,
	StatusRendering,
}

// ProcessingStatuses returns the statuses that indicate a running job.
func ProcessingStatuses() []Status {
	return append([]Status(nil), processingStatuses...)
}

// IsProcessing reports whether a job is running for the session.
func (s Status) IsProcessing() bool {
	for _, candidate := range processingStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// ParseStatus converts a string into a Status.
func ParseStatus(value string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(value)))
	switch status {
	case StatusIdle, StatusExtracting, StatusGenerating, StatusRefining, StatusRendering, StatusReady, StatusFailed:
		return status, true
	default:
		return "", false
	}
}

// MediaType is the kind of source the session holds.
type MediaType string

const (
	MediaNone  MediaType = "none"
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Kind selects one of the two frame sequences of a session.
type Kind string

const (
	KindCaptured Kind = "captured"
	KindStylized Kind = "stylized"
)

// ParseKind validates a frame sequence name.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindCaptured:
		return KindCaptured, nil
	case KindStylized:
		return KindStylized, nil
	default:
		return "", fmt.Errorf("unknown frame kind %q", value)
	}
}

// Frame is one still image held by a session.
type Frame struct {
	Index    int
	MimeType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the frame payload.
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// URL returns the frame as a data URL suitable for an <img> src.
func (f Frame) URL() string {
	return "data:" + f.MimeType + ";base64," + f.Base64()
}

// Extension returns the file extension matching the frame MIME type.
func (f Frame) Extension() string {
	switch strings.ToLower(f.MimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// FrameFromDataURL decodes a "data:<mime>;base64,<payload>" string.
func FrameFromDataURL(value string) (Frame, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "data:")
	if !ok {
		return Frame{}, errors.New("data url: missing data: prefix")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Frame{}, errors.New("data url: missing payload separator")
	}
	mime, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" {
		return Frame{}, fmt.Errorf("data url: unsupported encoding %q", encoding)
	}
	if !strings.HasPrefix(mime, "image/") {
		return Frame{}, fmt.Errorf("data url: not an image (%q)", mime)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("data url: decode payload: %w", err)
	}
	if len(data) == 0 {
		return Frame{}, errors.New("data url: empty payload")
	}
	return Frame{MimeType: mime, Data: data}, nil
}

// Session is one user's working set in the studio.
type Session struct {
	ID              string
	MediaType       MediaType
	SourceName      string
	SourcePath      string
	SourceMime      string
	Style           string
	Status          Status
	ProgressMessage string
	ProgressPercent float64
	ErrorMessage    string
	NeedsReauth     bool
	AnimationPath   string
	CapturedCount   int
	StylizedCount   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasAnimation reports whether a rendered animation exists for the session.
func (s *Session) HasAnimation() bool {
	return s != nil && s.AnimationPath != "" && s.StylizedCount > 1
}
