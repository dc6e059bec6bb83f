package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr is re-exported so callers only import this package.
type Attr = slog.Attr

func Any(key string, value any) Attr                { return slog.Any(key, value) }
func Bool(key string, value bool) Attr              { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }
func Int(key string, value int) Attr                { return slog.Int(key, value) }
func Int64(key string, value int64) Attr            { return slog.Int64(key, value) }
func String(key string, value string) Attr          { return slog.String(key, value) }

// Error records err under the "error" key. A nil error is logged as "<nil>"
// so the key is always present for log filters.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

func attrsToArgs(attrs []Attr) []any {
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return args
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// NewComponentLogger tags logger with FieldComponent. A nil logger yields a
// discarding one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

const defaultErrorHint = "check the artstudio log for details"

// eventHints are the fallback operator hints for events that commonly need
// attention. Callers may still pass their own FieldErrorHint.
var eventHints = map[string]string{
	"generation_failed":   "check gemini.api_key, quota, and network access to the Gemini API",
	"extract_failed":      "check that ffmpeg and ffprobe can read the uploaded video",
	"render_failed":       "check that ffmpeg was built with libvpx-vp9",
	"notification_failed": "check notifications.ntfy_topic and network access",
	"dependency_missing":  "install ffmpeg and make sure it is on PATH",
	"missing_api_key":     "set GEMINI_API_KEY or gemini.api_key",
}

// HintFor returns the operator hint logged for eventType.
func HintFor(eventType string) string {
	if hint, ok := eventHints[eventType]; ok {
		return hint
	}
	return defaultErrorHint
}

// WarnWithContext logs a warning that always carries event_type and
// error_hint.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logEvent(logger, slog.LevelWarn, msg, eventType, attrs)
}

// ErrorWithContext is WarnWithContext at error level.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	logEvent(logger, slog.LevelError, msg, eventType, attrs)
}

func logEvent(logger *slog.Logger, level slog.Level, msg, eventType string, attrs []Attr) {
	if logger == nil {
		return
	}
	var hasEvent, hasHint bool
	for _, attr := range attrs {
		switch attr.Key {
		case FieldEventType:
			hasEvent = true
		case FieldErrorHint:
			hasHint = true
		}
	}
	if !hasEvent {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	if !hasHint {
		attrs = append(attrs, String(FieldErrorHint, HintFor(eventType)))
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
