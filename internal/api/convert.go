package api

import (
	"fmt"
	"net/url"
	"sort"

	"artstudio/internal/config"
	"artstudio/internal/session"
)

// SessionPath returns the API path of a session resource.
func SessionPath(id string) string {
	return "/api/sessions/" + url.PathEscape(id)
}

// FramePath returns the API path serving one frame of a session.
func FramePath(id string, kind session.Kind, index int) string {
	return fmt.Sprintf("%s/frames/%s/%d", SessionPath(id), kind, index)
}

// FromSession converts a stored session to its API representation.
func FromSession(sess *session.Session) Session {
	if sess == nil {
		return Session{}
	}

	dto := Session{
		ID:         sess.ID,
		MediaType:  string(sess.MediaType),
		SourceName: sess.SourceName,
		SourceMime: sess.SourceMime,
		Style:      sess.Style,
		Status:     string(sess.Status),
		Processing: sess.Status.IsProcessing(),
		Progress: SessionProgress{
			Message: sess.ProgressMessage,
			Percent: sess.ProgressPercent,
		},
		ErrorMessage:  sess.ErrorMessage,
		NeedsReauth:   sess.NeedsReauth,
		CapturedCount: sess.CapturedCount,
		StylizedCount: sess.StylizedCount,
		CapturedURLs:  framePaths(sess.ID, session.KindCaptured, sess.CapturedCount),
		StylizedURLs:  framePaths(sess.ID, session.KindStylized, sess.StylizedCount),
	}

	switch {
	case sess.StylizedCount == 1:
		dto.ResultKind = ResultImage
	case sess.HasAnimation():
		dto.ResultKind = ResultAnimation
	}
	if dto.ResultKind != ResultNone {
		dto.ResultURL = SessionPath(sess.ID) + "/result"
	}
	if sess.StylizedCount > 0 {
		dto.ExportURL = SessionPath(sess.ID) + "/export.pdf"
	}

	if !sess.CreatedAt.IsZero() {
		dto.CreatedAt = sess.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !sess.UpdatedAt.IsZero() {
		dto.UpdatedAt = sess.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromSessions converts a slice of sessions into API DTOs.
func FromSessions(sessions []*session.Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, FromSession(sess))
	}
	return out
}

// CountByStatus tallies sessions per status for status payloads.
func CountByStatus(sessions []*session.Session) map[string]int {
	counts := make(map[string]int)
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		counts[string(sess.Status)]++
	}
	return counts
}

// SortedStatusKeys returns status names in a stable order for rendering.
func SortedStatusKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// FromConfig extracts the browser-facing studio settings.
func FromConfig(cfg *config.Config) Config {
	if cfg == nil {
		return Config{}
	}
	return Config{
		DefaultStyle:      cfg.Studio.DefaultStyle,
		DefaultFrameCount: cfg.Studio.DefaultFrameCount,
		MaxFrameCount:     cfg.Studio.MaxFrameCount,
		PreviewIntervalMS: cfg.Studio.PreviewIntervalMS,
		MaxUploadMB:       cfg.Studio.MaxUploadMB,
	}
}

func framePaths(id string, kind session.Kind, count int) []string {
	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		paths = append(paths, FramePath(id, kind, i))
	}
	return paths
}
