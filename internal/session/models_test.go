package session_test

import (
	"strings"
	"testing"

	"artstudio/internal/session"
)

func TestFrameDataURLRoundTrip(t *testing.T) {
	frame := session.Frame{MimeType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	url := frame.URL()
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Fatalf("unexpected url %q", url)
	}
	decoded, err := session.FrameFromDataURL(url)
	if err != nil {
		t.Fatalf("FrameFromDataURL returned error: %v", err)
	}
	if decoded.MimeType != "image/png" || string(decoded.Data) != string(frame.Data) {
		t.Fatalf("unexpected frame %+v", decoded)
	}
}

func TestFrameFromDataURLRejectsBadInput(t *testing.T) {
	tests := []string{
		"",
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png,AAAA",
		"data:text/plain;base64,QUJD",
		"data:image/png;base64,!!!",
		"data:image/png;base64,",
	}
	for _, input := range tests {
		if _, err := session.FrameFromDataURL(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestFrameExtension(t *testing.T) {
	tests := map[string]string{
		"image/jpeg": "jpg",
		"image/png":  "png",
		"image/webp": "webp",
		"":           "png",
	}
	for mime, want := range tests {
		if got := (session.Frame{MimeType: mime}).Extension(); got != want {
			t.Errorf("Extension(%q) = %q, want %q", mime, got, want)
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	for _, status := range session.ProcessingStatuses() {
		if !status.IsProcessing() {
			t.Fatalf("expected %s to be processing", status)
		}
	}
	for _, status := range []session.Status{session.StatusIdle, session.StatusReady, session.StatusFailed} {
		if status.IsProcessing() {
			t.Fatalf("expected %s not to be processing", status)
		}
	}
	if got, ok := session.ParseStatus(" READY "); !ok || got != session.StatusReady {
		t.Fatalf("ParseStatus returned %q %v", got, ok)
	}
	if _, ok := session.ParseStatus("bogus"); ok {
		t.Fatal("expected unknown status to fail")
	}
}

func TestParseKind(t *testing.T) {
	if kind, err := session.ParseKind("Stylized"); err != nil || kind != session.KindStylized {
		t.Fatalf("ParseKind returned %q %v", kind, err)
	}
	if _, err := session.ParseKind("raw"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
