package services_test

import (
	"errors"
	"strings"
	"testing"

	"artstudio/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", "frame grab failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extract", "ffmpeg", "frame grab failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestClassification(t *testing.T) {
	authErr := services.Wrap(services.ErrAuth, "generate", "gemini", "key rejected", nil)
	if !services.NeedsReauth(authErr) {
		t.Fatal("expected auth error to need reauth")
	}
	if services.IsClientError(authErr) {
		t.Fatal("auth error should not be a client error")
	}
	if !services.IsClientError(services.Wrap(services.ErrBusy, "", "", "running", nil)) {
		t.Fatal("expected busy to be a client error")
	}
	if services.NeedsReauth(errors.New("plain")) {
		t.Fatal("plain error should not need reauth")
	}
}
