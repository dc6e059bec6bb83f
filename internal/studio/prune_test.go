package studio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"artstudio/internal/services"
)

func TestPruneRemovesStaleSessions(t *testing.T) {
	h := newHarness(t)
	stale := h.newSession(t)
	h.uploadVideoAndExtract(t, stale.ID, 2)
	staleSess, err := h.studio.Get(context.Background(), stale.ID)
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	fresh := h.newSession(t)

	result, err := h.studio.Prune(context.Background(), 150*time.Millisecond)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if result.Sessions != 1 {
		t.Fatalf("expected one session pruned, got %+v", result)
	}
	if _, err := h.studio.Get(context.Background(), stale.ID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected stale session removed, got %v", err)
	}
	if _, err := h.studio.Get(context.Background(), fresh.ID); err != nil {
		t.Fatalf("fresh session removed: %v", err)
	}
	if _, err := os.Stat(staleSess.SourcePath); !os.IsNotExist(err) {
		t.Fatalf("expected stale source removed, got %v", err)
	}
}

func TestPruneCleansOrphanedFiles(t *testing.T) {
	h := newHarness(t)
	sess := h.newSession(t)
	h.uploadVideoAndExtract(t, sess.ID, 1)
	kept, err := h.studio.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}

	old := time.Now().Add(-time.Hour)
	orphan := filepath.Join(h.cfg.RenderDir(), "orphan.webm")
	recent := filepath.Join(h.cfg.UploadDir(), "pending.mp4")
	for _, path := range []string{orphan, recent} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, path := range []string{orphan, kept.SourcePath} {
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}
	}

	result, err := h.studio.Prune(context.Background(), 0)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if result.Sessions != 0 || result.Files != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Fatalf("orphan not removed: %v", err)
	}
	for _, path := range []string{recent, kept.SourcePath} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
}
