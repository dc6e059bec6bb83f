package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"artstudio/internal/session"
)

// exerciseStore runs the behaviour every Store backend must share.
func exerciseStore(t *testing.T, store session.Store) {
	t.Helper()
	ctx := context.Background()

	created, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created.ID == "" || created.Status != session.StatusIdle || created.MediaType != session.MediaNone {
		t.Fatalf("unexpected new session %+v", created)
	}

	created.MediaType = session.MediaVideo
	created.SourceName = "clip.mp4"
	created.SourcePath = "/tmp/clip.mp4"
	created.SourceMime = "video/mp4"
	created.Style = "Oil Painting"
	created.Status = session.StatusGenerating
	created.ProgressMessage = "Painting frame 1/3"
	created.ProgressPercent = 33
	created.NeedsReauth = true
	if err := store.Update(ctx, created); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	fetched, err := store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fetched.SourceName != "clip.mp4" || fetched.Status != session.StatusGenerating || !fetched.NeedsReauth {
		t.Fatalf("update not persisted: %+v", fetched)
	}

	captured := []session.Frame{
		{MimeType: "image/jpeg", Data: []byte("a")},
		{MimeType: "image/jpeg", Data: []byte("b")},
		{MimeType: "image/jpeg", Data: []byte("c")},
	}
	if err := store.ReplaceFrames(ctx, created.ID, session.KindCaptured, captured); err != nil {
		t.Fatalf("ReplaceFrames returned error: %v", err)
	}
	frames, err := store.Frames(ctx, created.ID, session.KindCaptured)
	if err != nil {
		t.Fatalf("Frames returned error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	for i, frame := range frames {
		if frame.Index != i || string(frame.Data) != string(captured[i].Data) {
			t.Fatalf("frame %d out of order: %+v", i, frame)
		}
	}

	if err := store.ReplaceFrames(ctx, created.ID, session.KindCaptured, captured[:1]); err != nil {
		t.Fatalf("ReplaceFrames (shrink) returned error: %v", err)
	}
	if err := store.SetFrame(ctx, created.ID, session.KindStylized, session.Frame{Index: 0, MimeType: "image/png", Data: []byte("x")}); err != nil {
		t.Fatalf("SetFrame returned error: %v", err)
	}
	if err := store.SetFrame(ctx, created.ID, session.KindStylized, session.Frame{Index: 0, MimeType: "image/png", Data: []byte("y")}); err != nil {
		t.Fatalf("SetFrame overwrite returned error: %v", err)
	}
	frame, err := store.Frame(ctx, created.ID, session.KindStylized, 0)
	if err != nil {
		t.Fatalf("Frame returned error: %v", err)
	}
	if string(frame.Data) != "y" {
		t.Fatalf("expected overwritten frame, got %q", frame.Data)
	}
	if _, err := store.Frame(ctx, created.ID, session.KindStylized, 5); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing frame, got %v", err)
	}

	fetched, err = store.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if fetched.CapturedCount != 1 || fetched.StylizedCount != 1 {
		t.Fatalf("unexpected counts: captured=%d stylized=%d", fetched.CapturedCount, fetched.StylizedCount)
	}

	if err := store.ReplaceCaptured(ctx, created.ID, captured[1:]); err != nil {
		t.Fatalf("ReplaceCaptured returned error: %v", err)
	}
	frames, err = store.Frames(ctx, created.ID, session.KindCaptured)
	if err != nil {
		t.Fatalf("Frames returned error: %v", err)
	}
	if len(frames) != 2 || string(frames[0].Data) != "b" || frames[0].Index != 0 {
		t.Fatalf("unexpected captured frames after ReplaceCaptured: %+v", frames)
	}
	stylized, err := store.Frames(ctx, created.ID, session.KindStylized)
	if err != nil {
		t.Fatalf("Frames returned error: %v", err)
	}
	if len(stylized) != 0 {
		t.Fatalf("expected ReplaceCaptured to drop stylized frames, got %d", len(stylized))
	}
	fetched, _ = store.Get(ctx, created.ID)
	if fetched.CapturedCount != 2 || fetched.StylizedCount != 0 {
		t.Fatalf("unexpected counts after ReplaceCaptured: captured=%d stylized=%d", fetched.CapturedCount, fetched.StylizedCount)
	}
	if err := store.ReplaceCaptured(ctx, "missing", nil); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound replacing captured frames of unknown session, got %v", err)
	}

	other, err := store.Create(ctx)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	processing, err := store.List(ctx, session.ProcessingStatuses()...)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(processing) != 1 || processing[0].ID != created.ID {
		t.Fatalf("expected only generating session, got %d", len(processing))
	}

	reset, err := store.ResetStuck(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ResetStuck returned error: %v", err)
	}
	if reset != 0 {
		t.Fatalf("expected recently updated session to be left alone, got %d reset", reset)
	}
	fetched, _ = store.Get(ctx, created.ID)
	if fetched.Status != session.StatusGenerating {
		t.Fatalf("expected session still generating, got %s", fetched.Status)
	}

	reset, err = store.ResetStuck(ctx, 0)
	if err != nil {
		t.Fatalf("ResetStuck returned error: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset session, got %d", reset)
	}
	fetched, _ = store.Get(ctx, created.ID)
	if fetched.Status != session.StatusFailed || fetched.ErrorMessage != session.InterruptedMessage {
		t.Fatalf("expected interrupted failure, got %+v", fetched)
	}

	if err := store.Delete(ctx, other.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := store.Get(ctx, other.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, other.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
	if err := store.ReplaceFrames(ctx, other.ID, session.KindCaptured, nil); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound replacing frames of deleted session, got %v", err)
	}

	removed, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 cleared session, got %d", removed)
	}
	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected empty store, got %d", len(all))
	}
}
