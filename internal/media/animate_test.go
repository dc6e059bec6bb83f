package media_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"artstudio/internal/media"
	"artstudio/internal/services"
	"artstudio/internal/session"
	"artstudio/internal/testsupport"
)

func TestConcatListRepeatsLastFrame(t *testing.T) {
	got := media.ConcatList([]string{"frame_0000.png", "frame_0001.png"}, 10)
	want := "ffconcat version 1.0\n" +
		"file 'frame_0000.png'\nduration 0.100000\n" +
		"file 'frame_0001.png'\nduration 0.100000\n" +
		"file 'frame_0001.png'\n"
	if got != want {
		t.Fatalf("unexpected concat list:\n%s", got)
	}
}

func TestConcatListEscapesQuotes(t *testing.T) {
	got := media.ConcatList([]string{"it's.png"}, 5)
	if !strings.Contains(got, `file 'it'\''s.png'`) {
		t.Fatalf("expected escaped quote, got:\n%s", got)
	}
	if !strings.Contains(got, "duration 0.200000") {
		t.Fatalf("expected 5fps duration, got:\n%s", got)
	}
}

func TestCanvasSizeRoundsToEven(t *testing.T) {
	frames := []session.Frame{
		{MimeType: "image/png", Data: testsupport.PNG(t, 101, 57)},
		{MimeType: "image/jpeg", Data: testsupport.JPEG(t, 10, 10)},
	}
	w, h, ok := media.CanvasSize(frames)
	if !ok {
		t.Fatal("expected canvas size")
	}
	if w != 100 || h != 56 {
		t.Fatalf("unexpected canvas: %dx%d", w, h)
	}

	if _, _, ok := media.CanvasSize([]session.Frame{{Data: []byte("garbage")}}); ok {
		t.Fatal("expected undecodable frame to report no canvas")
	}
	if _, _, ok := media.CanvasSize(nil); ok {
		t.Fatal("expected empty input to report no canvas")
	}
}

func TestRenderWritesAnimation(t *testing.T) {
	dir := t.TempDir()
	ffmpeg, argsLog := testsupport.FakeFFmpeg(t, dir, []byte("webm"))
	renderer := media.NewRenderer(ffmpeg, 0, nil)
	if renderer.FPS != media.DefaultAnimationFPS {
		t.Fatalf("expected default fps, got %d", renderer.FPS)
	}

	frames := []session.Frame{
		{Index: 0, MimeType: "image/png", Data: testsupport.PNG(t, 64, 48)},
		{Index: 1, MimeType: "image/png", Data: testsupport.PNG(t, 64, 48)},
	}
	dest := filepath.Join(dir, "out", "anim.webm")
	if err := renderer.Render(context.Background(), frames, dest); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "webm" {
		t.Fatalf("expected rendered output, got %q (%v)", data, err)
	}
	logged, err := os.ReadFile(argsLog)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	for _, want := range []string{"-f concat", "libvpx-vp9", "pad=64:48", "-r 10"} {
		if !strings.Contains(string(logged), want) {
			t.Fatalf("expected %q in ffmpeg args: %s", want, logged)
		}
	}
}

func TestRenderRejectsEmptyInput(t *testing.T) {
	renderer := media.NewRenderer("ffmpeg", 10, nil)
	err := renderer.Render(context.Background(), nil, filepath.Join(t.TempDir(), "x.webm"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
