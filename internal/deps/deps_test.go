package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", path, err)
	}
}

func TestCheck(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	writeScript(t, present, "exit 0")

	tests := []struct {
		name      string
		req       Requirement
		available bool
		detail    string
	}{
		{"present", Requirement{Name: "Present", Command: present}, true, ""},
		{"missing", Requirement{Name: "Missing", Command: "clearly-not-present-binary"}, false, `binary "clearly-not-present-binary" not found`},
		{"blank", Requirement{Name: "Blank", Command: "  ", Optional: true}, false, "command not configured"},
	}
	var results []Status
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Check(tc.req)
			if got.Available != tc.available || got.Detail != tc.detail {
				t.Fatalf("Check(%+v) = %+v", tc.req, got)
			}
		})
		results = append(results, Check(tc.req))
	}
	if results[0].Command != present {
		t.Fatalf("expected resolved command %q, got %q", present, results[0].Command)
	}

	missing := Missing(results)
	if len(missing) != 1 || missing[0].Name != "Missing" {
		t.Fatalf("expected only the required missing binary, got %#v", missing)
	}
	if got := Names(missing); len(got) != 1 || got[0] != "Missing" {
		t.Fatalf("unexpected names %v", got)
	}
}

func TestResolveFFprobePrefersSibling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs")
	}
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, "ffmpeg")
	ffprobePath := filepath.Join(tmp, "ffprobe")
	writeScript(t, ffmpegPath, "exit 0")
	writeScript(t, ffprobePath, "exit 0")

	status := ResolveFFprobe(ffmpegPath, "ffprobe")
	if !status.Available {
		t.Fatalf("expected sibling ffprobe to be available, got detail %q", status.Detail)
	}
	if status.Command != ffprobePath {
		t.Fatalf("expected ffprobe command %q, got %q", ffprobePath, status.Command)
	}
}

func TestResolveFFprobePathFallback(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs")
	}
	tmp := t.TempDir()
	ffmpegPath := filepath.Join(tmp, "ffmpeg")
	writeScript(t, ffmpegPath, "exit 0")

	binDir := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	ffprobePath := filepath.Join(binDir, "ffprobe")
	writeScript(t, ffprobePath, "exit 0")
	t.Setenv("PATH", binDir)

	status := ResolveFFprobe(ffmpegPath, "")
	if !status.Available {
		t.Fatalf("expected PATH ffprobe to be available, got detail %q", status.Detail)
	}
	if status.Command != ffprobePath {
		t.Fatalf("expected ffprobe command %q, got %q", ffprobePath, status.Command)
	}
}

func TestResolveFFprobeNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := ResolveFFprobe(filepath.Join(t.TempDir(), "ffmpeg"), "ffprobe")
	if status.Available {
		t.Fatal("expected ffprobe resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffprobe is unavailable")
	}
}

func TestCheckEncoder(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs")
	}
	tmp := t.TempDir()
	withVP9 := filepath.Join(tmp, "ffmpeg-vp9")
	writeScript(t, withVP9, `cat <<'OUT'
Encoders:
 V..... = Video
 ------
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 V....D mjpeg                MJPEG (Motion JPEG)
OUT`)
	withoutVP9 := filepath.Join(tmp, "ffmpeg-lite")
	writeScript(t, withoutVP9, `echo " V....D mjpeg                MJPEG (Motion JPEG)"`)
	broken := filepath.Join(tmp, "ffmpeg-broken")
	writeScript(t, broken, "exit 3")

	tests := []struct {
		name      string
		command   string
		available bool
	}{
		{"encoder listed", withVP9, true},
		{"encoder absent", withoutVP9, false},
		{"ffmpeg fails", broken, false},
		{"not configured", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status := CheckEncoder(context.Background(), tc.command, AnimationEncoder)
			if status.Available != tc.available {
				t.Fatalf("available = %v, want %v (detail %q)", status.Available, tc.available, status.Detail)
			}
			if !tc.available && status.Detail == "" {
				t.Fatal("expected detail for unavailable encoder")
			}
		})
	}
}
