package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"artstudio/internal/config"
	"artstudio/internal/testsupport"
)

func TestStylizeImageWritesResultAndPDF(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	input := writeInput(t, env.baseDir, "photo.png", testsupport.PNG(t, 16, 12))
	outDir := filepath.Join(env.baseDir, "out") + string(os.PathSeparator)

	out, _, err := runCLI(t, []string{"stylize", input, "--style", "Watercolor", "--out", outDir, "--pdf"}, env.configPath)
	if err != nil {
		t.Fatalf("stylize: %v\n%s", err, out)
	}
	requireContains(t, out, "Session ")
	requireContains(t, out, "Painting 1 frame(s)")
	if got := env.gemini.calls.Load(); got != 1 {
		t.Fatalf("expected one remote call, got %d", got)
	}

	entries, err := os.ReadDir(filepath.Join(env.baseDir, "out"))
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	var image, pdf string
	for _, entry := range entries {
		switch {
		case strings.HasPrefix(entry.Name(), "art-studio-export-") && strings.HasSuffix(entry.Name(), ".pdf"):
			pdf = entry.Name()
		case strings.HasPrefix(entry.Name(), "art-") && strings.HasSuffix(entry.Name(), ".png"):
			image = entry.Name()
		}
	}
	if image == "" || pdf == "" {
		t.Fatalf("expected image and pdf in output dir, got %v", entries)
	}
	data, err := os.ReadFile(filepath.Join(env.baseDir, "out", pdf))
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !strings.HasPrefix(string(data), "%PDF-") {
		t.Fatalf("expected a PDF header, got %q", string(data[:min(len(data), 8)]))
	}
}

func TestStylizeRefineCallsRemoteTwice(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	input := writeInput(t, env.baseDir, "photo.png", testsupport.PNG(t, 16, 12))
	target := filepath.Join(env.baseDir, "result.png")

	out, _, err := runCLI(t, []string{"stylize", input, "--refine", "add a red hat", "--out", target}, env.configPath)
	if err != nil {
		t.Fatalf("stylize: %v\n%s", err, out)
	}
	requireContains(t, out, "Refining first frame")
	requireContains(t, out, "Wrote "+target)
	if got := env.gemini.calls.Load(); got != 2 {
		t.Fatalf("expected generate and refine calls, got %d", got)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected result at %s: %v", target, err)
	}
}

func TestStylizeWithoutKeyExplainsCredential(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *config.Config) { cfg.Gemini.APIKey = "" })
	input := writeInput(t, env.baseDir, "photo.png", testsupport.PNG(t, 4, 4))

	_, _, err := runCLI(t, []string{"stylize", input, "--out", env.baseDir}, env.configPath)
	if err == nil {
		t.Fatal("expected stylize to fail without an API key")
	}
	requireContains(t, err.Error(), "GEMINI_API_KEY")
	if got := env.gemini.calls.Load(); got != 0 {
		t.Fatalf("expected no remote calls, got %d", got)
	}
}

func TestStylizeRejectedKeyNeedsReauth(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	env.gemini.status.Store(http.StatusBadRequest)
	input := writeInput(t, env.baseDir, "photo.png", testsupport.PNG(t, 4, 4))

	_, _, err := runCLI(t, []string{"stylize", input, "--out", env.baseDir}, env.configPath)
	if err == nil {
		t.Fatal("expected stylize to fail with a rejected key")
	}
	requireContains(t, err.Error(), "check GEMINI_API_KEY")

	out, _, err := runCLI(t, []string{"sessions", "list", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("sessions list: %v", err)
	}
	requireContains(t, out, "failed")
}

func TestStylizeRejectsUnsupportedMedia(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	input := writeInput(t, env.baseDir, "notes.txt", []byte("just some text, not an image"))

	_, _, err := runCLI(t, []string{"stylize", input}, env.configPath)
	if err == nil {
		t.Fatal("expected unsupported media to fail")
	}
	requireContains(t, err.Error(), "unsupported media type")
}

func TestResolveOutput(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		out  string
		want string
	}{
		{"empty uses name", "", "art-1.png"},
		{"existing dir", dir, filepath.Join(dir, "art-1.png")},
		{"trailing separator", filepath.Join(dir, "new") + string(os.PathSeparator), filepath.Join(dir, "new", "art-1.png")},
		{"explicit file", filepath.Join(dir, "mine.png"), filepath.Join(dir, "mine.png")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveOutput(tc.out, "art-1.png")
			if err != nil {
				t.Fatalf("resolveOutput: %v", err)
			}
			if got != tc.want {
				t.Fatalf("resolveOutput(%q) = %q, want %q", tc.out, got, tc.want)
			}
		})
	}
}
