package export_test

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"artstudio/internal/export"
	"artstudio/internal/services"
	"artstudio/internal/session"
	"artstudio/internal/testsupport"
)

var fixedTime = time.UnixMilli(1700000000123)

func TestFileNames(t *testing.T) {
	if got := export.ImageFileName("png", fixedTime); got != "art-1700000000123.png" {
		t.Fatalf("ImageFileName = %q", got)
	}
	if got := export.ImageFileName(".jpg", fixedTime); got != "art-1700000000123.jpg" {
		t.Fatalf("ImageFileName with dot = %q", got)
	}
	if got := export.AnimationFileName(fixedTime); got != "art-animation-1700000000123.webm" {
		t.Fatalf("AnimationFileName = %q", got)
	}
	if got := export.PDFFileName(fixedTime); got != "art-studio-export-1700000000123.pdf" {
		t.Fatalf("PDFFileName = %q", got)
	}
}

func TestLabeledFileName(t *testing.T) {
	tests := []struct {
		name, label, want string
	}{
		{"art-1.png", "Óleo Clásico", "art-oleo-clasico-1.png"},
		{"art-animation-1.webm", "Pop Art", "art-pop-art-animation-1.webm"},
		{"art-1.png", "  ", "art-1.png"},
	}
	for _, tc := range tests {
		if got := export.LabeledFileName(tc.name, tc.label); got != tc.want {
			t.Errorf("LabeledFileName(%q, %q) = %q, want %q", tc.name, tc.label, got, tc.want)
		}
	}
}

func TestLayoutFollowsAspectRatio(t *testing.T) {
	place := export.Layout(210, 297, 15, 1600, 900)
	if place.X != 15 || place.Y != 15 {
		t.Fatalf("unexpected origin: %+v", place)
	}
	if place.Width != 180 {
		t.Fatalf("expected full content width, got %v", place.Width)
	}
	if math.Abs(place.Height-101.25) > 1e-9 {
		t.Fatalf("expected 16:9 height, got %v", place.Height)
	}
	if math.Abs(place.CaptionY-(15+101.25+10)) > 1e-9 {
		t.Fatalf("expected caption 10mm under image, got %v", place.CaptionY)
	}
}

func TestLayoutShrinksTallImages(t *testing.T) {
	place := export.Layout(210, 297, 15, 100, 1000)
	if place.CaptionY > 297-15 {
		t.Fatalf("caption falls off the page: %+v", place)
	}
	if ratio := place.Height / place.Width; math.Abs(ratio-10) > 1e-9 {
		t.Fatalf("aspect ratio not preserved: %v", ratio)
	}
}

func TestCaption(t *testing.T) {
	if got := export.Caption("Art Studio", 3); got != "Art Studio - Page 3" {
		t.Fatalf("Caption = %q", got)
	}
	if got := export.Caption("", 1); got != "Page 1" {
		t.Fatalf("Caption without label = %q", got)
	}
}

func TestWritePDFOnePagePerFrame(t *testing.T) {
	frames := []session.Frame{
		{Index: 0, MimeType: "image/png", Data: testsupport.PNG(t, 32, 18)},
		{Index: 1, MimeType: "image/jpeg", Data: testsupport.JPEG(t, 32, 18)},
		{Index: 2, MimeType: "image/png", Data: testsupport.PNG(t, 18, 32)},
	}
	var buf bytes.Buffer
	err := export.WritePDF(&buf, frames, export.PDFOptions{MarginMM: 15, Caption: "Art Studio", CreatedAt: fixedTime})
	if err != nil {
		t.Fatalf("WritePDF returned error: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "%PDF-") {
		t.Fatalf("output is not a PDF: %q", out[:min(len(out), 16)])
	}
	if got := strings.Count(out, "/Type /Page\n"); got != 3 {
		t.Fatalf("expected 3 pages, found %d", got)
	}
}

func TestWritePDFRejectsEmptyAndUnsupported(t *testing.T) {
	var buf bytes.Buffer
	if err := export.WritePDF(&buf, nil, export.PDFOptions{MarginMM: 15}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for no frames, got %v", err)
	}
	frames := []session.Frame{{MimeType: "image/webp", Data: []byte("RIFF")}}
	if err := export.WritePDF(&buf, frames, export.PDFOptions{MarginMM: 15}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for webp, got %v", err)
	}
}

func TestDownload(t *testing.T) {
	single := []session.Frame{{MimeType: "image/png", Data: []byte("png")}}
	artifact, err := export.Download(single, "", fixedTime)
	if err != nil {
		t.Fatalf("Download(single) returned error: %v", err)
	}
	if artifact.FileName != "art-1700000000123.png" || artifact.IsAnimation() || string(artifact.Data) != "png" {
		t.Fatalf("unexpected single artifact: %+v", artifact)
	}

	many := append(single, session.Frame{Index: 1, MimeType: "image/png", Data: []byte("png")})
	if _, err := export.Download(many, "", fixedTime); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found without animation, got %v", err)
	}

	anim := filepath.Join(t.TempDir(), "anim.webm")
	if err := os.WriteFile(anim, []byte("webm"), 0o644); err != nil {
		t.Fatal(err)
	}
	artifact, err = export.Download(many, anim, fixedTime)
	if err != nil {
		t.Fatalf("Download(many) returned error: %v", err)
	}
	if artifact.FileName != "art-animation-1700000000123.webm" || artifact.MimeType != "video/webm" || artifact.Path != anim {
		t.Fatalf("unexpected animation artifact: %+v", artifact)
	}

	if _, err := export.Download(nil, "", fixedTime); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for empty result, got %v", err)
	}
}
