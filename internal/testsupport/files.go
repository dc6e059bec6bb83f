package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// WriteStub writes an executable /bin/sh script named name under dir and
// returns its path. body is appended after the shebang.
func WriteStub(t testing.TB, dir, name, body string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// FakeFFmpeg writes an ffmpeg stand-in that copies payload to its last
// argument (the output path) and appends its arguments, one invocation per
// line, to the returned log file.
func FakeFFmpeg(t testing.TB, dir string, payload []byte) (binary string, argsLog string) {
	t.Helper()
	payloadPath := filepath.Join(dir, "ffmpeg.payload")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	if err := os.WriteFile(payloadPath, payload, 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	argsLog = filepath.Join(dir, "ffmpeg.args")
	body := "echo \"$@\" >> '" + argsLog + "'\n" +
		"for a in \"$@\"; do last=\"$a\"; done\n" +
		"cat '" + payloadPath + "' > \"$last\"\n"
	return WriteStub(t, dir, "ffmpeg", body), argsLog
}

// FakeFFprobe writes an ffprobe stand-in reporting a video of the given
// duration and size.
func FakeFFprobe(t testing.TB, dir string, durationSeconds string, width, height int) string {
	t.Helper()
	json := `{"streams":[{"codec_type":"video","width":` + itoa(width) + `,"height":` + itoa(height) + `}],"format":{"duration":"` + durationSeconds + `"}}`
	return WriteStub(t, dir, "ffprobe", "cat <<'JSON'\n"+json+"\nJSON\n")
}

// PNG returns an encoded solid-color PNG of the requested size.
func PNG(t testing.TB, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(width, height)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG returns an encoded solid-color JPEG of the requested size.
func JPEG(t testing.TB, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(width, height), &jpeg.Options{Quality: 80}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func solid(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill := color.RGBA{R: 200, G: 120, B: 40, A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var digits []byte
	for v > 0 {
		digits = append([]byte{byte('0' + v%10)}, digits...)
		v /= 10
	}
	if neg {
		digits = append([]byte{'-'}, digits...)
	}
	return string(digits)
}
