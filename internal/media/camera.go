package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"artstudio/internal/services"
	"artstudio/internal/session"
)

// CaptureInput returns the ffmpeg input format and device for the platform.
// An empty device selects the platform default camera.
func CaptureInput(goos, device string) (format string, input string) {
	device = strings.TrimSpace(device)
	switch goos {
	case "darwin":
		if device == "" {
			device = "0"
		}
		return "avfoundation", device
	case "windows":
		if device == "" {
			device = "Integrated Camera"
		}
		if !strings.HasPrefix(device, "video=") {
			device = "video=" + device
		}
		return "dshow", device
	default:
		if device == "" {
			device = "/dev/video0"
		}
		return "v4l2", device
	}
}

// CapturePhoto grabs a single JPEG still from a local camera.
func CapturePhoto(ctx context.Context, ffmpegBinary, device string) (session.Frame, error) {
	workDir, err := os.MkdirTemp("", "artstudio-camera-")
	if err != nil {
		return session.Frame{}, fmt.Errorf("capture: create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	format, input := CaptureInput(runtime.GOOS, device)
	dest := filepath.Join(workDir, "capture.jpg")
	if err := runFFmpeg(ctx, ffmpegBinary, "ffmpeg capture",
		"-f", format,
		"-i", input,
		"-frames:v", "1",
		"-c:v", "mjpeg",
		"-q:v", jpegQuality,
		"-f", "image2",
		dest,
	); err != nil {
		return session.Frame{}, services.Wrap(services.ErrExternalTool, "capture", "ffmpeg", input, err)
	}
	data, err := os.ReadFile(dest)
	if err != nil || len(data) == 0 {
		return session.Frame{}, services.Wrap(services.ErrExternalTool, "capture", "ffmpeg", "camera produced no image", err)
	}
	return session.Frame{MimeType: "image/jpeg", Data: data}, nil
}
