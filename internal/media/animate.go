package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"artstudio/internal/logging"
	"artstudio/internal/services"
	"artstudio/internal/session"
)

// DefaultAnimationFPS plays each stylized frame for 100ms.
const DefaultAnimationFPS = 10

// Renderer recomposes stylized frames into a looping WebM clip.
type Renderer struct {
	FFmpeg string
	FPS    int
	Logger *slog.Logger
}

// NewRenderer builds a renderer bound to the ffmpeg binary.
func NewRenderer(ffmpegBinary string, fps int, logger *slog.Logger) *Renderer {
	if fps <= 0 {
		fps = DefaultAnimationFPS
	}
	return &Renderer{
		FFmpeg: ffmpegBinary,
		FPS:    fps,
		Logger: logging.NewComponentLogger(logger, "renderer"),
	}
}

// CanvasSize returns the even-sized canvas derived from the first decodable frame.
func CanvasSize(frames []session.Frame) (int, int, bool) {
	if len(frames) == 0 {
		return 0, 0, false
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(frames[0].Data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, false
	}
	return cfg.Width &^ 1, cfg.Height &^ 1, true
}

// ConcatList builds an ffconcat script playing each file for 1/fps seconds.
// The last file is repeated so its duration is honoured by the demuxer.
func ConcatList(files []string, fps int) string {
	if fps <= 0 {
		fps = DefaultAnimationFPS
	}
	duration := strconv.FormatFloat(1/float64(fps), 'f', 6, 64)
	var b strings.Builder
	b.WriteString("ffconcat version 1.0\n")
	for _, file := range files {
		fmt.Fprintf(&b, "file '%s'\nduration %s\n", strings.ReplaceAll(file, "'", `'\''`), duration)
	}
	if len(files) > 0 {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(files[len(files)-1], "'", `'\''`))
	}
	return b.String()
}

// Render writes frames as a VP9 WebM to dest.
func (r *Renderer) Render(ctx context.Context, frames []session.Frame, dest string) error {
	if len(frames) == 0 {
		return services.Wrap(services.ErrValidation, "render", "animation", "no frames to render", nil)
	}
	workDir, err := os.MkdirTemp("", "artstudio-render-")
	if err != nil {
		return fmt.Errorf("render: create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	files := make([]string, len(frames))
	for i, frame := range frames {
		name := fmt.Sprintf("frame_%04d.%s", i, frame.Extension())
		if err := os.WriteFile(filepath.Join(workDir, name), frame.Data, 0o644); err != nil {
			return fmt.Errorf("render: write frame %d: %w", i, err)
		}
		files[i] = name
	}
	listPath := filepath.Join(workDir, "frames.ffconcat")
	if err := os.WriteFile(listPath, []byte(ConcatList(files, r.FPS)), 0o644); err != nil {
		return fmt.Errorf("render: write concat list: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("render: ensure output dir: %w", err)
	}

	filter := "scale=trunc(iw/2)*2:trunc(ih/2)*2,format=yuv420p"
	if w, h, ok := CanvasSize(frames); ok {
		filter = fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,format=yuv420p", w, h, w, h)
	}

	logging.WithContext(ctx, r.Logger).Debug("rendering animation",
		logging.Int(logging.FieldFrameCount, len(frames)),
		logging.Int("fps", r.FPS),
		logging.String("dest", dest),
	)

	if err := runFFmpeg(ctx, r.FFmpeg, "ffmpeg render",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-vf", filter,
		"-r", strconv.Itoa(r.FPS),
		"-c:v", "libvpx-vp9",
		"-b:v", "0",
		"-crf", "32",
		"-an",
		dest,
	); err != nil {
		return services.Wrap(services.ErrExternalTool, "render", "ffmpeg", "compose animation", err)
	}
	if info, err := os.Stat(dest); err != nil || info.Size() == 0 {
		return services.Wrap(services.ErrExternalTool, "render", "ffmpeg", "animation not written", err)
	}
	return nil
}
