package media

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"artstudio/internal/logging"
	"artstudio/internal/media/ffprobe"
	"artstudio/internal/services"
	"artstudio/internal/session"
)

// jpegQuality maps to ffmpeg's mjpeg qscale (2 best .. 31 worst); 3 is close
// to a 0.8 quality JPEG.
const jpegQuality = "3"

// Timestamps returns n instants evenly spaced across duration seconds.
// Instant i is i*duration/n, clamped to [0, duration].
func Timestamps(duration float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("timestamps: frame count must be positive, got %d", n)
	}
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return nil, fmt.Errorf("timestamps: invalid duration %v", duration)
	}
	interval := duration / float64(n)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Min(math.Max(float64(i)*interval, 0), duration)
	}
	return out, nil
}

// ProbeInfo summarises a source video.
type ProbeInfo struct {
	DurationSeconds float64
	Width           int
	Height          int
}

// Extractor samples JPEG stills from a video file.
type Extractor struct {
	FFmpeg  string
	FFprobe string
	Logger  *slog.Logger
}

// NewExtractor builds an extractor bound to the given binaries.
func NewExtractor(ffmpegBinary, ffprobeBinary string, logger *slog.Logger) *Extractor {
	return &Extractor{
		FFmpeg:  ffmpegBinary,
		FFprobe: ffprobeBinary,
		Logger:  logging.NewComponentLogger(logger, "extractor"),
	}
}

// Probe inspects a video and reports its duration and dimensions.
func (e *Extractor) Probe(ctx context.Context, path string) (ProbeInfo, error) {
	result, err := ffprobe.Inspect(ctx, e.FFprobe, path)
	if err != nil {
		return ProbeInfo{}, services.Wrap(services.ErrExternalTool, "extract", "ffprobe", "inspect source", err)
	}
	if _, ok := result.VideoStream(); !ok {
		return ProbeInfo{}, services.Wrap(services.ErrValidation, "extract", "ffprobe", "source has no video stream", nil)
	}
	info := ProbeInfo{DurationSeconds: result.DurationSeconds()}
	info.Width, info.Height = result.Dimensions()
	if info.DurationSeconds <= 0 {
		return ProbeInfo{}, services.Wrap(services.ErrValidation, "extract", "ffprobe", "source duration unknown", nil)
	}
	return info, nil
}

// Extract grabs exactly n frames evenly spaced across the video duration.
// progress, when non-nil, is called after each frame with (done, total).
func (e *Extractor) Extract(ctx context.Context, path string, n int, progress func(done, total int)) ([]session.Frame, error) {
	info, err := e.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	stamps, err := Timestamps(info.DurationSeconds, n)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "extract", "sample", "", err)
	}

	workDir, err := os.MkdirTemp("", "artstudio-frames-")
	if err != nil {
		return nil, fmt.Errorf("extract: create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	logger := logging.WithContext(ctx, e.Logger)
	logger.Debug("extracting frames",
		logging.Int(logging.FieldFrameCount, n),
		logging.Any("duration_seconds", info.DurationSeconds),
	)

	frames := make([]session.Frame, 0, n)
	for i, at := range stamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dest := filepath.Join(workDir, fmt.Sprintf("frame_%04d.jpg", i))
		if err := e.grab(ctx, path, at, dest); err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", fmt.Sprintf("frame %d at %.3fs", i, at), err)
		}
		data, err := os.ReadFile(dest)
		if err != nil || len(data) == 0 {
			return nil, services.Wrap(services.ErrExternalTool, "extract", "ffmpeg", fmt.Sprintf("no image produced for frame %d at %.3fs", i, at), err)
		}
		frames = append(frames, session.Frame{Index: i, MimeType: "image/jpeg", Data: data})
		if progress != nil {
			progress(i+1, n)
		}
	}
	return frames, nil
}

func (e *Extractor) grab(ctx context.Context, source string, at float64, dest string) error {
	return runFFmpeg(ctx, e.FFmpeg, "ffmpeg grab",
		"-ss", strconv.FormatFloat(at, 'f', 3, 64),
		"-i", source,
		"-frames:v", "1",
		"-an", "-sn", "-dn",
		"-c:v", "mjpeg",
		"-q:v", jpegQuality,
		"-f", "image2",
		dest,
	)
}
