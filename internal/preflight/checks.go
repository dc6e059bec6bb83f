package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"artstudio/internal/config"
	"artstudio/internal/deps"
	"artstudio/internal/services"
	"artstudio/internal/services/gemini"
)

const geminiCheckName = "Gemini API"

// CheckGemini verifies that the image model is reachable and the key is valid.
// It uses a 30-second timeout and a single attempt (no retries).
func CheckGemini(ctx context.Context, cfg config.Gemini) Result {
	if cfg.APIKey == "" {
		return Result{Name: geminiCheckName, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := gemini.NewClient(gemini.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		AspectRatio:    cfg.AspectRatio,
		ImageSize:      cfg.ImageSize,
		TimeoutSeconds: cfg.TimeoutSeconds,
	}, gemini.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: geminiCheckName, Detail: summarizeGeminiError(err)}
	}
	return Result{Name: geminiCheckName, Passed: true, Detail: fmt.Sprintf("%s reachable", client.Model())}
}

// summarizeGeminiError produces a human-readable summary for health check failures.
func summarizeGeminiError(err error) string {
	if services.NeedsReauth(err) {
		return "API key rejected (select a new key)"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	var apiErr *gemini.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("http %d: %s", apiErr.StatusCode, apiErr.Message)
	}
	return err.Error()
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the binaries artstudio shells out to. Both the
// daemon status endpoint and the CLI status command use this list.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	ffmpeg := cfg.FFmpegBinary()
	statuses := []deps.Status{
		deps.Check(deps.Requirement{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Required for frame extraction, camera capture and animation",
		}),
		deps.ResolveFFprobe(ffmpeg, cfg.FFprobeBinary()),
	}
	if statuses[0].Available {
		encoder := deps.CheckEncoder(ctx, ffmpeg, deps.AnimationEncoder)
		encoder.Optional = true
		statuses = append(statuses, encoder)
	}
	return statuses
}
