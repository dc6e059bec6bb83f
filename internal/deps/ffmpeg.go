package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// AnimationEncoder is the ffmpeg encoder used for WebM animations.
const AnimationEncoder = "libvpx-vp9"

// ResolveFFprobe reports the ffprobe binary that pairs with ffmpegCommand.
//
// Static ffmpeg builds usually ship ffprobe in the same directory, so a
// sibling of the resolved ffmpeg binary wins over whatever "ffprobe" resolves
// to on PATH.
func ResolveFFprobe(ffmpegCommand, ffprobeCommand string) Status {
	result := Status{
		Name:        "FFprobe",
		Description: "Required to read video duration before frame extraction",
	}

	ffprobeName := strings.TrimSpace(ffprobeCommand)
	if ffprobeName == "" {
		ffprobeName = "ffprobe"
	}

	if ffmpegBinary := strings.TrimSpace(ffmpegCommand); ffmpegBinary != "" {
		if resolved, err := exec.LookPath(ffmpegBinary); err == nil {
			if candidate, ok := siblingCandidate(resolved, filepath.Base(ffprobeName)); ok {
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					return result
				}
			}
		}
	}

	if ffprobePath, err := exec.LookPath(ffprobeName); err == nil {
		result.Command = ffprobePath
		result.Available = true
		return result
	}

	result.Command = ffprobeName
	result.Available = false
	result.Detail = fmt.Sprintf("binary %q not found", ffprobeName)
	return result
}

// CheckEncoder verifies that ffmpeg was built with the named encoder.
func CheckEncoder(ctx context.Context, ffmpegCommand, encoder string) Status {
	result := Status{
		Name:        "FFmpeg " + encoder,
		Command:     strings.TrimSpace(ffmpegCommand),
		Description: "Required to compile stylized frames into an animation",
	}
	if result.Command == "" {
		result.Detail = "command not configured"
		return result
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	output, err := exec.CommandContext(checkCtx, result.Command, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		result.Detail = fmt.Sprintf("list encoders: %v", err)
		return result
	}
	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == encoder {
			result.Available = true
			return result
		}
	}
	result.Detail = fmt.Sprintf("encoder %q not available in %s", encoder, result.Command)
	return result
}

func siblingCandidate(resolvedPath, name string) (string, bool) {
	if resolvedPath == "" || name == "" {
		return "", false
	}
	dir := filepath.Dir(resolvedPath)
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	return filepath.Join(dir, name), true
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
