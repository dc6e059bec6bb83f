// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe against an uploaded source and returns the container
// duration plus the first video stream's dimensions, which frame sampling
// and animation sizing rely on.
package ffprobe
