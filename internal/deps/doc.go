// Package deps reports whether the external binaries artstudio shells out to
// (ffmpeg and ffprobe) are installed and usable.
package deps
