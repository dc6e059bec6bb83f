// Package media wraps the ffmpeg invocations the studio needs: sampling
// evenly spaced stills from a video, grabbing a camera snapshot, and
// recompositing stylized stills into a WebM animation.
//
// Every call shells out to the configured ffmpeg binary and respects context
// cancellation. Tests substitute shell stubs for the binaries.
package media
