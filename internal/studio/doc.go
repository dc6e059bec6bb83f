// Package studio is the application controller behind both the daemon and
// the CLI.
//
// A Studio owns the session store and the collaborators that do real work:
// the remote image generator, the ffmpeg frame extractor, and the animation
// renderer. Every operation is scoped to one session. Mutating operations
// claim the session for their whole duration, so a second request against a
// busy session fails fast with services.ErrBusy instead of queueing behind it.
//
// Generation is serial: each captured frame is sent to the generator in order
// and the batch aborts on the first error. A failed batch leaves the previous
// stylized frames and animation untouched and records the error (and whether
// the API key must be re-entered) on the session.
//
// The daemon uses the Start* variants, which validate synchronously and then
// run the job in the background under the studio's lifetime context; the UI
// polls the session for progress.
//
// Prune enforces studio.retention_days and sweeps media files that no session
// points at any more.
package studio
