// Package logs reads the daemon's JSON log file for `artstudio logs`.
//
// Tail returns the last N matching records or everything written after a
// byte offset, optionally waiting for new lines. Records are filtered by
// session, component, and minimum level, and rendered back into a compact
// console line.
package logs
