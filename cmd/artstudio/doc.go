// Package main hosts the artstudio CLI entrypoint and command graph.
//
// `artstudio serve` runs the daemon: the HTTP API plus the embedded browser
// UI. The remaining commands work directly against the configured session
// store, so a one-shot `artstudio stylize photo.jpg` needs no daemon at all.
package main
