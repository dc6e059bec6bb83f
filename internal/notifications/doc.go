// Package notifications pushes studio events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, and
// the generation/errors toggles in config.toml silence each event family.
package notifications
