// Package services defines shared utilities consumed by the studio pipeline and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, frame indexes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that let callers classify
//     failures (bad input, busy session, lost API key, failing tool).
//
// Use these helpers when wiring new pipeline steps so error handling and
// observability stay uniform.
package services
