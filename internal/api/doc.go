// Package api defines wire-format types and converters for the HTTP API. It
// translates internal session models into transport-friendly DTOs that the
// browser UI and the CLI can render without coupling to internal types.
//
// DTOs use camelCase JSON tags for JavaScript consumers. Frame payloads are
// never inlined: sessions carry URLs that serve each frame as raw image bytes.
// Timestamps use RFC3339 with milliseconds.
package api
