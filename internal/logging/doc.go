// Package logging assembles structured slog loggers and formatting helpers used
// across artstudio.
//
// Console output is rendered by tint (colorized only on a terminal) and JSON
// output uses short ts/level/msg keys. NewFromConfig tees both into the
// daemon log file. Context helpers tag lines with session IDs, pipeline
// stages, frame indexes, and correlation IDs, and a no-op logger serves tests
// and wiring code that cannot fail.
package logging
