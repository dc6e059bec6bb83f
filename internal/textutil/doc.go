// Package textutil normalises user-facing strings: filename slugs with
// accents folded, filesystem-safe names, and case-insensitive matching of
// style names.
package textutil
