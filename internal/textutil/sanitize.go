package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// FoldAccents decomposes value and drops combining marks, so "Pintura Óleo"
// becomes "Pintura Oleo".
func FoldAccents(value string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return out
}

// Slug converts value into a lowercase ASCII token joined by hyphens.
// Returns fallback when nothing usable remains.
func Slug(value, fallback string) string {
	folded := strings.ToLower(FoldAccents(strings.TrimSpace(value)))
	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		default:
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return fallback
	}
	return b.String()
}

var folder = cases.Fold()

// EqualFold compares two strings after Unicode case folding and accent folding.
func EqualFold(a, b string) bool {
	return folder.String(FoldAccents(strings.TrimSpace(a))) == folder.String(FoldAccents(strings.TrimSpace(b)))
}

// MatchOption returns the entry of options equal to value under EqualFold.
func MatchOption(value string, options []string) (string, bool) {
	for _, option := range options {
		if EqualFold(value, option) {
			return option, true
		}
	}
	return "", false
}
