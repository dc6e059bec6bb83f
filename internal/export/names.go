package export

import (
	"fmt"
	"strings"
	"time"

	"artstudio/internal/textutil"
)

// ImageFileName returns art-<ms>.<ext>.
func ImageFileName(ext string, at time.Time) string {
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "png"
	}
	return fmt.Sprintf("art-%d.%s", at.UnixMilli(), ext)
}

// AnimationFileName returns art-animation-<ms>.webm.
func AnimationFileName(at time.Time) string {
	return fmt.Sprintf("art-animation-%d.webm", at.UnixMilli())
}

// PDFFileName returns art-studio-export-<ms>.pdf.
func PDFFileName(at time.Time) string {
	return fmt.Sprintf("art-studio-export-%d.pdf", at.UnixMilli())
}

// LabeledFileName inserts a slug of label before the timestamp, turning
// art-<ms>.png into art-<label>-<ms>.png. Empty labels leave name unchanged.
func LabeledFileName(name, label string) string {
	slug := textutil.Slug(label, "")
	if slug == "" {
		return name
	}
	prefix, rest, ok := strings.Cut(name, "-")
	if !ok {
		return slug + "-" + name
	}
	return prefix + "-" + slug + "-" + rest
}
