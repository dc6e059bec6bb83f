package gemini

import (
	"fmt"
	"strings"
)

// StylePrompt builds the instruction used to restyle a frame.
func StylePrompt(style, imageSize string) string {
	if imageSize == "" {
		imageSize = "1K"
	}
	return fmt.Sprintf(
		"Transform this image into a high-quality %s professional artwork. Preserve subjects but apply the artistic medium strictly. Resolution: %s. Professional finish.",
		strings.TrimSpace(style), imageSize,
	)
}

// RefinePrompt builds the instruction used to adjust an already stylized frame.
func RefinePrompt(instructions string) string {
	return fmt.Sprintf(
		"Modify this image using these instructions: %s. Keep the style consistent.",
		strings.TrimSpace(instructions),
	)
}
