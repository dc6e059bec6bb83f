package export

import (
	"os"
	"strings"
	"time"

	"artstudio/internal/services"
	"artstudio/internal/session"
)

// Artifact is a file ready to hand to the user. Exactly one of Data or Path
// is set.
type Artifact struct {
	FileName string
	MimeType string
	Data     []byte
	Path     string
}

// IsAnimation reports whether the artifact is the rendered WebM.
func (a Artifact) IsAnimation() bool {
	return a.Path != ""
}

// Download picks what a session offers for download: its single stylized
// image, or the rendered animation when there are several frames.
func Download(frames []session.Frame, animationPath string, at time.Time) (Artifact, error) {
	switch {
	case len(frames) == 0:
		return Artifact{}, services.Wrap(services.ErrNotFound, "export", "download", "no result yet", nil)
	case len(frames) == 1:
		frame := frames[0]
		return Artifact{
			FileName: ImageFileName(frame.Extension(), at),
			MimeType: frame.MimeType,
			Data:     frame.Data,
		}, nil
	}
	animationPath = strings.TrimSpace(animationPath)
	if animationPath == "" {
		return Artifact{}, services.Wrap(services.ErrNotFound, "export", "download", "animation not rendered", nil)
	}
	if _, err := os.Stat(animationPath); err != nil {
		return Artifact{}, services.Wrap(services.ErrNotFound, "export", "download", "animation missing on disk", err)
	}
	return Artifact{
		FileName: AnimationFileName(at),
		MimeType: "video/webm",
		Path:     animationPath,
	}, nil
}
