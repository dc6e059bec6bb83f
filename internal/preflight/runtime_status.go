package preflight

import (
	"fmt"
	"os"
	"runtime"

	"artstudio/internal/config"
	"artstudio/internal/media"
)

// CameraProbe reports whether the configured capture device looks usable.
type CameraProbe struct {
	Detected bool
	Format   string
	Device   string
}

// ProbeCamera resolves the platform capture device. On Linux the v4l2 node
// must exist; other platforms enumerate devices inside ffmpeg, so the probe
// only reports what would be opened.
func ProbeCamera(cfg *config.Config) CameraProbe {
	device := ""
	if cfg != nil {
		device = cfg.Studio.CameraDevice
	}
	format, input := media.CaptureInput(runtime.GOOS, device)
	probe := CameraProbe{Format: format, Device: input}
	if format != "v4l2" {
		probe.Detected = true
		return probe
	}
	if info, err := os.Stat(input); err == nil && info.Mode()&os.ModeDevice != 0 {
		probe.Detected = true
	}
	return probe
}

// CameraDetail renders a display-friendly summary for status UIs.
func (p CameraProbe) CameraDetail() string {
	if !p.Detected {
		return fmt.Sprintf("No camera at %s", p.Device)
	}
	return fmt.Sprintf("%s via %s", p.Device, p.Format)
}
