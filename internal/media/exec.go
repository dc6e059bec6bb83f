package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

func runFFmpeg(ctx context.Context, binary, op string, args ...string) error {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	base := []string{"-y", "-hide_banner", "-loglevel", "error"}
	cmd := exec.CommandContext(ctx, binary, append(base, args...)...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", op, err, strings.TrimSpace(string(output)))
	}
	return nil
}
