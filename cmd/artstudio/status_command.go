package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"artstudio/internal/api"
	"artstudio/internal/config"
	"artstudio/internal/preflight"
	"artstudio/internal/session"
	"artstudio/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			printSection(out, "Daemon", []string{daemonStatusLine(cmd, cfg, colorize)}, colorize)
			printSection(out, "System Checks", checkLines(preflight.RunAll(cmd.Context(), cfg), colorize), colorize)
			printSection(out, "Dependencies", dependencyLines(preflight.CheckSystemDeps(cmd.Context(), cfg), colorize), colorize)
			printSection(out, "Camera", []string{cameraStatusLine(cfg, colorize)}, colorize)
			printSection(out, "Storage", storageLines(cfg, colorize), colorize)

			for _, line := range renderSectionHeader("Sessions", colorize) {
				fmt.Fprintln(out, line)
			}
			return ctx.withStore(cmd, func(store session.Store) error {
				sessions, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				counts := api.CountByStatus(sessions)
				if len(counts) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				rows := make([][]string, 0, len(counts))
				for _, key := range api.SortedStatusKeys(counts) {
					rows = append(rows, []string{key, strconv.Itoa(counts[key])})
				}
				fmt.Fprint(out, renderTable([]column{{Header: "Status"}, {Header: "Count", Align: alignRight}}, rows))
				return nil
			})
		},
	}
}

func daemonStatusLine(cmd *cobra.Command, cfg *config.Config, colorize bool) string {
	status, err := probeDaemon(cmd.Context(), cfg)
	switch {
	case err != nil:
		return renderStatusLine("artstudio", statusWarn, err.Error(), colorize)
	case status == nil:
		return renderStatusLine("artstudio", statusInfo, "Not running (start with `artstudio serve`)", colorize)
	}
	detail := fmt.Sprintf("Running (pid %d, %s storage, %d active job(s))", status.PID, status.StorageDriver, status.ActiveJobs)
	return renderStatusLine("artstudio", statusOK, detail, colorize)
}

func cameraStatusLine(cfg *config.Config, colorize bool) string {
	probe := preflight.ProbeCamera(cfg)
	if probe.Detected {
		return renderStatusLine("Camera", statusOK, probe.CameraDetail(), colorize)
	}
	return renderStatusLine("Camera", statusInfo, probe.CameraDetail(), colorize)
}

func storageLines(cfg *config.Config, colorize bool) []string {
	lines := make([]string, 0, 3)
	for _, entry := range []struct{ label, dir string }{
		{"Uploads", cfg.UploadDir()},
		{"Renders", cfg.RenderDir()},
	} {
		usage, err := staging.DirUsage(entry.dir)
		if err != nil {
			lines = append(lines, renderStatusLine(entry.label, statusWarn, err.Error(), colorize))
			continue
		}
		detail := fmt.Sprintf("%d file(s), %s in %s", usage.Files, humanize.Bytes(uint64(usage.Bytes)), usage.Dir)
		lines = append(lines, renderStatusLine(entry.label, statusInfo, detail, colorize))
	}
	retention := "Disabled (sessions are kept until removed)"
	if days := cfg.Studio.RetentionDays; days > 0 {
		retention = fmt.Sprintf("Sessions idle for %d day(s) are pruned", days)
	}
	lines = append(lines, renderStatusLine("Retention", statusInfo, retention, colorize))
	return lines
}
