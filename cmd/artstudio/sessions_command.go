package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"artstudio/internal/api"
	"artstudio/internal/services"
	"artstudio/internal/session"
)

const shortIDLength = 8

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect and remove studio sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCommand(ctx))
	sessionsCmd.AddCommand(newSessionsShowCommand(ctx))
	sessionsCmd.AddCommand(newSessionsRemoveCommand(ctx))
	sessionsCmd.AddCommand(newSessionsClearCommand(ctx))
	sessionsCmd.AddCommand(newSessionsPruneCommand(ctx))
	return sessionsCmd
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]session.Status, 0, len(statusFilters))
			for _, value := range statusFilters {
				status, ok := session.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(cmd, func(store session.Store) error {
				sessions, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.SessionListResponse{Sessions: api.FromSessions(sessions)})
				}
				out := cmd.OutOrStdout()
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions")
					return nil
				}
				fmt.Fprint(out, renderTable(sessionColumns(), sessionRows(sessions)))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFilters, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(store session.Store) error {
				id, err := resolveSessionID(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				sess, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.SessionResponse{Session: api.FromSession(sess)})
				}
				printSessionDetail(cmd, sess)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON")
	return cmd
}

func newSessionsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>...",
		Aliases: []string{"rm"},
		Short:   "Remove sessions and their files",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rt, err := newStudioRuntime(cmd.Context(), cfg, ctx.cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			for _, arg := range args {
				id, err := resolveSessionID(cmd.Context(), rt.store, arg)
				if err != nil {
					return err
				}
				if err := rt.studio.Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("remove %s: %w", arg, err)
				}
				fmt.Fprintf(out, "Removed session %s\n", id)
			}
			return nil
		},
	}
}

func newSessionsClearCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to remove every session without --yes")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rt, err := newStudioRuntime(cmd.Context(), cfg, ctx.cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer rt.Close()

			removed, err := rt.studio.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removal")
	return cmd
}

func newSessionsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove stale sessions and orphaned media files",
		Long: "Remove sessions untouched for longer than --older-than (default: studio.retention_days) " +
			"and delete upload or render files no session references.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.Retention()
			}
			rt, err := newStudioRuntime(cmd.Context(), cfg, ctx.cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.studio.Prune(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d session(s) and %d orphaned file(s)\n", result.Sessions, result.Files)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove sessions not updated within this duration (e.g. 72h)")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var pdf bool
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Save a session's result (image or WebM) and optionally its PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rt, err := newStudioRuntime(cmd.Context(), cfg, ctx.cliLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer rt.Close()

			id, err := resolveSessionID(cmd.Context(), rt.store, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			artifact, err := rt.studio.Result(cmd.Context(), id)
			if err != nil {
				return err
			}
			written, err := writeArtifact(artifact, outPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Wrote %s\n", written)
			if pdf {
				pdfPath, err := writePDF(cmd.Context(), rt.studio, id, pdfTarget(outPath, written))
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", pdfPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file or directory (defaults to the current directory)")
	cmd.Flags().BoolVar(&pdf, "pdf", false, "Also export every stylized frame as an A4 PDF")
	return cmd
}

// resolveSessionID accepts a full id or an unambiguous prefix of one.
func resolveSessionID(ctx context.Context, store session.Store, arg string) (string, error) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" {
		return "", services.Wrap(services.ErrValidation, "cli", "session id", "session id is required", nil)
	}
	if sess, err := store.Get(ctx, arg); err == nil {
		return sess.ID, nil
	} else if !errors.Is(err, session.ErrNotFound) && !errors.Is(err, services.ErrNotFound) && !errors.Is(err, services.ErrValidation) {
		return "", err
	}
	sessions, err := store.List(ctx)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, sess := range sessions {
		if strings.HasPrefix(sess.ID, arg) {
			matches = append(matches, sess.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("session %q not found", arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("session prefix %q is ambiguous (%d matches)", arg, len(matches))
	}
}

func sessionColumns() []column {
	return []column{
		{Header: "ID"},
		{Header: "Status"},
		{Header: "Media"},
		{Header: "Style", Width: 24},
		{Header: "Captured", Align: alignRight},
		{Header: "Stylized", Align: alignRight},
		{Header: "Updated"},
	}
}

func sessionRows(sessions []*session.Session) [][]string {
	rows := make([][]string, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, []string{
			shortID(sess.ID),
			string(sess.Status),
			string(sess.MediaType),
			sess.Style,
			strconv.Itoa(sess.CapturedCount),
			strconv.Itoa(sess.StylizedCount),
			formatTime(sess.UpdatedAt),
		})
	}
	return rows
}

func printSessionDetail(cmd *cobra.Command, sess *session.Session) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:        %s\n", sess.ID)
	fmt.Fprintf(out, "Status:    %s\n", sess.Status)
	if sess.Status.IsProcessing() && sess.ProgressMessage != "" {
		fmt.Fprintf(out, "Progress:  %s (%.0f%%)\n", sess.ProgressMessage, sess.ProgressPercent)
	}
	fmt.Fprintf(out, "Media:     %s\n", sess.MediaType)
	if sess.SourceName != "" {
		fmt.Fprintf(out, "Source:    %s (%s)\n", sess.SourceName, sess.SourceMime)
	}
	if sess.Style != "" {
		fmt.Fprintf(out, "Style:     %s\n", sess.Style)
	}
	fmt.Fprintf(out, "Captured:  %d\n", sess.CapturedCount)
	fmt.Fprintf(out, "Stylized:  %d\n", sess.StylizedCount)
	if sess.HasAnimation() {
		fmt.Fprintf(out, "Animation: %s\n", sess.AnimationPath)
	}
	if sess.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", sess.ErrorMessage)
	}
	if sess.NeedsReauth {
		fmt.Fprintf(out, "Reauth:    %s (select a new API key)\n", yesNo(true))
	}
	fmt.Fprintf(out, "Created:   %s\n", formatTime(sess.CreatedAt))
	fmt.Fprintf(out, "Updated:   %s\n", formatTime(sess.UpdatedAt))
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
