package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"artstudio/internal/config"
	"artstudio/internal/export"
	"artstudio/internal/fileutil"
	"artstudio/internal/media"
	"artstudio/internal/services"
	"artstudio/internal/session"
	"artstudio/internal/studio"
)

// pipelineOptions carries the flags shared by stylize and capture.
type pipelineOptions struct {
	style        string
	frames       int
	refine       string
	outPath      string
	pdf          bool
	skipGenerate bool
}

func (o *pipelineOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.style, "style", "s", "", "Artistic style (defaults to studio.default_style)")
	cmd.Flags().StringVar(&o.refine, "refine", "", "Follow-up instructions applied to the first stylized frame")
	cmd.Flags().StringVarP(&o.outPath, "out", "o", "", "Output file or directory (defaults to the current directory)")
	cmd.Flags().BoolVar(&o.pdf, "pdf", false, "Also export every stylized frame as an A4 PDF")
}

func newStylizeCommand(ctx *commandContext) *cobra.Command {
	opts := &pipelineOptions{}
	cmd := &cobra.Command{
		Use:   "stylize <file>",
		Short: "Restyle an image or frames sampled from a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve input: %w", err)
			}
			file, err := os.Open(path)
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer file.Close()

			return runPipeline(cmd, ctx, cfg, opts, func(c context.Context, rt *studioRuntime, id string) (*session.Session, error) {
				return rt.studio.UploadMedia(c, id, filepath.Base(path), "", file)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVarP(&opts.frames, "frames", "n", 0, "Frames to sample from a video (defaults to studio.default_frame_count)")
	return cmd
}

func newCaptureCommand(ctx *commandContext) *cobra.Command {
	opts := &pipelineOptions{}
	var device string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Take a photo with the local camera and restyle it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(device) == "" {
				device = cfg.Studio.CameraDevice
			}
			return runPipeline(cmd, ctx, cfg, opts, func(c context.Context, rt *studioRuntime, id string) (*session.Session, error) {
				frame, err := media.CapturePhoto(c, cfg.FFmpegBinary(), device)
				if err != nil {
					return nil, err
				}
				return rt.studio.CapturePhoto(c, id, frame)
			})
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&device, "device", "", "Capture device (defaults to studio.camera_device)")
	cmd.Flags().BoolVar(&opts.skipGenerate, "no-generate", false, "Only capture; leave the photo in a new session")
	return cmd
}

type mediaLoader func(ctx context.Context, rt *studioRuntime, id string) (*session.Session, error)

// runPipeline drives one session through load, extract, generate, refine
// and export, printing each step.
func runPipeline(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, opts *pipelineOptions, load mediaLoader) error {
	out := cmd.OutOrStdout()
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}

	rt, err := newStudioRuntime(runCtx, cfg, ctx.cliLogger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer rt.Close()

	sess, err := rt.studio.NewSession(runCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Session %s\n", sess.ID)

	if sess, err = load(runCtx, rt, sess.ID); err != nil {
		return explain(err)
	}
	if sess.MediaType == session.MediaVideo {
		n := cfg.ClampFrameCount(opts.frames)
		fmt.Fprintf(out, "Extracting %d frames from %s\n", n, sess.SourceName)
		if sess, err = rt.studio.ExtractFrames(runCtx, sess.ID, n); err != nil {
			return explain(err)
		}
	}
	if opts.skipGenerate {
		fmt.Fprintf(out, "Captured %d frame(s); run `artstudio sessions show %s` to inspect\n", sess.CapturedCount, sess.ID)
		return nil
	}

	style := rt.studio.ResolveStyle(opts.style)
	fmt.Fprintf(out, "Painting %d frame(s) as %q\n", sess.CapturedCount, style)
	if sess, err = rt.studio.Generate(runCtx, sess.ID, style); err != nil {
		return explain(err)
	}
	if instructions := strings.TrimSpace(opts.refine); instructions != "" {
		fmt.Fprintln(out, "Refining first frame")
		if _, err = rt.studio.Refine(runCtx, sess.ID, instructions); err != nil {
			return explain(err)
		}
	}

	artifact, err := rt.studio.Result(runCtx, sess.ID)
	if err != nil {
		return err
	}
	written, err := writeArtifact(artifact, opts.outPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", written)

	if opts.pdf {
		pdfPath, err := writePDF(runCtx, rt.studio, sess.ID, pdfTarget(opts.outPath, written))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", pdfPath)
	}
	return nil
}

// explain adds the user-facing hint for credential failures.
func explain(err error) error {
	if err == nil {
		return nil
	}
	if services.NeedsReauth(err) {
		return fmt.Errorf("%w (check GEMINI_API_KEY or gemini.api_key)", err)
	}
	return err
}

// resolveOutput picks where a file named name should land given the --out
// value: empty means the current directory, an existing directory (or a
// path ending in a separator) receives name, anything else is used as is.
func resolveOutput(outPath, name string) (string, error) {
	outPath = strings.TrimSpace(outPath)
	if outPath == "" {
		return name, nil
	}
	expanded, err := config.ExpandPath(outPath)
	if err != nil {
		return "", err
	}
	if strings.HasSuffix(outPath, string(os.PathSeparator)) {
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return filepath.Join(expanded, name), nil
	}
	if info, err := os.Stat(expanded); err == nil && info.IsDir() {
		return filepath.Join(expanded, name), nil
	}
	return expanded, nil
}

func writeArtifact(artifact export.Artifact, outPath string) (string, error) {
	dest, err := resolveOutput(outPath, artifact.FileName)
	if err != nil {
		return "", err
	}
	if err := ensureParent(dest); err != nil {
		return "", err
	}
	if artifact.IsAnimation() {
		err = fileutil.CopyFile(artifact.Path, dest)
	} else {
		err = fileutil.WriteFileAtomic(dest, artifact.Data)
	}
	if err != nil {
		return "", fmt.Errorf("write result: %w", err)
	}
	return dest, nil
}

// pdfTarget keeps the PDF next to the result when --out named a file.
func pdfTarget(outPath, written string) string {
	if strings.TrimSpace(outPath) == "" {
		return ""
	}
	if info, err := os.Stat(written); err == nil && !info.IsDir() {
		dir := filepath.Dir(written)
		if dir == "." {
			return ""
		}
		return dir + string(os.PathSeparator)
	}
	return outPath
}

func writePDF(ctx context.Context, st *studio.Studio, id, outPath string) (string, error) {
	var buf bytes.Buffer
	name, err := st.ExportPDF(ctx, id, &buf)
	if err != nil {
		return "", err
	}
	dest, err := resolveOutput(outPath, name)
	if err != nil {
		return "", err
	}
	if err := ensureParent(dest); err != nil {
		return "", err
	}
	if err := fileutil.WriteFileAtomic(dest, buf.Bytes()); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return dest, nil
}

func ensureParent(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}
