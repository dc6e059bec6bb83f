package studio

import (
	"context"
	"io"

	"artstudio/internal/export"
	"artstudio/internal/services"
	"artstudio/internal/session"
)

// Result returns the artifact to display or download: the single stylized
// image, or the rendered animation for multi-frame sessions.
func (s *Studio) Result(ctx context.Context, id string) (export.Artifact, error) {
	sess, err := s.lookup(ctx, id)
	if err != nil {
		return export.Artifact{}, err
	}
	frames, err := s.store.Frames(ctx, id, session.KindStylized)
	if err != nil {
		return export.Artifact{}, err
	}
	return export.Download(frames, sess.AnimationPath, s.now())
}

// ExportPDF writes every stylized frame of the session as a PDF page to w
// and returns the suggested file name.
func (s *Studio) ExportPDF(ctx context.Context, id string, w io.Writer) (string, error) {
	if _, err := s.lookup(ctx, id); err != nil {
		return "", err
	}
	frames, err := s.store.Frames(ctx, id, session.KindStylized)
	if err != nil {
		return "", err
	}
	if len(frames) == 0 {
		return "", services.Wrap(services.ErrNotFound, "export", "pdf", "no stylized frames yet", nil)
	}
	now := s.now()
	opts := export.PDFOptions{
		MarginMM:  s.cfg.Export.PDFMarginMM,
		Caption:   s.cfg.Export.PDFCaption,
		CreatedAt: now,
	}
	if err := export.WritePDF(w, frames, opts); err != nil {
		return "", err
	}
	return export.PDFFileName(now), nil
}
