package export

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"artstudio/internal/services"
	"artstudio/internal/session"
)

const (
	captionFontSize = 8
	captionOffsetMM = 10
	// captionReserveMM keeps the caption line on the page when an image is
	// tall enough to be shrunk.
	captionReserveMM = captionOffsetMM + 5
)

// PDFOptions controls page layout.
type PDFOptions struct {
	MarginMM float64
	Caption  string
	// CreatedAt pins the document creation date; zero uses the current time.
	CreatedAt time.Time
}

// Placement is where one frame lands on its page, in millimetres.
type Placement struct {
	X, Y          float64
	Width, Height float64
	CaptionY      float64
}

// Layout computes the image box for an image of imgW x imgH on a page of
// pageW x pageH. Width fills the page between margins and height follows the
// aspect ratio; images too tall for the page are shrunk to fit.
func Layout(pageW, pageH, margin float64, imgW, imgH float64) Placement {
	width := pageW - 2*margin
	height := width
	if imgW > 0 && imgH > 0 {
		height = width * (imgH / imgW)
	}
	if maxHeight := pageH - 2*margin - captionReserveMM; height > maxHeight && maxHeight > 0 {
		width = width * (maxHeight / height)
		height = maxHeight
	}
	return Placement{
		X:        margin,
		Y:        margin,
		Width:    width,
		Height:   height,
		CaptionY: margin + height + captionOffsetMM,
	}
}

// Caption returns the footer text for 1-based page.
func Caption(caption string, page int) string {
	if caption == "" {
		return "Page " + strconv.Itoa(page)
	}
	return fmt.Sprintf("%s - Page %d", caption, page)
}

// WritePDF renders one frame per A4 portrait page to w.
func WritePDF(w io.Writer, frames []session.Frame, opts PDFOptions) error {
	if len(frames) == 0 {
		return services.Wrap(services.ErrValidation, "export", "pdf", "no stylized frames to export", nil)
	}
	created := opts.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(opts.MarginMM, opts.MarginMM, opts.MarginMM)
	pdf.SetCreator("artstudio", true)
	pdf.SetTitle(opts.Caption, true)
	pdf.SetCreationDate(created)
	pdf.SetFont("Helvetica", "", captionFontSize)
	translate := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, pageH := pdf.GetPageSize()

	for i, frame := range frames {
		imageType, err := pdfImageType(frame.MimeType)
		if err != nil {
			return services.Wrap(services.ErrValidation, "export", "pdf", fmt.Sprintf("frame %d", i), err)
		}
		name := "frame-" + strconv.Itoa(i)
		options := fpdf.ImageOptions{ImageType: imageType}
		info := pdf.RegisterImageOptionsReader(name, options, bytes.NewReader(frame.Data))
		if pdf.Err() {
			return fmt.Errorf("export pdf: frame %d: %w", i, pdf.Error())
		}
		place := Layout(pageW, pageH, opts.MarginMM, info.Width(), info.Height())

		pdf.AddPage()
		pdf.ImageOptions(name, place.X, place.Y, place.Width, place.Height, false, options, 0, "")
		pdf.Text(place.X, place.CaptionY, translate(Caption(opts.Caption, i+1)))
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export pdf: %w", err)
	}
	return nil
}

func pdfImageType(mime string) (string, error) {
	switch mime {
	case "image/png":
		return "PNG", nil
	case "image/jpeg", "image/jpg":
		return "JPG", nil
	case "image/gif":
		return "GIF", nil
	default:
		return "", fmt.Errorf("unsupported image type %q for PDF", mime)
	}
}
