// Package export turns stylized frames into downloadable files: a single
// image, the rendered WebM animation, or a multi-page A4 PDF.
package export
