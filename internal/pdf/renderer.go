// Package pdf renders document pages to canonical raster images using
// go-fitz (MuPDF).
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"

	"github.com/docufield/field-extractor/internal/domain"
)

// baseDPI is the PDF native render resolution; the configured scale factor
// is applied on top of it.
const baseDPI = 72.0

// Renderer converts PDF pages to in-memory PNG images at a fixed scale.
// It is stateless and safe for concurrent use; every call opens the
// document from the supplied bytes.
type Renderer struct {
	scale float64
}

// NewRenderer creates a renderer with the given upscaling factor. A
// non-positive scale falls back to 2.0, the default chosen to improve
// recognition accuracy over the native resolution.
func NewRenderer(scale float64) *Renderer {
	if scale <= 0 {
		scale = 2.0
	}
	return &Renderer{scale: scale}
}

// Scale returns the configured upscaling factor.
func (r *Renderer) Scale() float64 {
	return r.scale
}

// PageCount returns the number of pages in the document.
func (r *Renderer) PageCount(data []byte) (int, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return 0, domain.RenderError("failed to open PDF", err)
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// RenderPage rasterizes the page at the given 0-based index to a PNG. The
// output dimensions are deterministic for a given page and scale.
func (r *Renderer) RenderPage(ctx context.Context, data []byte, pageIndex int) (*domain.PageImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.RenderError("failed to open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageIndex < 0 || pageIndex >= pageCount {
		return nil, domain.InvalidPageError(
			fmt.Sprintf("page index %d outside [0, %d)", pageIndex, pageCount), nil)
	}

	img, err := doc.ImageDPI(pageIndex, baseDPI*r.scale)
	if err != nil {
		return nil, domain.RenderError(fmt.Sprintf("failed to rasterize page %d", pageIndex+1), err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, domain.RenderError(fmt.Sprintf("failed to encode page %d as PNG", pageIndex+1), err)
	}

	bounds := img.Bounds()
	return &domain.PageImage{
		PageNumber: pageIndex + 1,
		PNG:        buf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
	}, nil
}

// PageText extracts the text layer of the page at the given 0-based index.
// Scanned pages without a text layer yield an empty string.
func (r *Renderer) PageText(data []byte, pageIndex int) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", domain.RenderError("failed to open PDF", err)
	}
	defer doc.Close()

	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return "", domain.InvalidPageError(
			fmt.Sprintf("page index %d outside [0, %d)", pageIndex, doc.NumPage()), nil)
	}

	text, err := doc.Text(pageIndex)
	if err != nil {
		return "", domain.RenderError(fmt.Sprintf("failed to extract text from page %d", pageIndex+1), err)
	}
	return text, nil
}

// CheckPDF verifies that the bytes look like a PDF document. Used by
// adapters before handing uploads to the pipeline.
func CheckPDF(data []byte) error {
	if len(data) == 0 {
		return domain.ValidationError("empty document", nil)
	}
	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		return domain.ValidationError("not a PDF document", nil)
	}
	return nil
}
