// Package raster validates statement PDFs and renders their pages to PNG.
package raster

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Rasterizer renders PDF pages at a fixed resolution.
type Rasterizer struct {
	DPI float64
}

// New returns a Rasterizer rendering at dpi.
func New(dpi float64) *Rasterizer {
	return &Rasterizer{DPI: dpi}
}

// Inspect validates the file in relaxed mode and returns its page count.
func (r *Rasterizer) Inspect(path string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		return 0, fmt.Errorf("failed to validate PDF: %w", err)
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// Open loads a PDF for rendering. The returned Document is not safe for
// concurrent use.
func (r *Rasterizer) Open(path string) (*Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return &Document{doc: doc, dpi: r.DPI}, nil
}

// Rotate turns a PNG clockwise by a multiple of 90 degrees.
func (r *Rasterizer) Rotate(data []byte, degrees int) ([]byte, error) {
	return RotateClockwise(data, degrees)
}

// Document is an open PDF.
type Document struct {
	doc *fitz.Document
	dpi float64
}

// NumPage returns the number of pages MuPDF sees.
func (d *Document) NumPage() int {
	return d.doc.NumPage()
}

// RenderPNG renders the zero-based page index.
func (d *Document) RenderPNG(index int) ([]byte, error) {
	img, err := d.doc.ImageDPI(index, d.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", index+1, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page %d as PNG: %w", index+1, err)
	}
	return buf.Bytes(), nil
}

func (d *Document) Close() error {
	return d.doc.Close()
}
