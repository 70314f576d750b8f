package raster

import (
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// ErrBackendUnavailable means the native raster library cannot decode
// documents on this host. Extraction runs short-circuit to an empty,
// successful result instead of failing jobs for the process lifetime.
var ErrBackendUnavailable = errors.New("raster: backend unavailable")

// Backend is the injected page-decode capability. It is an explicit
// constructor dependency of the orchestrator rather than a lazily probed
// process-wide flag.
type Backend interface {
	// Open decodes a document for rendering. The returned handle is not
	// safe for concurrent use; concurrent batches must Open independently.
	Open(data []byte) (Pages, error)
}

// Pages is an open document handle for rendering.
type Pages interface {
	PageCount() int
	// PointSize returns the page's logical size in PDF points (1-indexed).
	PointSize(pageNr int) (w, h float64, err error)
	// Render rasterizes a page at the given scale (1-indexed).
	Render(pageNr int, scale float64) (image.Image, error)
	Close() error
}

// FitzBackend decodes pages with MuPDF via go-fitz.
type FitzBackend struct{}

func (FitzBackend) Open(data []byte) (Pages, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("fitz open: %w", err)
	}
	return &fitzPages{doc: doc}, nil
}

type fitzPages struct {
	doc *fitz.Document
}

func (p *fitzPages) PageCount() int {
	return p.doc.NumPage()
}

func (p *fitzPages) PointSize(pageNr int) (float64, float64, error) {
	bound, err := p.doc.Bound(pageNr - 1)
	if err != nil {
		return 0, 0, fmt.Errorf("fitz bound page %d: %w", pageNr, err)
	}
	return float64(bound.Dx()), float64(bound.Dy()), nil
}

func (p *fitzPages) Render(pageNr int, scale float64) (image.Image, error) {
	// go-fitz renders by DPI; PDF points are 1/72 inch.
	img, err := p.doc.ImageDPI(pageNr-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("fitz render page %d: %w", pageNr, err)
	}
	return img, nil
}

func (p *fitzPages) Close() error {
	return p.doc.Close()
}

// probePDF is a minimal one-page document used to verify the backend can
// decode at all on this host.
const probePDF = "%PDF-1.4\n" +
	"1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n" +
	"2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n" +
	"3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >>\nendobj\n" +
	"xref\n0 4\n" +
	"0000000000 65535 f \n" +
	"0000000009 00000 n \n" +
	"0000000058 00000 n \n" +
	"0000000115 00000 n \n" +
	"trailer\n<< /Size 4 /Root 1 0 R >>\nstartxref\n184\n%%EOF\n"

// Probe opens and closes a trivial document to check whether the backend's
// native library works on this host. Returns ErrBackendUnavailable on
// failure.
func Probe(b Backend) error {
	pages, err := b.Open([]byte(probePDF))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer pages.Close()
	if pages.PageCount() < 1 {
		return fmt.Errorf("%w: probe document has no pages", ErrBackendUnavailable)
	}
	return nil
}
