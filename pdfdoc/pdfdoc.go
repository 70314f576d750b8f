// Package pdfdoc opens work-order PDF packages and derives per-page
// signatures for classification.
//
// A signature carries the page's concatenated text runs (lowercased), the
// text length, and the number of image-paint operations found in the page's
// content stream. Signatures are the only thing downstream classification
// sees; the raster pipeline decodes the document independently.
package pdfdoc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	// ErrCorrupt means the byte stream could not be parsed as a PDF, even
	// with relaxed validation.
	ErrCorrupt = errors.New("pdfdoc: corrupt document")

	// ErrEmpty means the document parsed but contains zero pages.
	ErrEmpty = errors.New("pdfdoc: document has no pages")
)

// Document is a decoded PDF. It is created per extraction run and released
// once all selected pages are rasterized.
type Document struct {
	ctx *model.Context

	// SourcePath is informational; Load never touches the filesystem.
	SourcePath string

	raw []byte

	// hasImageStreams is the document-wide image signal for contexts opened
	// without an optimize pass (ctx.Optimize == nil), where per-page image
	// XObject lookups are unavailable.
	hasImageStreams bool
}

// Load decodes a PDF from a byte buffer. Pure decode, no side effects.
//
// Scanned field packages frequently arrive with damaged cross-reference
// tables, so a failed strict parse is retried with relaxed validation. The
// optimize pass additionally decodes every page's content stream, which
// means a single corrupt page would fail the whole document there; when both
// optimized opens fail, the document is opened once more without optimize so
// per-page analysis can skip the bad pages and keep the rest.
func Load(data []byte) (*Document, error) {
	ctx, err := readContext(data, model.ValidationStrict)
	if err != nil {
		ctx, err = readContext(data, model.ValidationRelaxed)
	}
	if err != nil {
		ctx, err = readContextNoOptimize(data, model.ValidationRelaxed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if ctx.PageCount == 0 {
		return nil, ErrEmpty
	}
	d := &Document{ctx: ctx, raw: data}
	if ctx.Optimize == nil {
		d.hasImageStreams = scanImageStreams(ctx)
	}
	return d, nil
}

func readContext(data []byte, mode int) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = mode
	return api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
}

func readContextNoOptimize(data []byte, mode int) (*model.Context, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = mode
	return api.ReadAndValidate(bytes.NewReader(data), conf)
}

// scanImageStreams reports whether the XRef table holds any image-subtype
// stream object. Coarser than the per-page lookup but available without the
// optimize pass.
func scanImageStreams(ctx *model.Context) bool {
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Bytes returns the raw source bytes the document was loaded from.
func (d *Document) Bytes() []byte {
	return d.raw
}

// Size returns the source size in bytes.
func (d *Document) Size() int64 {
	return int64(len(d.raw))
}

// pageContent returns the decoded content stream for a 1-indexed page.
func (d *Document) pageContent(pageNr int) ([]byte, error) {
	r, err := pdfcpu.ExtractPageContent(d.ctx, pageNr)
	if err != nil {
		return nil, fmt.Errorf("page %d content: %w", pageNr, err)
	}
	if r == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("page %d content read: %w", pageNr, err)
	}
	return buf.Bytes(), nil
}

// imageObjCount returns the number of image XObjects referenced by a page.
// On a degraded open (no optimize pass) the per-page lookup is unavailable;
// Do paints in the page's own content stream stand in for the count, gated
// on the document carrying image streams at all.
func (d *Document) imageObjCount(pageNr int, stream []byte) int {
	if d.ctx.Optimize != nil {
		return len(pdfcpu.ImageObjNrs(d.ctx, pageNr))
	}
	if !d.hasImageStreams {
		return 0
	}
	return countDoOps(stream)
}
