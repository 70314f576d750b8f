package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"math"

	xdraw "golang.org/x/image/draw"
)

// RasterImage is one rendered page, JPEG-encoded.
type RasterImage struct {
	PageNumber int
	Width      int
	Height     int
	Data       []byte
}

// Config configures a Renderer.
type Config struct {
	// Scale multiplies the page's point size to pixels (default: 2.0).
	Scale float64 `json:"scale" yaml:"scale"`

	// JPEGQuality for the encoded output (default: 85).
	JPEGQuality int `json:"jpeg_quality" yaml:"jpeg_quality"`

	// Logger for per-page render warnings.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Scale <= 0 {
		c.Scale = 2.0
	}
	if c.JPEGQuality <= 0 || c.JPEGQuality > 100 {
		c.JPEGQuality = 85
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer draws pages onto a reusable off-screen surface and encodes them.
// A Renderer is not safe for concurrent use; run one per batch.
type Renderer struct {
	factory SurfaceFactory
	cfg     Config
	surface *Surface
}

// NewRenderer creates a Renderer with the given surface factory. A nil
// factory uses MemoryFactory.
func NewRenderer(factory SurfaceFactory, cfg Config) *Renderer {
	cfg.defaults()
	if factory == nil {
		factory = MemoryFactory{}
	}
	return &Renderer{factory: factory, cfg: cfg}
}

// Render rasterizes one 1-indexed page at the configured scale. An error is
// per-page: callers skip the page and continue the batch.
func (r *Renderer) Render(pages Pages, pageNr int) (*RasterImage, error) {
	w, h, err := pages.PointSize(pageNr)
	if err != nil {
		return nil, fmt.Errorf("page %d size: %w", pageNr, err)
	}

	px := int(math.Ceil(w * r.cfg.Scale))
	py := int(math.Ceil(h * r.cfg.Scale))

	if r.surface == nil {
		r.surface, err = r.factory.Create(px, py)
	} else {
		err = r.factory.Reset(r.surface, px, py)
	}
	if err != nil {
		return nil, fmt.Errorf("page %d surface: %w", pageNr, err)
	}

	dst := r.surface.RGBA
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	img, err := pages.Render(pageNr, r.cfg.Scale)
	if err != nil {
		return nil, fmt.Errorf("page %d render: %w", pageNr, err)
	}

	// Backend output can be off by a pixel from the ceil'd surface size;
	// scale-composite instead of blitting so edges stay clean.
	if img.Bounds().Dx() == px && img.Bounds().Dy() == py {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Over)
	} else {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: r.cfg.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("page %d encode: %w", pageNr, err)
	}

	return &RasterImage{
		PageNumber: pageNr,
		Width:      px,
		Height:     py,
		Data:       buf.Bytes(),
	}, nil
}

// Close releases the reusable surface.
func (r *Renderer) Close() {
	if r.surface != nil {
		r.factory.Destroy(r.surface)
		r.surface = nil
	}
}
