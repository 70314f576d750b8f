// Package raster renders PDF pages to JPEG images through an off-screen
// surface abstraction, independent of the concrete decode backend.
package raster

import (
	"fmt"
	"image"
)

// Surface is an off-screen drawing target. Surfaces are reused across pages
// of a batch so large documents do not churn allocations.
type Surface struct {
	RGBA *image.RGBA
}

// SurfaceFactory allocates and releases drawing surfaces. Implementations
// must support reacquiring a drawing context after a resize (Reset) and
// explicit release (Destroy) so batches do not retain stale buffers.
type SurfaceFactory interface {
	Create(width, height int) (*Surface, error)
	Reset(s *Surface, width, height int) error
	Destroy(s *Surface)
}

// MemoryFactory is the default SurfaceFactory backed by plain RGBA buffers.
type MemoryFactory struct{}

// maxSurfacePixels guards against absurd MediaBox values in malformed
// scans producing multi-gigabyte allocations.
const maxSurfacePixels = 64 << 20

func (MemoryFactory) Create(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("raster: invalid surface size %dx%d", width, height)
	}
	if width*height > maxSurfacePixels {
		return nil, fmt.Errorf("raster: surface %dx%d exceeds pixel budget", width, height)
	}
	return &Surface{RGBA: image.NewRGBA(image.Rect(0, 0, width, height))}, nil
}

func (f MemoryFactory) Reset(s *Surface, width, height int) error {
	if s.RGBA != nil {
		b := s.RGBA.Bounds()
		if b.Dx() == width && b.Dy() == height {
			// Same size: clear in place instead of reallocating.
			clear(s.RGBA.Pix)
			return nil
		}
	}
	fresh, err := f.Create(width, height)
	if err != nil {
		return err
	}
	s.RGBA = fresh.RGBA
	return nil
}

func (MemoryFactory) Destroy(s *Surface) {
	s.RGBA = nil
}
