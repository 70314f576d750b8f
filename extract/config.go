package extract

import (
	"log/slog"

	"github.com/gridlane/workpack/classify"
	"github.com/gridlane/workpack/pdfdoc"
	"github.com/gridlane/workpack/raster"
)

// Config tunes one orchestrator. Zero value gets production defaults.
type Config struct {
	// Per-category rasterization caps. Classification is unbounded; only
	// rasterization is capped, to bound worst-case latency and storage.
	MaxDrawings int `json:"max_drawings" yaml:"max_drawings"`
	MaxMaps     int `json:"max_maps" yaml:"max_maps"`
	MaxPhotos   int `json:"max_photos" yaml:"max_photos"`

	// TempDir receives rasterized pages before upload. Empty means the
	// system temp directory.
	TempDir string `json:"temp_dir" yaml:"temp_dir"`

	Analyzer   pdfdoc.Config       `json:"analyzer" yaml:"analyzer"`
	Thresholds classify.Thresholds `json:"thresholds" yaml:"thresholds"`
	Raster     raster.Config       `json:"raster" yaml:"raster"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxDrawings == 0 {
		c.MaxDrawings = 5
	}
	if c.MaxMaps == 0 {
		c.MaxMaps = 3
	}
	if c.MaxPhotos == 0 {
		c.MaxPhotos = 15
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
