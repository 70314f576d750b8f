package pdfdoc

import (
	"log/slog"
	"time"
)

// Config configures the page analyzer.
type Config struct {
	// MaxFullParseBytes bounds full-text analysis. Sources larger than this
	// get text for page 1 only; later pages keep their image counts but an
	// empty text signature (default: 4 MB).
	MaxFullParseBytes int64 `json:"max_full_parse_bytes" yaml:"max_full_parse_bytes"`

	// PageTimeout bounds a single page scan. A page that does not finish in
	// time yields an empty-text signature instead of blocking the run
	// (default: 5s).
	PageTimeout time.Duration `json:"page_timeout" yaml:"page_timeout"`

	// Logger for per-page skip warnings.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFullParseBytes <= 0 {
		c.MaxFullParseBytes = 4 * 1024 * 1024
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
