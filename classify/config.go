package classify

// Thresholds hold the text-length cut-offs the density heuristics compare
// against. The defaults were tuned empirically against one utility's
// document corpus; treat them as configuration to re-validate per corpus,
// not as invariants.
type Thresholds struct {
	// MapShortTextLen is the upper text length for the map density rule.
	MapShortTextLen int `json:"map_short_text_len" yaml:"map_short_text_len"`

	// PhotoImageHeavyTextLen is the upper text length for image-heavy pages
	// treated as photos.
	PhotoImageHeavyTextLen int `json:"photo_image_heavy_text_len" yaml:"photo_image_heavy_text_len"`

	// PhotoImageOnlyTextLen is the upper text length for near-empty pages
	// treated as image-only photos.
	PhotoImageOnlyTextLen int `json:"photo_image_only_text_len" yaml:"photo_image_only_text_len"`

	// WatermarkMaxTextLen bounds the confidentiality-watermark rule.
	WatermarkMaxTextLen int `json:"watermark_max_text_len" yaml:"watermark_max_text_len"`
}

func (t *Thresholds) defaults() {
	if t.MapShortTextLen <= 0 {
		t.MapShortTextLen = 500
	}
	if t.PhotoImageHeavyTextLen <= 0 {
		t.PhotoImageHeavyTextLen = 150
	}
	if t.PhotoImageOnlyTextLen <= 0 {
		t.PhotoImageOnlyTextLen = 50
	}
	if t.WatermarkMaxTextLen <= 0 {
		t.WatermarkMaxTextLen = 20
	}
}
