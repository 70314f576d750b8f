package classify

import "github.com/gridlane/workpack/pdfdoc"

// Keyword sets below are matched against the lowercased page text. They were
// collected from production work-order packages; bare fragments ("plan view",
// "full pole") are intentional since scanned titles rarely survive OCR-free
// extraction intact.

// formKeywords name tabular, checklist, and administrative page titles. A
// match excludes the page from visual classification regardless of image
// content.
var formKeywords = []string{
	"face sheet",
	"crew material",
	"crew instructions",
	"equipment checklist",
	"material list",
	"billing summary",
	"billing sheet",
	"progress sheet",
	"environmental release",
	"parking sign",
	"checklist",
	"time sheet",
}

// drawingKeywords name technical drawing content. Keyword match takes
// priority over all image-density heuristics.
var drawingKeywords = []string{
	"pole sheet",
	"plan view",
	"profile view",
	"construction drawing",
	"construction detail",
	"schematic",
	"drawing",
}

// mapKeywords name circuit/location map sheets explicitly.
var mapKeywords = []string{
	"circuit map",
	"location map",
	"vicinity map",
	"aerial map",
	"survey map",
	"key map",
	"circuit diagram",
}

// locationVocab are location-indicator terms used by the map density
// heuristic on image-bearing pages with short text.
var locationVocab = []string{
	"street",
	"road",
	"avenue",
	"highway",
	"blvd",
	"intersection",
	"latitude",
	"longitude",
	"coordinate",
	"scale",
}

// photoVocab marks photograph sheets.
var photoVocab = []string{
	"picture",
	"full pole",
	"photos:",
	"photo",
}

// fieldNoteVocab marks annotated field snapshots; these read as photos, not
// maps, even when location terms appear.
var fieldNoteVocab = []string{
	"field note",
	"field notes",
	"field sketch",
}

func matchFormKeywords(sig pdfdoc.PageSignature, _ Thresholds) bool {
	return containsAny(sig.Text, formKeywords)
}

func matchDrawingKeywords(sig pdfdoc.PageSignature, _ Thresholds) bool {
	return containsAny(sig.Text, drawingKeywords)
}

func matchMapKeywords(sig pdfdoc.PageSignature, _ Thresholds) bool {
	return containsAny(sig.Text, mapKeywords)
}

// matchMapDensity catches unlabeled map pages: at least one painted image,
// location vocabulary, short text, and no photo/field-note vocabulary.
func matchMapDensity(sig pdfdoc.PageSignature, th Thresholds) bool {
	return sig.ImageOps > 0 &&
		sig.TextLength < th.MapShortTextLen &&
		containsAny(sig.Text, locationVocab) &&
		!containsAny(sig.Text, photoVocab) &&
		!containsAny(sig.Text, fieldNoteVocab)
}

func matchPhotoKeywords(sig pdfdoc.PageSignature, _ Thresholds) bool {
	return containsAny(sig.Text, photoVocab) || containsAny(sig.Text, fieldNoteVocab)
}

// matchWatermarkOnly catches pages whose only text is a confidentiality
// stamp over a scanned photograph.
func matchWatermarkOnly(sig pdfdoc.PageSignature, th Thresholds) bool {
	return sig.TextLength > 0 &&
		sig.TextLength < th.WatermarkMaxTextLen &&
		containsAny(sig.Text, []string{"confidential"})
}

// matchPhotoDensity is the catch-all for undecorated scanned photo pages:
// any remaining image-bearing page with zero, near-zero, or modest text.
// A page with no painted images never matches.
func matchPhotoDensity(sig pdfdoc.PageSignature, th Thresholds) bool {
	if sig.ImageOps == 0 {
		return false
	}
	return sig.TextLength == 0 ||
		sig.TextLength < th.PhotoImageOnlyTextLen ||
		sig.TextLength < th.PhotoImageHeavyTextLen
}
