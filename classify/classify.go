// Package classify sorts work-order package pages into asset categories.
//
// Field-collected packages interleave construction drawings, circuit and
// location maps, photographs, and administrative forms with no reliable page
// ordering. Classification is a pure function over page signatures: an
// ordered rule table is evaluated first-match-wins, so the priority contract
// (forms before drawings before maps before photos) is data, not control
// flow.
package classify

import (
	"sort"
	"strings"

	"github.com/gridlane/workpack/pdfdoc"
)

// Category is the semantic kind of a page.
type Category string

const (
	CategoryDrawing      Category = "drawing"
	CategoryMap          Category = "map"
	CategoryPhoto        Category = "photo"
	CategoryForm         Category = "form"
	CategoryUnclassified Category = "unclassified"
)

// Rule pairs a predicate with the category it assigns. Rules are evaluated
// in slice order; the first match wins.
type Rule struct {
	Name     string
	Category Category
	Match    func(sig pdfdoc.PageSignature, th Thresholds) bool
}

// Classifier evaluates the rule table against page signatures.
type Classifier struct {
	rules []Rule
	th    Thresholds
}

// New creates a Classifier with the standard rule table.
func New(th Thresholds) *Classifier {
	th.defaults()
	return &Classifier{rules: Rules(), th: th}
}

// Rules returns the standard ordered rule table.
//
// Explicit vocabulary is checked before density heuristics so that a drawing
// page with unusually sparse text is never misfiled as a photo. Photos are
// the deliberate sink for ambiguous image-bearing pages: field packages hold
// far more incidental photographs than labeled drawings.
func Rules() []Rule {
	return []Rule{
		{"form-keywords", CategoryForm, matchFormKeywords},
		{"drawing-keywords", CategoryDrawing, matchDrawingKeywords},
		{"map-keywords", CategoryMap, matchMapKeywords},
		{"map-density", CategoryMap, matchMapDensity},
		{"photo-keywords", CategoryPhoto, matchPhotoKeywords},
		{"photo-watermark", CategoryPhoto, matchWatermarkOnly},
		{"photo-density", CategoryPhoto, matchPhotoDensity},
	}
}

// Classify maps one page signature to a category. Deterministic and
// side-effect free; page order within the document is irrelevant.
func (c *Classifier) Classify(sig pdfdoc.PageSignature) Category {
	for _, r := range c.rules {
		if r.Match(sig, c.th) {
			return r.Category
		}
	}
	return CategoryUnclassified
}

// MatchedRule returns the name of the first matching rule, for diagnostics.
func (c *Classifier) MatchedRule(sig pdfdoc.PageSignature) (string, Category) {
	for _, r := range c.rules {
		if r.Match(sig, c.th) {
			return r.Name, r.Category
		}
	}
	return "", CategoryUnclassified
}

// Result holds the classified page numbers of one document. The four lists
// are pairwise disjoint, deduplicated, and sorted ascending.
type Result struct {
	Drawings   []int `json:"drawings"`
	Maps       []int `json:"maps"`
	Photos     []int `json:"photos"`
	Forms      []int `json:"forms"`
	TotalPages int   `json:"total_pages"`
}

// ClassifyAll classifies every signature and assembles a Result. Pages with
// no matching rule are dropped from all lists.
func (c *Classifier) ClassifyAll(sigs []pdfdoc.PageSignature, totalPages int) Result {
	res := Result{TotalPages: totalPages}
	for _, sig := range sigs {
		switch c.Classify(sig) {
		case CategoryForm:
			res.Forms = append(res.Forms, sig.PageNumber)
		case CategoryDrawing:
			res.Drawings = append(res.Drawings, sig.PageNumber)
		case CategoryMap:
			res.Maps = append(res.Maps, sig.PageNumber)
		case CategoryPhoto:
			res.Photos = append(res.Photos, sig.PageNumber)
		}
	}
	res.Drawings = dedupSort(res.Drawings)
	res.Maps = dedupSort(res.Maps)
	res.Photos = dedupSort(res.Photos)
	res.Forms = dedupSort(res.Forms)
	return res
}

func dedupSort(pages []int) []int {
	if len(pages) == 0 {
		return pages
	}
	seen := make(map[int]bool, len(pages))
	out := pages[:0]
	for _, p := range pages {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}
