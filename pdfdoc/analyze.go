package pdfdoc

import (
	"bytes"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// PageSignature is the per-page derived input for classification.
// Immutable once computed.
type PageSignature struct {
	PageNumber int    `json:"page_number"` // 1-indexed
	Text       string `json:"text"`        // normalized lowercase extracted text
	TextLength int    `json:"text_length"` // rune count of Text
	ImageOps   int    `json:"image_ops"`   // image-paint operations on the page
}

// Analyzer extracts page signatures from a loaded document.
type Analyzer struct {
	cfg Config
}

// NewAnalyzer creates an Analyzer with the given configuration.
func NewAnalyzer(cfg Config) *Analyzer {
	cfg.defaults()
	return &Analyzer{cfg: cfg}
}

// Analyze computes the signature for one 1-indexed page. An error means the
// page's content stream could not be read; callers skip such pages rather
// than aborting the run.
func (a *Analyzer) Analyze(doc *Document, pageNr int) (PageSignature, error) {
	stream, err := doc.pageContent(pageNr)
	if err != nil {
		return PageSignature{}, err
	}

	sig := PageSignature{PageNumber: pageNr}
	imgObjs := doc.imageObjCount(pageNr, stream)

	// Oversized packages: image counts stay cheap, but full text parsing is
	// limited to the first page.
	wantText := pageNr == 1 || doc.Size() <= a.cfg.MaxFullParseBytes

	done := make(chan PageSignature, 1)
	go func() {
		s := PageSignature{PageNumber: pageNr}
		if wantText {
			s.Text = strings.ToLower(extractTextFromStream(stream))
			s.TextLength = utf8.RuneCountInString(s.Text)
		}
		s.ImageOps = countImagePaintOps(stream, imgObjs)
		done <- s
	}()

	select {
	case sig = <-done:
	case <-time.After(a.cfg.PageTimeout):
		a.cfg.Logger.Warn("page scan timed out, using empty signature", "page", pageNr)
		sig.ImageOps = imgObjs
	}

	return sig, nil
}

// AnalyzeAll computes signatures for every page. Pages whose content stream
// cannot be read are logged and excluded; a single corrupt page never aborts
// the document.
func (a *Analyzer) AnalyzeAll(doc *Document) []PageSignature {
	sigs := make([]PageSignature, 0, doc.PageCount())
	for pageNr := 1; pageNr <= doc.PageCount(); pageNr++ {
		sig, err := a.Analyze(doc, pageNr)
		if err != nil {
			a.cfg.Logger.Warn("page analysis skipped", "page", pageNr, "error", err)
			continue
		}
		sigs = append(sigs, sig)
	}
	return sigs
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

// extractTextFromStream parses PDF content stream operators for text.
func extractTextFromStream(data []byte) string {
	var sb strings.Builder

	lines := bytes.Split(data, []byte{'\n'})
	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		// Tj operator: (text) Tj, and TJ arrays: [(text) -100 (more)] TJ
		if bytes.HasSuffix(line, []byte("Tj")) || bytes.HasSuffix(line, []byte("TJ")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		}

		// ' operator (move to next line and show text): (text) '
		if bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")) {
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteByte('\n')
				sb.WriteString(decodePDFString(m[1]))
			}
		}

		// Td/TD text positioning marks a word boundary.
		if bytes.HasSuffix(line, []byte("Td")) || bytes.HasSuffix(line, []byte("TD")) {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}

		// T* moves to the start of the next line.
		if bytes.Equal(line, []byte("T*")) {
			sb.WriteByte('\n')
		}
	}

	return cleanText(sb.String())
}

// countImagePaintOps counts operators that paint raster images. XObject
// paints (Do) and inline images (BI ... EI) use different operator codes and
// both must be counted: drawings and maps are vector+image composites while
// photo pages are near-pure raster.
//
// Do also paints form XObjects, so Do occurrences only count on pages that
// actually reference image XObjects. If such a page shows no Do at all (the
// paint may be buried in a nested form stream), the referenced-image count is
// used as the floor, mirroring the XRef-level fallback used for detection.
func countImagePaintOps(stream []byte, imageXObjects int) int {
	// Strip string literals so text content can't masquerade as operators.
	ops := pdfStringRe.ReplaceAll(stream, []byte(" "))

	inline := 0
	xobject := 0
	for _, tok := range bytes.Fields(ops) {
		switch string(tok) {
		case "BI":
			inline++
		case "Do":
			xobject++
		}
	}

	count := inline
	if imageXObjects > 0 {
		if xobject > 0 {
			count += xobject
		} else {
			count += imageXObjects
		}
	}
	return count
}

// countDoOps counts Do operators outside string literals.
func countDoOps(stream []byte) int {
	ops := pdfStringRe.ReplaceAll(stream, []byte(" "))
	n := 0
	for _, tok := range bytes.Fields(ops) {
		if string(tok) == "Do" {
			n++
		}
	}
	return n
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\', '(', ')':
				sb.WriteByte(raw[i])
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					for j := 0; j < 2 && i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7'; j++ {
						i++
						val = val*8 + int(raw[i]-'0')
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanText normalises whitespace in extracted text.
func cleanText(text string) string {
	var sb strings.Builder
	prevSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
				prevSpace = true
			}
		} else if unicode.IsPrint(r) {
			sb.WriteRune(r)
			prevSpace = false
		}
	}
	return strings.TrimSpace(sb.String())
}
