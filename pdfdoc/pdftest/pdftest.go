// Package pdftest builds small synthetic PDFs for tests.
//
// The generated files carry a correct cross-reference table so pdfcpu can
// parse them strictly. Pages can hold a text run, a painted 1x1 image
// XObject, or both: enough to exercise signature extraction and
// classification without fixture files.
package pdftest

import (
	"fmt"
	"strings"
)

// Page describes one page of a synthetic document.
type Page struct {
	Text      string // shown via a single Tj run; empty means no text
	Images    int    // number of image XObject paints (Do) on the page
	NoContent bool   // page without a /Contents entry at all
	BadStream bool   // content stream claims FlateDecode over garbage
}

// Build assembles a single-page document with the given text.
func Build(text string) []byte {
	return BuildPages([]Page{{Text: text}})
}

// BuildPages assembles a document with one object tree per page:
// catalog(1) pages(2) [page, contents, image...]* font(last).
func BuildPages(pages []Page) []byte {
	var b strings.Builder
	b.WriteString("%PDF-1.4\n")

	// Object layout: 1 catalog, 2 pages; per page: page obj, content obj,
	// image objs; final obj: font.
	objNr := 3
	type pageObjs struct {
		page, content int
		images        []int
	}
	layout := make([]pageObjs, len(pages))
	for i, p := range pages {
		layout[i].page = objNr
		objNr++
		if !p.NoContent {
			layout[i].content = objNr
			objNr++
		}
		for j := 0; j < p.Images; j++ {
			layout[i].images = append(layout[i].images, objNr)
			objNr++
		}
	}
	fontObj := objNr
	objNr++

	offsets := make(map[int]int)

	writeObj := func(nr int, body string) {
		offsets[nr] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", nr, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", layout[i].page)
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>",
		strings.Join(kids, " "), len(pages)))

	for i, p := range pages {
		var res strings.Builder
		res.WriteString("<< /Font << /F1 " + fmt.Sprintf("%d 0 R", fontObj) + " >>")
		if len(layout[i].images) > 0 {
			res.WriteString(" /XObject <<")
			for j, imgNr := range layout[i].images {
				fmt.Fprintf(&res, " /Im%d %d 0 R", j+1, imgNr)
			}
			res.WriteString(" >>")
		}
		res.WriteString(" >>")

		pageBody := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources %s", res.String())
		if !p.NoContent {
			pageBody += fmt.Sprintf(" /Contents %d 0 R", layout[i].content)
		}
		pageBody += " >>"
		writeObj(layout[i].page, pageBody)

		if !p.NoContent {
			if p.BadStream {
				s := "this is not deflate data"
				writeObj(layout[i].content, fmt.Sprintf(
					"<< /Filter /FlateDecode /Length %d >>\nstream\n%sendstream", len(s), s))
			} else {
				var stream strings.Builder
				if p.Text != "" {
					fmt.Fprintf(&stream, "BT\n/F1 12 Tf\n72 720 Td\n(%s) Tj\nET\n", escape(p.Text))
				}
				for j := range layout[i].images {
					fmt.Fprintf(&stream, "q 100 0 0 100 72 %d cm /Im%d Do Q\n", 600-j*110, j+1)
				}
				s := stream.String()
				writeObj(layout[i].content, fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(s), s))
			}
		}

		for _, imgNr := range layout[i].images {
			imgData := "\xff\xd8\xff\xe0"
			writeObj(imgNr, fmt.Sprintf(
				"<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Length %d >>\nstream\n%s\nendstream",
				len(imgData), imgData))
		}
	}

	writeObj(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	xrefOffset := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", objNr)
	b.WriteString("0000000000 65535 f \n")
	for nr := 1; nr < objNr; nr++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[nr])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objNr, xrefOffset)

	return []byte(b.String())
}

func escape(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, "(", `\(`)
	return strings.ReplaceAll(text, ")", `\)`)
}
