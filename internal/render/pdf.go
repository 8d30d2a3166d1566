package render

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"codeberg.org/go-pdf/fpdf"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Page geometry in points, measured from the top-left corner of an A4 page.
const (
	pdfMarginLeft   = 50.0
	pdfTitleY       = 50.0
	pdfBodyTopY     = 100.0
	pdfPageTopY     = 50.0
	pdfBottomMargin = 50.0
	pdfLineHeight   = 20.0
	pdfTitleSize    = 16.0
	pdfBodySize     = 12.0

	// wrapColumns is the greedy wrap width in characters.
	wrapColumns = 80
)

type pdfRenderer struct {
	title    string
	fontPath string
}

type placedLine struct {
	text string
	y    float64
}

func (p *pdfRenderer) Render(w io.Writer, text string) error {
	doc := fpdf.New("P", "pt", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	doc.SetTitle(p.title, true)
	doc.SetCreator("ocrapi", true)

	family, titleStyle, encode := "Helvetica", "B", latin1
	if p.fontPath != "" {
		doc.AddUTF8Font("body", "", p.fontPath)
		if err := doc.Error(); err != nil {
			return fmt.Errorf("load font %s: %w", p.fontPath, err)
		}
		family, titleStyle, encode = "body", "", func(s string) string { return s }
	}

	_, pageHeight := doc.GetPageSize()
	pages := paginate(text, pageHeight)

	doc.AddPage()
	doc.SetFont(family, titleStyle, pdfTitleSize)
	doc.Text(pdfMarginLeft, pdfTitleY, encode(p.title))
	doc.SetFont(family, "", pdfBodySize)

	for i, page := range pages {
		if i > 0 {
			doc.AddPage()
		}
		for _, l := range page {
			if l.text != "" {
				doc.Text(pdfMarginLeft, l.y, encode(l.text))
			}
		}
	}

	return doc.Output(w)
}

// paginate lays text out line by line. The first page starts below the title;
// a line that would end inside the bottom margin moves to a new page.
func paginate(text string, pageHeight float64) [][]placedLine {
	limit := pageHeight - pdfBottomMargin
	pages := [][]placedLine{nil}
	y := pdfBodyTopY

	for _, raw := range strings.Split(text, "\n") {
		for _, line := range wrapLine(strings.TrimRight(raw, "\r"), wrapColumns) {
			pages[len(pages)-1] = append(pages[len(pages)-1], placedLine{text: line, y: y})
			y += pdfLineHeight
			if y > limit {
				pages = append(pages, nil)
				y = pdfPageTopY
			}
		}
	}

	if n := len(pages); n > 1 && len(pages[n-1]) == 0 {
		pages = pages[:n-1]
	}
	return pages
}

// wrapLine splits line greedily at spaces so no piece is longer than width
// characters. Words longer than width are cut.
func wrapLine(line string, width int) []string {
	if utf8.RuneCountInString(line) <= width {
		return []string{line}
	}
	if strings.TrimSpace(line) == "" {
		// keep the vertical space of a blank line
		return []string{""}
	}

	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, cur.String())
			cur.Reset()
			n = 0
		}
	}
	for _, word := range strings.Fields(line) {
		wn := utf8.RuneCountInString(word)
		for wn > width {
			flush()
			r := []rune(word)
			out = append(out, string(r[:width]))
			word = string(r[width:])
			wn -= width
		}
		if n > 0 && n+1+wn > width {
			flush()
		}
		if n > 0 {
			cur.WriteByte(' ')
			n++
		}
		cur.WriteString(word)
		n += wn
	}
	flush()
	return out
}

// latin1 converts s for the core PDF fonts, replacing what Latin-1 lacks.
func latin1(s string) string {
	out, err := encoding.ReplaceUnsupported(charmap.ISO8859_1.NewEncoder()).String(s)
	if err != nil {
		return s
	}
	return out
}
