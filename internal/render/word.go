package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomutex/godocx"
)

// wordRenderer writes a DOCX document: a Title-styled heading and one
// paragraph per line of text.
type wordRenderer struct {
	title string
}

func (r *wordRenderer) Render(w io.Writer, text string) error {
	doc, err := godocx.NewDocument()
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}

	// level 0 is the Title style
	if _, err := doc.AddHeading(stripInvalidXML(r.title), 0); err != nil {
		return fmt.Errorf("add heading: %w", err)
	}
	for _, line := range strings.Split(text, "\n") {
		doc.AddParagraph(stripInvalidXML(strings.TrimRight(line, "\r")))
	}

	if err := doc.Write(w); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// stripInvalidXML drops control characters XML 1.0 cannot carry.
func stripInvalidXML(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		}
		return r
	}, s)
}
