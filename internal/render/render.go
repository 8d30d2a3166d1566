// Package render turns recognized text into the document a client asked for:
// plain text, a Word document or a PDF.
package render

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Format is an output format accepted by the API.
type Format string

const (
	FormatText Format = "text"
	FormatWord Format = "word"
	FormatPDF  Format = "pdf"
)

// DefaultTitle heads Word and PDF documents.
const DefaultTitle = "OCR Recognition Result"

var (
	// ErrUnsupportedFormat is returned by ParseFormat for anything but text, word and pdf.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrRenderFailed wraps every failure to produce a document.
	ErrRenderFailed = errors.New("failed to render document")
)

// Formats lists the accepted output formats.
func Formats() []Format {
	return []Format{FormatText, FormatWord, FormatPDF}
}

// ParseFormat parses an output_format value. The empty string means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatWord, FormatPDF:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q (use text, word or pdf)", ErrUnsupportedFormat, s)
	}
}

// ContentType is the MIME type of documents in this format.
func (f Format) ContentType() string {
	switch f {
	case FormatWord:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case FormatPDF:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Extension is the file extension of documents in this format, with the dot.
func (f Format) Extension() string {
	switch f {
	case FormatWord:
		return ".docx"
	case FormatPDF:
		return ".pdf"
	default:
		return ".txt"
	}
}

// Options configures document rendering.
type Options struct {
	// Title heads Word and PDF documents. Empty means DefaultTitle.
	Title string

	// FontPath is a TrueType font used for PDF output. Without it the PDF uses
	// Helvetica and characters outside Latin-1 are replaced.
	FontPath string
}

func (o Options) title() string {
	if o.Title == "" {
		return DefaultTitle
	}
	return o.Title
}

// Renderer writes text as a document.
type Renderer interface {
	Render(w io.Writer, text string) error
}

// New returns the renderer for f.
func New(f Format, opts Options) (Renderer, error) {
	switch f {
	case FormatText:
		return textRenderer{}, nil
	case FormatWord:
		return &wordRenderer{title: opts.title()}, nil
	case FormatPDF:
		return &pdfRenderer{title: opts.title(), fontPath: opts.FontPath}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
}

// WriteFile renders text into a new file at path. Any failure, including a
// partially written file, is reported as ErrRenderFailed; the caller owns
// removing path.
func WriteFile(r Renderer, path, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	if err := r.Render(f, text); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}
	return nil
}

type textRenderer struct{}

func (textRenderer) Render(w io.Writer, text string) error {
	_, err := io.WriteString(w, text)
	return err
}
