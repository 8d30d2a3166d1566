// Package tesseract provides the local Tesseract OCR backend. It needs cgo and
// the Tesseract and Leptonica libraries at build time.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"slices"
	"sync"

	"github.com/otiai10/gosseract/v2"
	"golang.org/x/text/language"

	"ocrapi/internal/lang"
	"ocrapi/internal/ocr"
)

// BackendName selects this backend in configuration.
const BackendName = "tesseract"

// Backend creates one gosseract client per traineddata language.
type Backend struct {
	tessdataPrefix string
}

// New returns a Tesseract backend. An empty tessdataPrefix uses the library default.
func New(tessdataPrefix string) *Backend {
	return &Backend{tessdataPrefix: tessdataPrefix}
}

// Name implements ocr.Backend.
func (b *Backend) Name() string { return BackendName }

// Version implements ocr.Backend.
func (b *Backend) Version() string { return gosseract.Version() }

// EngineTag implements ocr.Backend; traineddata names are the API vocabulary.
func (b *Backend) EngineTag(tag language.Tag) string { return lang.EngineTag(tag) }

// Languages lists the installed traineddata files.
func (b *Backend) Languages() ([]string, error) {
	langs, err := gosseract.GetAvailableLanguages()
	if err != nil {
		return nil, ocr.WrapOCRError("Languages", err, "failed to list tessdata")
	}
	slices.Sort(langs)
	return langs, nil
}

// NewEngine creates a client for engineTag and forces Tesseract to load its
// traineddata, so a missing language fails here and not on the first request.
func (b *Backend) NewEngine(_ context.Context, engineTag string) (ocr.Engine, error) {
	const op = "NewEngine"

	client := gosseract.NewClient()
	if b.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(b.tessdataPrefix); err != nil {
			client.Close()
			return nil, ocr.WrapOCRError(op, err, "set tessdata prefix")
		}
	}
	if err := client.SetLanguage(engineTag); err != nil {
		client.Close()
		return nil, ocr.WrapOCRError(op, err, "set language "+engineTag)
	}
	if err := client.SetImageFromBytes(blankPNG); err != nil {
		client.Close()
		return nil, ocr.WrapOCRError(op, err, "warm up")
	}
	if _, err := client.Text(); err != nil {
		client.Close()
		return nil, ocr.WrapOCRError(op, err, fmt.Sprintf("load traineddata %q", engineTag))
	}
	return &engine{client: client}, nil
}

// Close implements ocr.Backend.
func (b *Backend) Close() error { return nil }

// engine serializes access to its client, which is not goroutine-safe.
type engine struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func (e *engine) Recognize(ctx context.Context, img ocr.Image) (ocr.Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ocr.Output{}, err
	}
	if err := e.client.SetImage(img.Path); err != nil {
		return ocr.Output{}, fmt.Errorf("set image: %w", err)
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err == nil && len(boxes) > 0 {
		lines := make([]ocr.Line, 0, len(boxes))
		for _, b := range boxes {
			lines = append(lines, ocr.Line{Text: b.Word, Confidence: b.Confidence / 100})
		}
		return ocr.Output{Lines: lines}, nil
	}

	text, err := e.client.Text()
	if err != nil {
		return ocr.Output{}, fmt.Errorf("recognize text: %w", err)
	}
	return ocr.Output{Text: text}, nil
}

func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

var blankPNG = func() []byte {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}()
