// Package ocr runs images through an OCR engine.
//
// An OCR engine is reached through a Backend, which knows its own language
// vocabulary and how to create an Engine instance for one language. Engine
// instances are expensive to create, so the Recognizer keeps them in a Pool
// for the lifetime of the process.
//
// Two backends exist:
//   - tesseract (package ocr/tesseract): local Tesseract via gosseract, one
//     client per traineddata language
//   - vision: Google Cloud Vision document text detection, one shared client
//     with a per-language hint
//
// Vision credentials are read from the environment:
//   - GOOGLE_APPLICATION_CREDENTIALS: Path to service account JSON file, OR
//   - GOOGLE_CREDENTIALS: Inline JSON credentials string
//
// Without either, Application Default Credentials are tried.
package ocr

import (
	"context"

	"golang.org/x/text/language"
)

// Image is a decoded raster stored on disk for the duration of one request.
type Image struct {
	// Path of the image file. The file is owned by the caller.
	Path string

	// Format is the format the upload was decoded from ("jpeg", "png", ...).
	Format string

	Width  int
	Height int
}

// Line is one recognized text line.
type Line struct {
	Text string `json:"text"`

	// Confidence in [0, 1]. Negative when the engine does not report one.
	Confidence float64 `json:"confidence"`
}

// Output is what an engine instance returns for one image.
type Output struct {
	// Text is the full recognized text, used when Lines is empty.
	Text string

	// Lines are the recognized lines in reading order, if the engine reports them.
	Lines []Line
}

// Result is a successful recognition. Empty Text is a valid result.
type Result struct {
	// Text is the recognized text, lines joined with "\n".
	Text string `json:"text"`

	// Lines that survived the confidence filter.
	Lines []Line `json:"lines,omitempty"`

	// Confidence is the mean confidence of Lines, nil when the engine reports none.
	Confidence *float64 `json:"confidence,omitempty"`

	// Language is the hint the text was recognized with.
	Language language.Tag `json:"-"`

	// EngineTag is Language in the backend's vocabulary.
	EngineTag string `json:"engine_tag"`
}

// Engine is one initialized OCR engine instance bound to a language.
// Implementations must be safe for concurrent use.
type Engine interface {
	Recognize(ctx context.Context, img Image) (Output, error)
	Close() error
}

// Backend creates engine instances and describes the engine.
type Backend interface {
	// Name identifies the backend ("tesseract", "vision").
	Name() string

	// Version of the underlying engine.
	Version() string

	// EngineTag translates a canonical tag into the backend's vocabulary.
	EngineTag(tag language.Tag) string

	// Languages lists the languages the engine can load, in its vocabulary.
	Languages() ([]string, error)

	// NewEngine loads an engine instance for one language.
	NewEngine(ctx context.Context, engineTag string) (Engine, error)

	Close() error
}
