package ocr

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"ocrapi/internal/metrics"
)

// DefaultMinLineConfidence drops lines the engine is less than 50% sure about.
const DefaultMinLineConfidence = 0.5

// Recognizer runs OCR with a language hint. It owns the engine instance pool.
type Recognizer struct {
	backend           Backend
	pool              *Pool
	minLineConfidence float64
	logger            zerolog.Logger
}

// NewRecognizer creates a Recognizer for backend. A negative minLineConfidence
// disables line filtering.
func NewRecognizer(backend Backend, minLineConfidence float64, logger zerolog.Logger) *Recognizer {
	return &Recognizer{
		backend:           backend,
		pool:              NewPool(backend, logger),
		minLineConfidence: minLineConfidence,
		logger:            logger,
	}
}

// Recognize runs the engine for tag on img. Every failure is reported as
// ErrRecognitionFailed; an image without text yields a Result with empty Text.
func (r *Recognizer) Recognize(ctx context.Context, img Image, tag language.Tag) (Result, error) {
	const op = "Recognize"

	engineTag := r.backend.EngineTag(tag)
	log := r.logger.With().
		Str("engine", r.backend.Name()).
		Str("language", engineTag).
		Logger()

	eng, err := r.pool.Acquire(ctx, engineTag)
	if err != nil {
		metrics.RecordOCRCall(r.backend.Name(), engineTag, false, 0)
		log.Error().Err(err).Msg("OCR engine not available")
		return Result{}, failure(op, err)
	}

	start := time.Now()
	out, err := eng.Recognize(ctx, img)
	elapsed := time.Since(start)
	metrics.RecordOCRCall(r.backend.Name(), engineTag, err == nil, elapsed)
	if err != nil {
		log.Error().Err(err).Str("image", img.Path).Msg("OCR engine failed")
		return Result{}, failure(op, err)
	}

	res := r.assemble(out)
	res.Language = tag
	res.EngineTag = engineTag

	log.Debug().
		Int("lines", len(res.Lines)).
		Int("text_length", len(res.Text)).
		Dur("duration", elapsed).
		Msg("OCR completed")
	return res, nil
}

func (r *Recognizer) assemble(out Output) Result {
	if len(out.Lines) == 0 {
		return Result{Text: strings.TrimSpace(out.Text)}
	}

	var (
		kept  []Line
		texts []string
		sum   float64
		rated int
	)
	for _, l := range out.Lines {
		text := strings.TrimSpace(l.Text)
		if text == "" {
			continue
		}
		if l.Confidence >= 0 {
			if l.Confidence < r.minLineConfidence {
				continue
			}
			sum += l.Confidence
			rated++
		}
		kept = append(kept, Line{Text: text, Confidence: l.Confidence})
		texts = append(texts, text)
	}

	res := Result{Text: strings.Join(texts, "\n"), Lines: kept}
	if rated > 0 {
		mean := sum / float64(rated)
		res.Confidence = &mean
	}
	return res
}

// Preload loads the engine instances for tags ahead of the first request.
func (r *Recognizer) Preload(ctx context.Context, tags ...language.Tag) error {
	var errs []error
	for _, tag := range tags {
		engineTag := r.backend.EngineTag(tag)
		if _, err := r.pool.Acquire(ctx, engineTag); err != nil {
			errs = append(errs, err)
			continue
		}
		r.logger.Info().Str("language", engineTag).Msg("OCR engine preloaded")
	}
	return errors.Join(errs...)
}

// Backend returns the backend the recognizer runs on.
func (r *Recognizer) Backend() Backend {
	return r.backend
}

// Loaded returns the engine tags with a loaded engine instance.
func (r *Recognizer) Loaded() []string {
	return r.pool.Loaded()
}

// Close releases every engine instance and the backend.
func (r *Recognizer) Close() error {
	return errors.Join(r.pool.Close(), r.backend.Close())
}
