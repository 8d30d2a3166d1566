// Package recognition decides which language hints an image is recognized with.
//
// In fixed mode the caller's hint is used for exactly one OCR pass. In auto
// mode the image is first recognized with the primary language, then with the
// alternate language if nothing was found, and the resulting text is run
// through language detection; when the detected language is neither default
// the image is recognized once more with it. No request makes more than
// MaxOCRCalls OCR passes.
package recognition

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"ocrapi/internal/lang"
	"ocrapi/internal/metrics"
	"ocrapi/internal/ocr"
)

// MaxOCRCalls bounds the OCR passes made for one image.
const MaxOCRCalls = 2

// ErrNoText is returned in auto mode when neither default language yields any text.
var ErrNoText = errors.New("no text recognized")

// Recognizer runs one OCR pass.
type Recognizer interface {
	Recognize(ctx context.Context, img ocr.Image, tag language.Tag) (ocr.Result, error)
}

// Detector names the dominant language of a text. It never fails.
type Detector interface {
	Detect(text string) language.Tag
}

// Mode selects how the language hint is chosen.
type Mode string

const (
	ModeFixed Mode = "fixed"
	ModeAuto  Mode = "auto"
)

// Outcome is the final text of a request.
type Outcome struct {
	Mode Mode

	// Text is the recognized text. It may be empty in fixed mode.
	Text string

	Confidence *float64

	// Language is the hint that produced Text.
	Language language.Tag

	// Detected is the detected language in auto mode, language.Und otherwise.
	Detected language.Tag

	// Calls is the number of OCR passes made.
	Calls int
}

// Config holds the default hints used in auto mode.
type Config struct {
	Primary   language.Tag
	Alternate language.Tag
}

// DefaultConfig recognizes English first and Simplified Chinese second.
func DefaultConfig() Config {
	return Config{Primary: language.English, Alternate: language.SimplifiedChinese}
}

// Orchestrator drives OCR and detection for one image at a time. It is safe
// for concurrent use; each call keeps its state on the stack.
type Orchestrator struct {
	recognizer Recognizer
	detector   Detector
	cfg        Config
	logger     zerolog.Logger
}

// New creates an Orchestrator.
func New(recognizer Recognizer, detector Detector, cfg Config, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		recognizer: recognizer,
		detector:   detector,
		cfg:        cfg,
		logger:     logger,
	}
}

// Config returns the defaults the orchestrator was created with.
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Recognize runs exactly one OCR pass with tag. Empty text is a success.
func (o *Orchestrator) Recognize(ctx context.Context, img ocr.Image, tag language.Tag) (Outcome, error) {
	res, err := o.recognizer.Recognize(ctx, img, tag)
	if err != nil {
		return Outcome{Mode: ModeFixed, Calls: 1}, err
	}
	return Outcome{
		Mode:       ModeFixed,
		Text:       res.Text,
		Confidence: res.Confidence,
		Language:   tag,
		Detected:   language.Und,
		Calls:      1,
	}, nil
}

// AutoDetect recognizes img without a caller-supplied hint.
func (o *Orchestrator) AutoDetect(ctx context.Context, img ocr.Image) (Outcome, error) {
	run := &autoRun{o: o, ctx: ctx, img: img}
	st := stateInitial
	for !st.terminal() {
		next := run.step(st)
		o.logger.Debug().
			Str("from", st.String()).
			Str("to", next.String()).
			Int("calls", run.calls).
			Msg("Auto-detect transition")
		st = next
	}

	out := Outcome{Mode: ModeAuto, Calls: run.calls, Detected: run.detected}
	if st == stateFailed {
		if run.err != nil {
			return out, run.err
		}
		return out, ErrNoText
	}
	out.Text = run.best.Text
	out.Confidence = run.best.Confidence
	out.Language = run.best.Language
	return out, nil
}

type state int

const (
	stateInitial state = iota
	stateFallback
	stateDetected
	stateDone
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "initial"
	case stateFallback:
		return "fallback"
	case stateDetected:
		return "detected"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s state) terminal() bool {
	return s == stateDone || s == stateFailed
}

// autoRun is the per-request state of AutoDetect.
type autoRun struct {
	o   *Orchestrator
	ctx context.Context
	img ocr.Image

	calls    int
	best     ocr.Result
	detected language.Tag
	err      error // failure of the latest pass
}

func (r *autoRun) step(s state) state {
	switch s {
	case stateInitial:
		if r.attempt(r.o.cfg.Primary) {
			return stateDetected
		}
		return stateFallback

	case stateFallback:
		if r.attempt(r.o.cfg.Alternate) {
			return stateDetected
		}
		return stateFailed

	case stateDetected:
		r.detected = r.o.detector.Detect(r.best.Text)
		rerun := r.detected != r.o.cfg.Primary &&
			r.detected != r.o.cfg.Alternate &&
			r.calls < MaxOCRCalls
		metrics.RecordDetection(lang.EngineTag(r.detected), rerun)

		log := r.o.logger.With().
			Str("detected", lang.EngineTag(r.detected)).
			Str("recognized_with", lang.EngineTag(r.best.Language)).
			Logger()
		if !rerun {
			log.Debug().Msg("Keeping first recognition")
			return stateDone
		}
		if !r.attempt(r.detected) {
			log.Warn().Msg("Recognition with detected language gave no text, keeping first recognition")
		}
		return stateDone
	}
	return stateFailed
}

// attempt runs one OCR pass and keeps the result if it has text.
func (r *autoRun) attempt(tag language.Tag) bool {
	r.calls++
	res, err := r.o.recognizer.Recognize(r.ctx, r.img, tag)
	r.err = err
	if err != nil {
		return false
	}
	if strings.TrimSpace(res.Text) == "" {
		return false
	}
	res.Language = tag
	r.best = res
	return true
}
