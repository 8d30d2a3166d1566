package lang

import (
	"unicode"

	"github.com/abadojack/whatlanggo"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

const (
	// MinDetectRunes is the shortest input, in non-whitespace runes, that is
	// handed to the detector. Shorter input yields the default language.
	MinDetectRunes = 3

	// DefaultMinConfidence is the detector confidence below which the answer is
	// treated as no answer.
	DefaultMinConfidence = 0.5
)

// whatlanggo languages that map onto the table, keyed to detector tags.
var detectorLangs = map[whatlanggo.Lang]string{
	whatlanggo.Eng: "en",
	whatlanggo.Cmn: "zh-cn",
	whatlanggo.Jpn: "ja",
	whatlanggo.Kor: "ko",
	whatlanggo.Fra: "fr",
	whatlanggo.Deu: "de",
	whatlanggo.Spa: "es",
	whatlanggo.Ita: "it",
	whatlanggo.Por: "pt",
	whatlanggo.Rus: "ru",
	whatlanggo.Arb: "ar",
	whatlanggo.Tha: "th",
	whatlanggo.Vie: "vi",
}

// Detector wraps whatlanggo and folds every kind of "no answer" into the
// default language. It never returns an error.
type Detector struct {
	minConfidence float64
	options       whatlanggo.Options
	logger        zerolog.Logger
}

// NewDetector creates a detector limited to the supported languages.
// A minConfidence of zero selects DefaultMinConfidence.
func NewDetector(minConfidence float64, logger zerolog.Logger) *Detector {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	whitelist := make(map[whatlanggo.Lang]bool, len(detectorLangs))
	for l := range detectorLangs {
		whitelist[l] = true
	}
	return &Detector{
		minConfidence: minConfidence,
		options:       whatlanggo.Options{Whitelist: whitelist},
		logger:        logger,
	}
}

// DetectTag returns the detector tag of the dominant language of text.
func (d *Detector) DetectTag(text string) string {
	fallback := DetectorTag(Default)

	if countLetters(text) < MinDetectRunes {
		d.logger.Debug().Str("reason", "short_input").Msg("Language detection skipped")
		return fallback
	}

	info := whatlanggo.DetectWithOptions(text, d.options)
	if info.Script == nil {
		d.logger.Debug().Str("reason", "unknown_script").Msg("Language detection failed, using default")
		return fallback
	}

	tag, ok := detectorLangs[info.Lang]
	if !ok {
		d.logger.Debug().
			Str("reason", "unsupported_language").
			Str("detected", info.Lang.String()).
			Msg("Language detection failed, using default")
		return fallback
	}

	if info.Confidence < d.minConfidence {
		d.logger.Debug().
			Str("reason", "low_confidence").
			Str("detected", tag).
			Float64("confidence", info.Confidence).
			Msg("Language detection failed, using default")
		return fallback
	}

	d.logger.Debug().
		Str("detected", tag).
		Float64("confidence", info.Confidence).
		Msg("Language detected")
	return tag
}

// Detect is DetectTag resolved to the canonical tag.
func (d *Detector) Detect(text string) language.Tag {
	t, _ := FromDetectorTag(d.DetectTag(text))
	return t
}

func countLetters(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
