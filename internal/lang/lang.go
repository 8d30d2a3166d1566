// Package lang maps between the language vocabularies used by the OCR engine,
// the language detector and the HTTP API.
//
// Internally every language is a golang.org/x/text language.Tag. Engine tags
// (Tesseract traineddata names such as "eng" or "chi_sim") and detector tags
// (ISO 639-1 based codes such as "en" or "zh-cn") only appear at the edges.
// All lookups are total: unknown input resolves to Default.
package lang

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default is the language used whenever a tag cannot be resolved.
var Default = language.English

type entry struct {
	tag      language.Tag
	engine   string
	detector string
	aliases  []string
}

var table = []entry{
	{tag: language.English, engine: "eng", detector: "en"},
	{tag: language.SimplifiedChinese, engine: "chi_sim", detector: "zh-cn", aliases: []string{"zh", "zh-hans", "zh-sg"}},
	{tag: language.TraditionalChinese, engine: "chi_tra", detector: "zh-tw", aliases: []string{"zh-hant", "zh-hk"}},
	{tag: language.Japanese, engine: "jpn", detector: "ja"},
	{tag: language.Korean, engine: "kor", detector: "ko"},
	{tag: language.French, engine: "fra", detector: "fr"},
	{tag: language.German, engine: "deu", detector: "de"},
	{tag: language.Spanish, engine: "spa", detector: "es"},
	{tag: language.Italian, engine: "ita", detector: "it"},
	{tag: language.Portuguese, engine: "por", detector: "pt"},
	{tag: language.Russian, engine: "rus", detector: "ru"},
	{tag: language.Arabic, engine: "ara", detector: "ar"},
	{tag: language.Thai, engine: "tha", detector: "th"},
	{tag: language.Vietnamese, engine: "vie", detector: "vi"},
}

func normalize(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}

func lookup(t language.Tag) (entry, bool) {
	for _, e := range table {
		if e.tag == t {
			return e, true
		}
	}
	return entry{}, false
}

func defaultEntry() entry {
	e, _ := lookup(Default)
	return e
}

// Supported returns the canonical tags of every language in the table, in table order.
func Supported() []language.Tag {
	tags := make([]language.Tag, len(table))
	for i, e := range table {
		tags[i] = e.tag
	}
	return tags
}

// EngineTags returns the engine tag of every supported language.
func EngineTags() []string {
	tags := make([]string, len(table))
	for i, e := range table {
		tags[i] = e.engine
	}
	return tags
}

// FromEngineTag resolves an engine tag. The second result is false when the
// tag is unknown, in which case Default is returned.
func FromEngineTag(s string) (language.Tag, bool) {
	n := strings.ReplaceAll(normalize(s), "-", "_")
	for _, e := range table {
		if e.engine == n {
			return e.tag, true
		}
	}
	return Default, false
}

// FromDetectorTag resolves a detector tag or one of its aliases.
func FromDetectorTag(s string) (language.Tag, bool) {
	n := normalize(s)
	for _, e := range table {
		if e.detector == n {
			return e.tag, true
		}
		for _, a := range e.aliases {
			if a == n {
				return e.tag, true
			}
		}
	}
	return Default, false
}

// ParseHint accepts either vocabulary, which is what API clients send.
func ParseHint(s string) (language.Tag, bool) {
	if t, ok := FromEngineTag(s); ok {
		return t, true
	}
	return FromDetectorTag(s)
}

// EngineTag returns the engine tag for t, or the default's engine tag.
func EngineTag(t language.Tag) string {
	if e, ok := lookup(t); ok {
		return e.engine
	}
	return defaultEntry().engine
}

// DetectorTag returns the detector tag for t, or the default's detector tag.
func DetectorTag(t language.Tag) string {
	if e, ok := lookup(t); ok {
		return e.detector
	}
	return defaultEntry().detector
}

// ToEngineTag translates a detector tag to the engine vocabulary. Engine tags
// pass through unchanged so the function is idempotent.
func ToEngineTag(detectorTag string) string {
	if t, ok := FromEngineTag(detectorTag); ok {
		return EngineTag(t)
	}
	t, _ := FromDetectorTag(detectorTag)
	return EngineTag(t)
}

// ToDetectorTag translates an engine tag to the detector vocabulary. Detector
// tags pass through unchanged so the function is idempotent.
func ToDetectorTag(engineTag string) string {
	if t, ok := FromDetectorTag(engineTag); ok {
		return DetectorTag(t)
	}
	t, _ := FromEngineTag(engineTag)
	return DetectorTag(t)
}

// Name returns the language's name in its own language, e.g. "English" or "日本語".
func Name(t language.Tag) string {
	if name := display.Self.Name(t); name != "" {
		return name
	}
	return display.English.Tags().Name(t)
}
