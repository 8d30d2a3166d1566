package ocr

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func newTestRecognizer(backend *fakeBackend) *Recognizer {
	return NewRecognizer(backend, DefaultMinLineConfidence, zerolog.Nop())
}

func TestRecognizeTranslatesHint(t *testing.T) {
	backend := newFakeBackend()
	backend.outputs["chi_sim"] = Output{Text: "你好世界\n"}
	r := newTestRecognizer(backend)
	defer r.Close()

	res, err := r.Recognize(context.Background(), Image{Path: "x.png"}, language.SimplifiedChinese)
	require.NoError(t, err)
	assert.Equal(t, "你好世界", res.Text)
	assert.Equal(t, "chi_sim", res.EngineTag)
	assert.Equal(t, language.SimplifiedChinese, res.Language)
	assert.Nil(t, res.Confidence)
	assert.Equal(t, []string{"chi_sim"}, r.Loaded())
}

func TestRecognizeEmptyTextIsNotFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.outputs["eng"] = Output{Text: "  \n\t "}
	r := newTestRecognizer(backend)
	defer r.Close()

	res, err := r.Recognize(context.Background(), Image{Path: "blank.png"}, language.English)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
}

func TestRecognizeEngineErrorIsRecognitionFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.recErr = errBoom
	r := newTestRecognizer(backend)
	defer r.Close()

	_, err := r.Recognize(context.Background(), Image{Path: "x.png"}, language.English)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecognitionFailed)
	assert.ErrorIs(t, err, errBoom)
}

func TestRecognizeLoadErrorIsRecognitionFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.fail["jpn"] = errBoom
	r := newTestRecognizer(backend)
	defer r.Close()

	_, err := r.Recognize(context.Background(), Image{Path: "x.png"}, language.Japanese)
	assert.ErrorIs(t, err, ErrRecognitionFailed)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestRecognizeDropsLowConfidenceLines(t *testing.T) {
	backend := newFakeBackend()
	backend.outputs["eng"] = Output{Lines: []Line{
		{Text: "Invoice 2024", Confidence: 0.9},
		{Text: "~~%#", Confidence: 0.2},
		{Text: "Total: 42.00 ", Confidence: 0.7},
		{Text: "   ", Confidence: 0.99},
		{Text: "unrated", Confidence: -1},
	}}
	r := newTestRecognizer(backend)
	defer r.Close()

	res, err := r.Recognize(context.Background(), Image{Path: "x.png"}, language.English)
	require.NoError(t, err)
	assert.Equal(t, "Invoice 2024\nTotal: 42.00\nunrated", res.Text)
	require.Len(t, res.Lines, 3)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.8, *res.Confidence, 1e-9)
}

func TestRecognizeAllLinesDroppedIsEmptyResult(t *testing.T) {
	backend := newFakeBackend()
	backend.outputs["eng"] = Output{Lines: []Line{{Text: "noise", Confidence: 0.1}}}
	r := newTestRecognizer(backend)
	defer r.Close()

	res, err := r.Recognize(context.Background(), Image{Path: "x.png"}, language.English)
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Nil(t, res.Confidence)
}

func TestRecognizeUnknownTagUsesDefaultEngine(t *testing.T) {
	backend := newFakeBackend()
	backend.outputs["eng"] = Output{Text: "hello"}
	r := newTestRecognizer(backend)
	defer r.Close()

	res, err := r.Recognize(context.Background(), Image{Path: "x.png"}, language.Swahili)
	require.NoError(t, err)
	assert.Equal(t, "eng", res.EngineTag)
	assert.Equal(t, "hello", res.Text)
}

func TestPreload(t *testing.T) {
	backend := newFakeBackend()
	backend.fail["kor"] = errBoom
	r := newTestRecognizer(backend)
	defer r.Close()

	err := r.Preload(context.Background(), language.English, language.Korean, language.English)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, []string{"eng"}, r.Loaded())
	assert.Equal(t, int32(2), backend.loads.Load())
	assert.Zero(t, backend.calls.Load())
}
