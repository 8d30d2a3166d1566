package tesseract

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"ocrapi/internal/ocr"
)

func TestBackendMetadata(t *testing.T) {
	b := New("")
	assert.Equal(t, BackendName, b.Name())
	assert.Equal(t, "chi_sim", b.EngineTag(language.SimplifiedChinese))
	assert.Equal(t, "eng", b.EngineTag(language.Und))
}

func TestBlankPNGIsValid(t *testing.T) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(blankPNG))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, cfg.Width)
}

// The remaining tests need Tesseract with English traineddata installed.
func requireEnglish(t *testing.T, b *Backend) {
	t.Helper()
	langs, err := b.Languages()
	if err != nil || !slices.Contains(langs, "eng") {
		t.Skip("tesseract eng traineddata not installed")
	}
}

func TestRecognizeBlankImage(t *testing.T) {
	b := New(os.Getenv("TESSDATA_PREFIX"))
	requireEnglish(t, b)

	eng, err := b.NewEngine(context.Background(), "eng")
	require.NoError(t, err)
	defer eng.Close()

	path := filepath.Join(t.TempDir(), "blank.png")
	require.NoError(t, os.WriteFile(path, blankPNG, 0o600))

	out, err := eng.Recognize(context.Background(), ocr.Image{Path: path})
	require.NoError(t, err)
	assert.Empty(t, bytes.TrimSpace([]byte(out.Text)))
}

func TestNewEngineMissingLanguage(t *testing.T) {
	b := New(os.Getenv("TESSDATA_PREFIX"))
	requireEnglish(t, b)

	_, err := b.NewEngine(context.Background(), "xxx_notinstalled")
	assert.Error(t, err)
}
