package server

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"ocrapi/internal/lang"
	"ocrapi/internal/ocr"
	"ocrapi/internal/recognition"
	"ocrapi/internal/render"
	"ocrapi/internal/upload"
	"ocrapi/pkg/models"
)

const englishText = "The quick brown fox jumps over the lazy dog while the children are watching from the window."

// fakeBackend answers with fixed text per engine tag and records every pass.
type fakeBackend struct {
	mu    sync.Mutex
	texts map[string]string
	err   error
	tags  []string
	calls atomic.Int32
}

func newFakeBackend(texts map[string]string) *fakeBackend {
	return &fakeBackend{texts: texts}
}

func (b *fakeBackend) Name() string                    { return "fake" }
func (b *fakeBackend) Version() string                 { return "1.0" }
func (b *fakeBackend) EngineTag(t language.Tag) string { return lang.EngineTag(t) }
func (b *fakeBackend) Languages() ([]string, error)    { return []string{"chi_sim", "eng"}, nil }
func (b *fakeBackend) Close() error                    { return nil }

func (b *fakeBackend) NewEngine(ctx context.Context, engineTag string) (ocr.Engine, error) {
	return &fakeEngine{backend: b, tag: engineTag}, nil
}

func (b *fakeBackend) recognized() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.tags...)
}

type fakeEngine struct {
	backend *fakeBackend
	tag     string
}

func (e *fakeEngine) Recognize(ctx context.Context, img ocr.Image) (ocr.Output, error) {
	b := e.backend
	b.calls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tags = append(b.tags, e.tag)
	if b.err != nil {
		return ocr.Output{}, b.err
	}
	return ocr.Output{Text: b.texts[e.tag]}, nil
}

func (e *fakeEngine) Close() error { return nil }

type testServer struct {
	handler http.Handler
	tempDir string
}

func newTestServer(t *testing.T, backend ocr.Backend) *testServer {
	return newTestServerWith(t, backend, upload.DefaultPolicy(), Options{})
}

func newTestServerWith(t *testing.T, backend ocr.Backend, policy upload.Policy, opts Options) *testServer {
	t.Helper()
	dir := t.TempDir()
	stager, err := upload.NewStager(dir, policy, zerolog.Nop())
	require.NoError(t, err)

	rec := ocr.NewRecognizer(backend, ocr.DefaultMinLineConfidence, zerolog.Nop())
	t.Cleanup(func() { _ = rec.Close() })
	detector := lang.NewDetector(lang.DefaultMinConfidence, zerolog.Nop())
	orch := recognition.New(rec, detector, recognition.DefaultConfig(), zerolog.Nop())

	return &testServer{
		handler: New(orch, rec, stager, opts, zerolog.Nop()).Handler(),
		tempDir: dir,
	}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) assertNoArtifacts(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(ts.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(3, 3, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func ocrRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(nil))

	for _, path := range []string{"/", "/api/"} {
		rec := ts.do(httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "Hello World", decode[models.MessageResponse](t, rec).Message)
	}

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[models.HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(nil))
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	assert.Equal(t, "abc-123", ts.do(req).Header().Get(RequestIDHeader))
}

func TestRequestIDIsLogged(t *testing.T) {
	var buf bytes.Buffer
	h := loggerMiddleware(zerolog.New(&buf))(requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hlog.FromRequest(r).Info().Msg("handled")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Contains(t, buf.String(), `"request_id":"abc-123"`)

	buf.Reset()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	generated := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, generated)
	assert.Contains(t, buf.String(), `"request_id":"`+generated+`"`)
}

func TestConfig(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(nil))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/config", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cfg := decode[models.ConfigResponse](t, rec)
	assert.Equal(t, "fake", cfg.Engine)
	assert.True(t, cfg.Available)
	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, []string{"chi_sim", "eng"}, cfg.InstalledLanguages)
	assert.Equal(t, "eng", cfg.PrimaryLanguage)
	assert.Equal(t, "chi_sim", cfg.AlternateLanguage)
	assert.Equal(t, upload.DefaultMaxBytes, cfg.MaxUploadBytes)
	assert.Equal(t, upload.DefaultMaxPixels, cfg.MaxImagePixels)
	assert.Equal(t, []string{"text", "word", "pdf"}, cfg.OutputFormats)
	require.Len(t, cfg.Languages, len(lang.Supported()))

	installed := map[string]bool{}
	for _, l := range cfg.Languages {
		installed[l.Code] = l.Installed
	}
	assert.True(t, installed["eng"])
	assert.True(t, installed["chi_sim"])
	assert.False(t, installed["jpn"])
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(nil))

	req := httptest.NewRequest(http.MethodOptions, "/api/ocr", nil)
	req.Header.Set("Origin", "http://example.com")
	rec := ts.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSRestrictedOrigins(t *testing.T) {
	ts := newTestServerWith(t, newFakeBackend(nil), upload.DefaultPolicy(),
		Options{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	assert.Equal(t, "https://app.example.com", ts.do(req).Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	assert.Empty(t, ts.do(req).Header().Get("Access-Control-Allow-Origin"))
}

func TestOCRFixedLanguage(t *testing.T) {
	backend := newFakeBackend(map[string]string{"eng": "Hello World"})
	ts := newTestServer(t, backend)

	for _, path := range []string{"/ocr", "/ocr/", "/api/ocr", "/api/ocr/"} {
		t.Run(path, func(t *testing.T) {
			rec := ts.do(ocrRequest(t, path, "hello.png", pngBytes(t), map[string]string{"lang": "eng"}))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			resp := decode[models.OCRResponse](t, rec)
			assert.Equal(t, "Hello World", resp.Text)
			assert.Empty(t, resp.DetectedLanguage)
			assert.Empty(t, resp.LanguageName)
			assert.NotContains(t, rec.Body.String(), "detected_language")
			ts.assertNoArtifacts(t)
		})
	}
	assert.Equal(t, int32(4), backend.calls.Load())
}

func TestOCRLanguageHint(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"", "eng"},
		{"jpn", "jpn"},
		{"ja", "jpn"},
		{"zh-tw", "chi_tra"},
		{"klingon", "eng"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			backend := newFakeBackend(map[string]string{tt.want: "text"})
			ts := newTestServer(t, backend)

			fields := map[string]string{}
			if tt.lang != "" {
				fields["lang"] = tt.lang
			}
			rec := ts.do(ocrRequest(t, "/ocr", "scan.png", pngBytes(t), fields))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, []string{tt.want}, backend.recognized())
		})
	}
}

func TestOCREmptyTextInFixedModeIsSuccess(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(map[string]string{"eng": "   "}))

	rec := ts.do(ocrRequest(t, "/ocr", "blank.png", pngBytes(t), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", decode[models.OCRResponse](t, rec).Text)
}

func TestOCRAutoDetectConfirmsPrimary(t *testing.T) {
	backend := newFakeBackend(map[string]string{"eng": englishText})
	ts := newTestServer(t, backend)

	for _, req := range []*http.Request{
		ocrRequest(t, "/ocr", "page.png", pngBytes(t), map[string]string{"lang": "auto"}),
		ocrRequest(t, "/api/ocr/auto", "page.png", pngBytes(t), nil),
	} {
		rec := ts.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		resp := decode[models.OCRResponse](t, rec)
		assert.Equal(t, englishText, resp.Text)
		assert.Equal(t, "eng", resp.DetectedLanguage)
		assert.Equal(t, "English", resp.LanguageName)
	}
	// detection confirmed the hint, so one pass per request
	assert.Equal(t, []string{"eng", "eng"}, backend.recognized())
	ts.assertNoArtifacts(t)
}

func TestOCRAutoDetectFallsBackToAlternate(t *testing.T) {
	chinese := "这是一个简单的中文句子，用来测试语言识别。"
	backend := newFakeBackend(map[string]string{"chi_sim": chinese})
	ts := newTestServer(t, backend)

	rec := ts.do(ocrRequest(t, "/ocr/auto", "page.png", pngBytes(t), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[models.OCRResponse](t, rec)
	assert.Equal(t, chinese, resp.Text)
	assert.Equal(t, "chi_sim", resp.DetectedLanguage)
	assert.Equal(t, []string{"eng", "chi_sim"}, backend.recognized())
}

func TestOCRAutoDetectRerunsWithDetectedLanguage(t *testing.T) {
	backend := newFakeBackend(map[string]string{
		"eng": "これはひらがなとカタカナのテストです",
		"jpn": "これは日本語のテストです",
	})
	ts := newTestServer(t, backend)

	rec := ts.do(ocrRequest(t, "/ocr/auto/", "page.png", pngBytes(t), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[models.OCRResponse](t, rec)
	assert.Equal(t, "これは日本語のテストです", resp.Text)
	assert.Equal(t, "jpn", resp.DetectedLanguage)
	assert.Equal(t, lang.Name(language.Japanese), resp.LanguageName)
	assert.Equal(t, []string{"eng", "jpn"}, backend.recognized())
}

func TestOCRAutoDetectNoText(t *testing.T) {
	backend := newFakeBackend(map[string]string{})
	ts := newTestServer(t, backend)

	rec := ts.do(ocrRequest(t, "/ocr/auto", "empty.png", pngBytes(t), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "recognition failed", decode[models.ErrorResponse](t, rec).Error)
	assert.Equal(t, int32(recognition.MaxOCRCalls), backend.calls.Load())
	ts.assertNoArtifacts(t)
}

func TestOCREngineFailure(t *testing.T) {
	backend := newFakeBackend(nil)
	backend.err = errors.New("engine crashed")
	ts := newTestServer(t, backend)

	rec := ts.do(ocrRequest(t, "/ocr", "page.png", pngBytes(t), map[string]string{"output_format": "pdf"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "recognition failed", decode[models.ErrorResponse](t, rec).Error)
	ts.assertNoArtifacts(t)
}

func TestOCRWordDocument(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(map[string]string{"eng": "Hello World"}))

	rec := ts.do(ocrRequest(t, "/api/ocr", "invoice scan.jpg.png", pngBytes(t), map[string]string{"output_format": "word"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, render.FormatWord.ContentType(), rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ocr_result_invoice scan.jpg.docx")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	ts.assertNoArtifacts(t)
}

func TestOCRPDFDocument(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(map[string]string{"eng": "Hello World"}))

	rec := ts.do(ocrRequest(t, "/ocr", "hello.png", pngBytes(t), map[string]string{"output_format": "PDF"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "ocr_result_hello.pdf")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	assert.Equal(t, rec.Header().Get("Content-Length"), strconv.Itoa(rec.Body.Len()))
	ts.assertNoArtifacts(t)
}

func TestOCRRenderFailure(t *testing.T) {
	backend := newFakeBackend(map[string]string{"eng": "Hello World"})
	ts := newTestServerWith(t, backend, upload.DefaultPolicy(),
		Options{Render: render.Options{FontPath: "/nonexistent/font.ttf"}})

	rec := ts.do(ocrRequest(t, "/ocr", "hello.png", pngBytes(t), map[string]string{"output_format": "pdf"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to render document", decode[models.ErrorResponse](t, rec).Error)
	assert.Equal(t, int32(1), backend.calls.Load())
	ts.assertNoArtifacts(t)
}

func TestOCRRejectsOversizedUpload(t *testing.T) {
	backend := newFakeBackend(map[string]string{"eng": "Hello World"})
	ts := newTestServer(t, backend)

	big := make([]byte, 51<<20)
	copy(big, pngBytes(t))
	rec := ts.do(ocrRequest(t, "/ocr", "huge.png", big, nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decode[models.ErrorResponse](t, rec).Error, "too large")
	assert.Zero(t, backend.calls.Load())
	ts.assertNoArtifacts(t)
}

func TestOCRRejectsOversizedStreamedUpload(t *testing.T) {
	backend := newFakeBackend(map[string]string{"eng": "Hello World"})
	ts := newTestServerWith(t, backend, upload.Policy{MaxBytes: 1024, Extensions: upload.DefaultExtensions}, Options{})

	req := ocrRequest(t, "/ocr", "huge.png", make([]byte, 8<<10), nil)
	req.ContentLength = -1
	rec := ts.do(req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, backend.calls.Load())
	ts.assertNoArtifacts(t)
}

func TestOCRRejectsOversizedDimensions(t *testing.T) {
	backend := newFakeBackend(map[string]string{"eng": "Hello World"})
	policy := upload.DefaultPolicy()
	policy.MaxPixels = 100
	ts := newTestServerWith(t, backend, policy, Options{})

	rec := ts.do(ocrRequest(t, "/ocr", "scan.png", pngBytes(t), nil))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decode[models.ErrorResponse](t, rec)
	assert.Contains(t, body.Error, "32x16")
	assert.Zero(t, backend.calls.Load())
	ts.assertNoArtifacts(t)
}

func TestOCRClientErrors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  func(t *testing.T) []byte
		fields   map[string]string
		want     string
	}{
		{"executable", "payload.exe", func(*testing.T) []byte { return []byte("MZ") }, nil, "unsupported file type"},
		{"no extension", "image", pngBytes, nil, "unsupported file type"},
		{"not an image", "fake.png", func(*testing.T) []byte { return []byte("plain text") }, nil, "invalid image"},
		{"missing file", "", nil, map[string]string{"lang": "eng"}, "file is required"},
		{"bad output format", "ok.png", pngBytes, map[string]string{"output_format": "xlsx"}, "unsupported output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend(map[string]string{"eng": "Hello World"})
			ts := newTestServer(t, backend)

			var content []byte
			if tt.content != nil {
				content = tt.content(t)
			}
			rec := ts.do(ocrRequest(t, "/ocr", tt.filename, content, tt.fields))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[models.ErrorResponse](t, rec).Error, tt.want)
			assert.Zero(t, backend.calls.Load())
			ts.assertNoArtifacts(t)
		})
	}
}

func TestOCRRejectsNonMultipartBody(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(nil))

	req := httptest.NewRequest(http.MethodPost, "/ocr", strings.NewReader(`{"file": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, ts.do(req).Code)
}

type panickingOrchestrator struct{}

func (panickingOrchestrator) Recognize(context.Context, ocr.Image, language.Tag) (recognition.Outcome, error) {
	panic("unexpected")
}

func (panickingOrchestrator) AutoDetect(context.Context, ocr.Image) (recognition.Outcome, error) {
	panic("unexpected")
}

func (panickingOrchestrator) Config() recognition.Config { return recognition.DefaultConfig() }

func TestPanicIsRecoveredAndCleanedUp(t *testing.T) {
	dir := t.TempDir()
	stager, err := upload.NewStager(dir, upload.DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	rec := ocr.NewRecognizer(newFakeBackend(nil), 0, zerolog.Nop())
	ts := &testServer{
		handler: New(panickingOrchestrator{}, rec, stager, Options{}, zerolog.Nop()).Handler(),
		tempDir: dir,
	}

	resp := ts.do(ocrRequest(t, "/ocr", "page.png", pngBytes(t), nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
	assert.Equal(t, "internal server error", decode[models.ErrorResponse](t, resp).Error)
	ts.assertNoArtifacts(t)
}

func TestPanicAfterResponseStartedAbortsConnection(t *testing.T) {
	h := recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
		_, _ = io.Copy(w, strings.NewReader("%PDF-1.3 partial"))
		panic("render broke mid-stream")
	}))

	rec := httptest.NewRecorder()
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ocr", nil))
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.3 partial", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, newFakeBackend(nil))
	ts.do(httptest.NewRequest(http.MethodGet, "/api/health", nil))

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ocrapi_http_requests_total{route="GET /api/health",status="200"}`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	stager, err := upload.NewStager(t.TempDir(), upload.DefaultPolicy(), zerolog.Nop())
	require.NoError(t, err)
	rec := ocr.NewRecognizer(newFakeBackend(nil), 0, zerolog.Nop())
	orch := recognition.New(rec, lang.NewDetector(0, zerolog.Nop()), recognition.DefaultConfig(), zerolog.Nop())
	srv := New(orch, rec, stager, Options{ShutdownTimeout: time.Second}, zerolog.Nop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/api/health")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
