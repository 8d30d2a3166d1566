package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bytedance/sonic/encoder"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/language"

	"ocrapi/internal/lang"
	"ocrapi/internal/ocr"
	"ocrapi/internal/recognition"
	"ocrapi/internal/render"
	"ocrapi/internal/upload"
	"ocrapi/pkg/models"
)

const (
	// multipartOverhead is allowed on top of the file size limit for
	// boundaries, part headers and the small form fields.
	multipartOverhead = 1 << 20

	maxFieldBytes = 1 << 10

	// langAuto as the lang field selects auto-detect mode.
	langAuto = "auto"
)

var (
	errMissingFile = errors.New("missing file")
	errBadForm     = errors.New("invalid multipart form")
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := encoder.NewStreamEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, models.ErrorResponse{Error: msg})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, models.MessageResponse{Message: "Hello World"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, models.HealthResponse{Status: "ok"})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	backend := s.engine.Backend()
	cfg := s.orchestrator.Config()
	policy := s.stager.Policy()

	installed, err := backend.Languages()
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("engine", backend.Name()).Msg("OCR engine not available")
		installed = []string{}
	}

	resp := models.ConfigResponse{
		Engine:             backend.Name(),
		Available:          err == nil,
		Version:            backend.Version(),
		InstalledLanguages: installed,
		LoadedLanguages:    s.engine.Loaded(),
		PrimaryLanguage:    lang.EngineTag(cfg.Primary),
		AlternateLanguage:  lang.EngineTag(cfg.Alternate),
		MaxUploadBytes:     policy.MaxBytes,
		MaxImagePixels:     policy.MaxPixels,
		AllowedExtensions:  policy.Extensions,
	}
	if resp.LoadedLanguages == nil {
		resp.LoadedLanguages = []string{}
	}
	for _, t := range lang.Supported() {
		resp.Languages = append(resp.Languages, models.LanguageInfo{
			Code:      lang.EngineTag(t),
			Name:      lang.Name(t),
			Installed: slices.Contains(installed, backend.EngineTag(t)),
		})
	}
	for _, f := range render.Formats() {
		resp.OutputFormats = append(resp.OutputFormats, string(f))
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// ocrForm is a parsed OCR request. ws is set once the upload is staged.
type ocrForm struct {
	ws           *upload.Workspace
	filename     string
	lang         string
	outputFormat string
}

func (s *Server) handleOCR(alwaysAuto bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := hlog.FromRequest(r)

		form, err := s.readForm(w, r)
		if err != nil {
			s.writeInputError(w, r, err)
			return
		}
		defer func() {
			if err := form.ws.Cleanup(); err != nil {
				log.Warn().Err(err).Str("dir", form.ws.Dir).Msg("Failed to remove workspace")
			}
		}()

		format, err := render.ParseFormat(form.outputFormat)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		renderer, err := render.New(format, s.opts.Render)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		var out recognition.Outcome
		if alwaysAuto || strings.EqualFold(strings.TrimSpace(form.lang), langAuto) {
			out, err = s.orchestrator.AutoDetect(r.Context(), form.ws.Image)
		} else {
			out, err = s.orchestrator.Recognize(r.Context(), form.ws.Image, s.hint(r, form.lang))
		}
		if err != nil {
			log.Error().Err(err).Int("ocr_calls", out.Calls).Msg("Recognition failed")
			if errors.Is(err, ocr.ErrRecognitionFailed) || errors.Is(err, recognition.ErrNoText) {
				writeError(w, r, http.StatusInternalServerError, "recognition failed")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "internal server error")
			return
		}

		log.Info().
			Str("mode", string(out.Mode)).
			Str("language", lang.EngineTag(out.Language)).
			Int("ocr_calls", out.Calls).
			Int("text_length", len(out.Text)).
			Msg("Image recognized")

		if format == render.FormatText {
			resp := models.OCRResponse{Text: out.Text}
			if out.Mode == recognition.ModeAuto {
				resp.DetectedLanguage = lang.EngineTag(out.Detected)
				resp.LanguageName = lang.Name(out.Detected)
			}
			writeJSON(w, r, http.StatusOK, resp)
			return
		}

		s.sendDocument(w, r, form, format, renderer, out.Text)
	}
}

// hint resolves the lang field. Unknown values fall back to the primary language.
func (s *Server) hint(r *http.Request, value string) language.Tag {
	primary := s.orchestrator.Config().Primary
	value = strings.TrimSpace(value)
	if value == "" {
		return primary
	}
	tag, ok := lang.ParseHint(value)
	if !ok {
		hlog.FromRequest(r).Warn().
			Str("lang", value).
			Str("fallback", lang.EngineTag(primary)).
			Msg("Unsupported language, using default")
		return primary
	}
	return tag
}

func (s *Server) sendDocument(w http.ResponseWriter, r *http.Request, form *ocrForm, format render.Format, renderer render.Renderer, text string) {
	log := hlog.FromRequest(r)

	base := strings.TrimSuffix(filepath.Base(form.filename), filepath.Ext(form.filename))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "upload"
	}
	name := "ocr_result_" + base + format.Extension()
	path := form.ws.Path(name)

	if err := render.WriteFile(renderer, path, text); err != nil {
		log.Error().Err(err).Str("format", string(format)).Msg("Failed to render document")
		writeError(w, r, http.StatusInternalServerError, render.ErrRenderFailed.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open rendered document")
		writeError(w, r, http.StatusInternalServerError, render.ErrRenderFailed.Error())
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Error().Err(err).Msg("Failed to stat rendered document")
		writeError(w, r, http.StatusInternalServerError, render.ErrRenderFailed.Error())
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": name})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Warn().Err(err).Msg("Failed to send document")
	}
}

// readForm streams the multipart body. The file part is staged as it is read
// so the upload is never held in memory. On error nothing is left on disk.
func (s *Server) readForm(w http.ResponseWriter, r *http.Request) (_ *ocrForm, err error) {
	limit := s.stager.Policy().MaxBytes + multipartOverhead
	if r.ContentLength > limit {
		return nil, fmt.Errorf("%w: request body is %d bytes", upload.ErrTooLarge, r.ContentLength)
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadForm, err)
	}

	form := &ocrForm{}
	defer func() {
		if err != nil && form.ws != nil {
			_ = form.ws.Cleanup()
		}
	}()

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, bodyError(err)
		}

		switch part.FormName() {
		case "file":
			if form.ws != nil {
				break
			}
			form.filename = part.FileName()
			ws, err := s.stager.Stage(form.filename, part)
			if err != nil {
				part.Close()
				return nil, err
			}
			form.ws = ws
		case "lang":
			if form.lang, err = readField(part); err != nil {
				part.Close()
				return nil, err
			}
		case "output_format":
			if form.outputFormat, err = readField(part); err != nil {
				part.Close()
				return nil, err
			}
		}
		part.Close()
	}

	if form.ws == nil {
		return nil, errMissingFile
	}
	return form, nil
}

func readField(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxFieldBytes))
	if err != nil {
		return "", bodyError(err)
	}
	return string(b), nil
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: %v", upload.ErrTooLarge, err)
	}
	return fmt.Errorf("%w: %v", errBadForm, err)
}

// writeInputError maps upload errors to client error responses.
func (s *Server) writeInputError(w http.ResponseWriter, r *http.Request, err error) {
	log := hlog.FromRequest(r)
	switch {
	case errors.Is(err, upload.ErrTooManyPixels):
		log.Warn().Err(err).Msg("Upload rejected")
		writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, upload.ErrTooLarge):
		log.Warn().Err(err).Msg("Upload rejected")
		writeError(w, r, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file too large, the limit is %d bytes", s.stager.Policy().MaxBytes))
	case errors.Is(err, upload.ErrUnsupportedType),
		errors.Is(err, upload.ErrInvalidImage),
		errors.Is(err, errBadForm):
		log.Warn().Err(err).Msg("Upload rejected")
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, errMissingFile):
		writeError(w, r, http.StatusBadRequest, "file is required")
	default:
		log.Error().Err(err).Msg("Failed to stage upload")
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}
