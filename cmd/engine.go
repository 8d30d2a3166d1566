package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"ocrapi/internal/config"
	"ocrapi/internal/lang"
	"ocrapi/internal/logger"
	"ocrapi/internal/ocr"
	"ocrapi/internal/ocr/tesseract"
	"ocrapi/internal/recognition"
)

// newBackend builds the configured OCR backend. Tests replace it.
var newBackend = func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (ocr.Backend, error) {
	switch cfg.Engine {
	case config.EngineTesseract:
		return tesseract.New(cfg.TessdataPrefix), nil
	case config.EngineVision:
		return createVisionBackend(ctx, log)
	default:
		return nil, fmt.Errorf("%w: %q", ocr.ErrUnknownBackend, cfg.Engine)
	}
}

// pipeline is the recognition stack shared by the serve and ocr commands.
type pipeline struct {
	recognizer   *ocr.Recognizer
	orchestrator *recognition.Orchestrator
}

func newPipeline(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	log := logger.WithComponent("engine")

	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("engine", backend.Name()).
		Str("version", backend.Version()).
		Msg("OCR backend ready")

	rec := ocr.NewRecognizer(backend, cfg.MinLineConfidence, logger.WithComponent("ocr"))
	detector := lang.NewDetector(cfg.DetectMinConfidence, logger.WithComponent("detector"))
	orch := recognition.New(rec, detector, cfg.GetRecognitionConfig(), logger.WithComponent("recognition"))

	return &pipeline{recognizer: rec, orchestrator: orch}, nil
}

func (p *pipeline) preload(ctx context.Context, engineTags []string) error {
	tags := make([]language.Tag, 0, len(engineTags))
	for _, s := range engineTags {
		t, ok := lang.FromEngineTag(s)
		if !ok {
			return fmt.Errorf("unsupported language %q", s)
		}
		tags = append(tags, t)
	}
	return p.recognizer.Preload(ctx, tags...)
}

func (p *pipeline) Close() error {
	return p.recognizer.Close()
}

// createVisionBackend creates the Google Cloud Vision backend with
// actionable messages for credential problems.
func createVisionBackend(ctx context.Context, log zerolog.Logger) (ocr.Backend, error) {
	hasCredentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" || os.Getenv("GOOGLE_CREDENTIALS") != ""
	if !hasCredentials {
		log.Warn().Msg("Google Cloud credentials not configured, trying Application Default Credentials")
	}

	backend, err := ocr.NewGoogleVisionBackend(ctx)
	if err != nil {
		if errors.Is(err, ocr.ErrMissingCredentials) {
			log.Error().
				Err(err).
				Msg("Google Cloud credentials validation failed")
			return nil, fmt.Errorf("Google Cloud credentials not configured. Please set one of:\n\n"+
				"1. Export GOOGLE_APPLICATION_CREDENTIALS with path to service account JSON:\n"+
				"   export GOOGLE_APPLICATION_CREDENTIALS=/path/to/service-account-key.json\n\n"+
				"2. Export GOOGLE_CREDENTIALS with inline JSON:\n"+
				"   export GOOGLE_CREDENTIALS='{\"type\":\"service_account\",\"project_id\":\"your-project\",...}'\n\n"+
				"3. Use Application Default Credentials (if gcloud is configured):\n"+
				"   gcloud auth application-default login\n\n"+
				"Or set OCR_ENGINE=tesseract to use the local engine.\n\n"+
				"Original error: %w", err)
		}
		log.Error().
			Err(err).
			Msg("Failed to create Vision backend")
		return nil, fmt.Errorf("failed to create Vision backend: %w", err)
	}
	return backend, nil
}
