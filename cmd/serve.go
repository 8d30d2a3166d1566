package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ocrapi/internal/logger"
	"ocrapi/internal/server"
	"ocrapi/internal/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OCR HTTP API",
	Long: `Start the HTTP API.

Endpoints:
  GET  /, /api/           liveness message
  GET  /api/health        health check
  GET  /api/config        engine, languages and limits
  POST /ocr, /api/ocr     recognize an uploaded image (lang, output_format)
  POST /ocr/auto          recognize with language detection
  GET  /metrics           Prometheus metrics`,
	Example: `  # Serve with the local Tesseract engine
  ocrapi serve --addr :8000

  # Serve with Google Cloud Vision and Japanese/English defaults
  OCR_ENGINE=vision ocrapi serve --primary-language jpn --alternate-language eng`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8000", "listen address")
	serveCmd.Flags().String("engine", "tesseract", "OCR engine (tesseract, vision)")
	serveCmd.Flags().String("temp-dir", "", "directory for per-request temporary files (default: system temp dir)")
	serveCmd.Flags().Int64("max-upload-bytes", upload.DefaultMaxBytes, "largest accepted upload in bytes")
	serveCmd.Flags().Int64("max-image-pixels", upload.DefaultMaxPixels, "largest accepted image in pixels (width*height)")
	serveCmd.Flags().String("primary-language", "eng", "first language tried in auto mode")
	serveCmd.Flags().String("alternate-language", "chi_sim", "language tried when the primary finds no text")
	serveCmd.Flags().StringSlice("preload", nil, "languages to load at startup, e.g. eng,chi_sim")

	mustBindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	mustBindPFlag("ocr.engine", serveCmd.Flags().Lookup("engine"))
	mustBindPFlag("server.temp_dir", serveCmd.Flags().Lookup("temp-dir"))
	mustBindPFlag("server.max_upload_bytes", serveCmd.Flags().Lookup("max-upload-bytes"))
	mustBindPFlag("server.max_image_pixels", serveCmd.Flags().Lookup("max-image-pixels"))
	mustBindPFlag("ocr.primary_language", serveCmd.Flags().Lookup("primary-language"))
	mustBindPFlag("ocr.alternate_language", serveCmd.Flags().Lookup("alternate-language"))
	mustBindPFlag("ocr.preload", serveCmd.Flags().Lookup("preload"))
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release OCR engines")
		}
	}()

	if len(cfg.PreloadLanguages) > 0 {
		if err := p.preload(ctx, cfg.PreloadLanguages); err != nil {
			return fmt.Errorf("failed to preload OCR engines: %w", err)
		}
	}

	stager, err := upload.NewStager(cfg.TempDir, cfg.GetUploadPolicy(), logger.WithComponent("upload"))
	if err != nil {
		return err
	}

	srv := server.New(p.orchestrator, p.recognizer, stager, server.Options{
		Addr:              cfg.Addr,
		AllowedOrigins:    cfg.AllowedOrigins,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		Render:            cfg.GetRenderOptions(),
	}, logger.WithComponent("server"))

	log.Info().
		Str("addr", cfg.Addr).
		Str("engine", cfg.Engine).
		Str("primary_language", cfg.PrimaryLanguage).
		Str("alternate_language", cfg.AlternateLanguage).
		Int64("max_upload_bytes", cfg.MaxUploadBytes).
		Int64("max_image_pixels", cfg.MaxImagePixels).
		Msg("Starting OCR API")

	return srv.Run(ctx)
}
