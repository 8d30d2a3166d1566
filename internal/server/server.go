// Package server exposes the OCR pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"ocrapi/internal/ocr"
	"ocrapi/internal/recognition"
	"ocrapi/internal/render"
	"ocrapi/internal/upload"
)

// DefaultShutdownTimeout is the default time to wait for in-flight requests on shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// Orchestrator runs recognition for one staged image.
type Orchestrator interface {
	Recognize(ctx context.Context, img ocr.Image, tag language.Tag) (recognition.Outcome, error)
	AutoDetect(ctx context.Context, img ocr.Image) (recognition.Outcome, error)
	Config() recognition.Config
}

// EngineStatus reports on the OCR engine. *ocr.Recognizer implements it.
type EngineStatus interface {
	Backend() ocr.Backend
	Loaded() []string
}

// Options configures the HTTP server.
type Options struct {
	Addr              string
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
	Render            render.Options
}

// Server serves the OCR API.
type Server struct {
	orchestrator Orchestrator
	engine       EngineStatus
	stager       *upload.Stager
	opts         Options
	logger       zerolog.Logger
}

// New creates a Server.
func New(orchestrator Orchestrator, engine EngineStatus, stager *upload.Stager, opts Options, logger zerolog.Logger) *Server {
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		orchestrator: orchestrator,
		engine:       engine,
		stager:       stager,
		opts:         opts,
		logger:       logger,
	}
}

// Handler returns the routed handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/config", s.handleConfig)
	mux.Handle("GET /metrics", promhttp.Handler())

	for _, prefix := range []string{"/ocr", "/api/ocr"} {
		mux.HandleFunc("POST "+prefix, s.handleOCR(false))
		mux.HandleFunc("POST "+prefix+"/{$}", s.handleOCR(false))
		mux.HandleFunc("POST "+prefix+"/auto", s.handleOCR(true))
		mux.HandleFunc("POST "+prefix+"/auto/{$}", s.handleOCR(true))
	}

	var h http.Handler = mux
	h = corsMiddleware(s.opts.AllowedOrigins)(h)
	h = recoverMiddleware(h)
	h = accessMiddleware(h)
	h = requestIDMiddleware(h)
	h = loggerMiddleware(s.logger)(h)
	return h
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", ln.Addr().String()).Msg("OCR API server starting")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutdown signal received, starting graceful shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	srv.SetKeepAlivesEnabled(false)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().
			Err(err).
			Dur("timeout", s.opts.ShutdownTimeout).
			Msg("Graceful shutdown failed, forcing close")
		_ = srv.Close()
		return err
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
