package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"ocrapi/internal/lang"
	"ocrapi/internal/logger"
	"ocrapi/internal/ocr"
	"ocrapi/internal/recognition"
	"ocrapi/internal/render"
	"ocrapi/internal/upload"
)

// Supported OCR engines.
const (
	EngineTesseract = "tesseract"
	EngineVision    = ocr.VisionBackendName
)

type Config struct {
	// HTTP Server Configuration
	Addr              string
	TempDir           string
	MaxUploadBytes    int64
	MaxImagePixels    int64
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration

	// OCR Configuration
	Engine            string
	TessdataPrefix    string
	PrimaryLanguage   string
	AlternateLanguage string
	MinLineConfidence float64
	PreloadLanguages  []string

	// Language Detection Configuration
	DetectMinConfidence float64

	// Document Configuration
	DocumentTitle string
	PDFFontPath   string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// keys maps viper keys to their environment variables and defaults.
var keys = []struct {
	key string
	env string
	def any
}{
	{"server.addr", "SERVER_ADDR", ":8000"},
	{"server.temp_dir", "SERVER_TEMP_DIR", ""},
	{"server.max_upload_bytes", "MAX_UPLOAD_BYTES", upload.DefaultMaxBytes},
	{"server.max_image_pixels", "MAX_IMAGE_PIXELS", upload.DefaultMaxPixels},
	{"server.allowed_origins", "CORS_ALLOWED_ORIGINS", []string{"*"}},
	{"server.read_header_timeout", "SERVER_READ_HEADER_TIMEOUT", 10 * time.Second},
	{"server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT", 30 * time.Second},
	{"ocr.engine", "OCR_ENGINE", EngineTesseract},
	{"ocr.tessdata_prefix", "TESSDATA_PREFIX", ""},
	{"ocr.primary_language", "PRIMARY_LANGUAGE", "eng"},
	{"ocr.alternate_language", "ALTERNATE_LANGUAGE", "chi_sim"},
	{"ocr.min_line_confidence", "MIN_LINE_CONFIDENCE", ocr.DefaultMinLineConfidence},
	{"ocr.preload", "OCR_PRELOAD_LANGUAGES", []string{}},
	{"detect.min_confidence", "DETECT_MIN_CONFIDENCE", lang.DefaultMinConfidence},
	{"render.title", "DOCUMENT_TITLE", render.DefaultTitle},
	{"render.pdf_font_path", "PDF_FONT_PATH", ""},
	{"log.level", "LOG_LEVEL", "info"},
	{"log.format", "LOG_FORMAT", "console"},
	{"log.time_format", "LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"},
	{"log.output", "LOG_OUTPUT", "stderr"},
}

func init() {
	for _, k := range keys {
		viper.SetDefault(k.key, k.def)
		// BindEnv only fails without a key
		_ = viper.BindEnv(k.key, k.env)
	}
}

// Load reads the configuration from viper: defaults, environment, an optional
// config file and bound command-line flags, in increasing precedence.
func Load() (*Config, error) {
	return load(viper.GetViper())
}

func load(v *viper.Viper) (*Config, error) {
	config := &Config{
		Addr:                v.GetString("server.addr"),
		TempDir:             v.GetString("server.temp_dir"),
		MaxUploadBytes:      v.GetInt64("server.max_upload_bytes"),
		MaxImagePixels:      v.GetInt64("server.max_image_pixels"),
		AllowedOrigins:      splitList(v.GetStringSlice("server.allowed_origins")),
		ReadHeaderTimeout:   v.GetDuration("server.read_header_timeout"),
		ShutdownTimeout:     v.GetDuration("server.shutdown_timeout"),
		Engine:              strings.ToLower(v.GetString("ocr.engine")),
		TessdataPrefix:      v.GetString("ocr.tessdata_prefix"),
		PrimaryLanguage:     v.GetString("ocr.primary_language"),
		AlternateLanguage:   v.GetString("ocr.alternate_language"),
		MinLineConfidence:   v.GetFloat64("ocr.min_line_confidence"),
		PreloadLanguages:    splitList(v.GetStringSlice("ocr.preload")),
		DetectMinConfidence: v.GetFloat64("detect.min_confidence"),
		DocumentTitle:       v.GetString("render.title"),
		PDFFontPath:         v.GetString("render.pdf_font_path"),
		LogLevel:            v.GetString("log.level"),
		LogFormat:           v.GetString("log.format"),
		LogTimeFormat:       v.GetString("log.time_format"),
		LogOutput:           v.GetString("log.output"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return fmt.Errorf("SERVER_ADDR is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive, got %d", c.MaxImagePixels)
	}
	switch c.Engine {
	case EngineTesseract, EngineVision:
	default:
		return fmt.Errorf("OCR_ENGINE must be %q or %q, got %q", EngineTesseract, EngineVision, c.Engine)
	}
	primary, ok := lang.FromEngineTag(c.PrimaryLanguage)
	if !ok {
		return fmt.Errorf("PRIMARY_LANGUAGE %q is not a supported language", c.PrimaryLanguage)
	}
	alternate, ok := lang.FromEngineTag(c.AlternateLanguage)
	if !ok {
		return fmt.Errorf("ALTERNATE_LANGUAGE %q is not a supported language", c.AlternateLanguage)
	}
	if primary == alternate {
		return fmt.Errorf("PRIMARY_LANGUAGE and ALTERNATE_LANGUAGE must differ, both are %q", c.PrimaryLanguage)
	}
	for _, l := range c.PreloadLanguages {
		if _, ok := lang.FromEngineTag(l); !ok {
			return fmt.Errorf("OCR_PRELOAD_LANGUAGES: %q is not a supported language", l)
		}
	}
	if c.MinLineConfidence > 1 {
		return fmt.Errorf("MIN_LINE_CONFIDENCE must be at most 1, got %v", c.MinLineConfidence)
	}
	if c.DetectMinConfidence < 0 || c.DetectMinConfidence > 1 {
		return fmt.Errorf("DETECT_MIN_CONFIDENCE must be between 0 and 1, got %v", c.DetectMinConfidence)
	}
	return nil
}

// splitList accepts both YAML lists and comma separated environment values.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// GetRecognitionConfig returns the auto-detect defaults.
func (c *Config) GetRecognitionConfig() recognition.Config {
	primary, _ := lang.FromEngineTag(c.PrimaryLanguage)
	alternate, _ := lang.FromEngineTag(c.AlternateLanguage)
	return recognition.Config{Primary: primary, Alternate: alternate}
}

// GetUploadPolicy returns the upload limits.
func (c *Config) GetUploadPolicy() upload.Policy {
	p := upload.DefaultPolicy()
	p.MaxBytes = c.MaxUploadBytes
	p.MaxPixels = c.MaxImagePixels
	return p
}

// GetRenderOptions returns the document options.
func (c *Config) GetRenderOptions() render.Options {
	return render.Options{Title: c.DocumentTitle, FontPath: c.PDFFontPath}
}
