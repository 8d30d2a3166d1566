package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ocrapi/internal/lang"
	"ocrapi/internal/logger"
	"ocrapi/internal/ocr"
	"ocrapi/internal/recognition"
	"ocrapi/internal/render"
	"ocrapi/internal/upload"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Recognize text in a local image",
	Long: `Recognize the text in an image file with the configured OCR engine.

Without --lang the language is detected: the image is recognized with the
primary and alternate default languages and, if detection finds another
supported language, once more with that language. At most two OCR passes are
made per image.

The result is written as plain text, JSON, a Word document or a PDF.`,
	Example: `  # Detect the language and print the text
  ocrapi ocr receipt.jpg

  # Recognize Japanese text
  ocrapi ocr scan.png --lang jpn

  # Include detection details and output as JSON
  ocrapi ocr scan.png --json -o result.json

  # Produce a PDF document
  ocrapi ocr scan.png --format pdf -o scan.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string   `json:"text"`
	Mode               string   `json:"mode"`
	Language           string   `json:"language"`
	DetectedLanguage   string   `json:"detected_language,omitempty"`
	LanguageName       string   `json:"language_name,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty"`
	OCRCalls           int      `json:"ocr_calls"`
	Engine             string   `json:"engine"`
	ProcessingDuration string   `json:"processing_duration"`
	FileName           string   `json:"file_name"`
	FileSize           int64    `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().StringP("lang", "l", "auto", "Language hint, e.g. eng, chi_sim, ja, or auto to detect")
	ocrCmd.Flags().StringP("format", "f", "text", "Output format: text, word or pdf")
	ocrCmd.Flags().Bool("json", false, "Output as JSON (text format only)")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	langFlag, _ := cmd.Flags().GetString("lang")
	formatFlag, _ := cmd.Flags().GetString("format")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	log.Info().
		Str("file", imagePath).
		Str("output", outputPath).
		Str("lang", langFlag).
		Str("format", formatFlag).
		Bool("json", jsonOutput).
		Int("timeout", timeoutSecs).
		Msg("Starting OCR processing")

	format, err := render.ParseFormat(formatFlag)
	if err != nil {
		return err
	}
	if jsonOutput && format != render.FormatText {
		return fmt.Errorf("--json can only be used with --format text")
	}

	auto := strings.EqualFold(langFlag, "auto")
	var hint = lang.Default
	if !auto {
		var ok bool
		if hint, ok = lang.ParseHint(langFlag); !ok {
			return fmt.Errorf("unsupported language %q. Supported: auto, %s", langFlag, strings.Join(lang.EngineTags(), ", "))
		}
	}

	policy := cfg.GetUploadPolicy()
	fileInfo, err := validateImageFile(imagePath, policy, log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(timeoutSecs, log)
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

	stager, err := upload.NewStager(cfg.TempDir, policy, logger.WithComponent("upload"))
	if err != nil {
		return err
	}
	ws, err := stageImage(stager, imagePath)
	if err != nil {
		return handleOCRError(err, log)
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn().Err(err).Str("dir", ws.Dir).Msg("Failed to remove workspace")
		}
	}()

	startTime := time.Now()
	var out recognition.Outcome
	if auto {
		out, err = p.orchestrator.AutoDetect(ctx, ws.Image)
	} else {
		out, err = p.orchestrator.Recognize(ctx, ws.Image, hint)
	}
	if err != nil {
		return handleOCRError(err, log)
	}
	processingDuration := time.Since(startTime)

	log.Info().
		Str("mode", string(out.Mode)).
		Str("language", lang.EngineTag(out.Language)).
		Int("ocr_calls", out.Calls).
		Dur("duration", processingDuration).
		Int("text_length", len(out.Text)).
		Msg("OCR processing completed successfully")

	var outputData []byte
	switch {
	case jsonOutput:
		result := OCROutput{
			Text:               out.Text,
			Mode:               string(out.Mode),
			Language:           lang.EngineTag(out.Language),
			Confidence:         out.Confidence,
			OCRCalls:           out.Calls,
			Engine:             p.recognizer.Backend().Name(),
			ProcessingDuration: processingDuration.String(),
			FileName:           filepath.Base(fileInfo.Name()),
			FileSize:           fileInfo.Size(),
		}
		if out.Mode == recognition.ModeAuto {
			result.DetectedLanguage = lang.EngineTag(out.Detected)
			result.LanguageName = lang.Name(out.Detected)
		}
		outputData, err = sonic.ConfigStd.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Error().Err(err).Msg("Failed to marshal JSON output")
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
	default:
		renderer, err := render.New(format, cfg.GetRenderOptions())
		if err != nil {
			return err
		}
		var buf bytes.Buffer
		if err := renderer.Render(&buf, out.Text); err != nil {
			log.Error().Err(err).Str("format", string(format)).Msg("Failed to render document")
			return fmt.Errorf("%w: %w", render.ErrRenderFailed, err)
		}
		outputData = buf.Bytes()
	}

	return writeOutput(outputData, outputPath, format == render.FormatText, log)
}

// validateImageFile checks if the file exists, is readable, and has an allowed extension and size
func validateImageFile(imagePath string, policy upload.Policy, log zerolog.Logger) (os.FileInfo, error) {
	fileInfo, err := os.Stat(imagePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Image file not found")
			return nil, fmt.Errorf("image file not found: %s", imagePath)
		}
		if os.IsPermission(err) {
			log.Error().
				Str("file", imagePath).
				Msg("Permission denied accessing image file")
			return nil, fmt.Errorf("permission denied accessing image file: %s", imagePath)
		}
		return nil, fmt.Errorf("error accessing image file: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		log.Error().
			Str("file", imagePath).
			Msg("Path is not a regular file")
		return nil, fmt.Errorf("path is not a regular file: %s", imagePath)
	}

	if fileInfo.Size() == 0 {
		log.Error().
			Str("file", imagePath).
			Msg("Image file is empty")
		return nil, fmt.Errorf("image file is empty: %s", imagePath)
	}

	if err := policy.CheckExtension(imagePath); err != nil {
		return nil, handleOCRError(err, log)
	}
	if err := policy.CheckSize(fileInfo.Size()); err != nil {
		return nil, handleOCRError(err, log)
	}

	return fileInfo, nil
}

func stageImage(stager *upload.Stager, imagePath string) (*upload.Workspace, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()
	return stager.Stage(filepath.Base(imagePath), f)
}

// createContextWithTimeout creates a context with timeout and signal handling
func createContextWithTimeout(timeoutSecs int, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling OCR processing")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// handleOCRError provides user-friendly error messages for OCR failures
func handleOCRError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("OCR processing failed")

	errStr := err.Error()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("OCR processing timed out. Try increasing --timeout or processing a smaller image")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("OCR processing was canceled")
	case errors.Is(err, upload.ErrTooLarge):
		return fmt.Errorf("image is too large: %w", err)
	case errors.Is(err, upload.ErrUnsupportedType):
		return fmt.Errorf("unsupported image type. Use one of: %s", strings.Join(upload.DefaultExtensions, ", "))
	case errors.Is(err, upload.ErrInvalidImage):
		return fmt.Errorf("invalid or corrupted image file. Please check the file integrity")
	case errors.Is(err, recognition.ErrNoText):
		return fmt.Errorf("no readable text found in the image")
	case errors.Is(err, ocr.ErrEngineUnavailable):
		return fmt.Errorf("OCR engine could not be loaded. For Tesseract, check that the traineddata for the language is installed (TESSDATA_PREFIX): %w", err)
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "transport: per-RPC creds failed"):
		return fmt.Errorf("Google Cloud authentication failed. Please check GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS.\n\nOriginal error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED"):
		return fmt.Errorf("permission denied. Please ensure your Google Cloud service account has the 'Cloud Vision API User' role")
	case strings.Contains(errStr, "QUOTA_EXCEEDED") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("Google Cloud Vision API quota exceeded. Check your project quotas in the Google Cloud Console")
	case errors.Is(err, ocr.ErrRecognitionFailed):
		return fmt.Errorf("OCR engine failed to recognize the image: %w", err)
	default:
		return fmt.Errorf("OCR processing failed: %w", err)
	}
}

// writeOutput writes the result to outputPath or stdout
func writeOutput(outputData []byte, outputPath string, textual bool, log zerolog.Logger) error {
	if outputPath != "" {
		if err := os.WriteFile(outputPath, outputData, 0o644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}

		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(outputData)).
			Msg("OCR results written to file")
		return nil
	}

	if _, err := os.Stdout.Write(outputData); err != nil {
		log.Error().Err(err).Msg("Failed to write to stdout")
		return fmt.Errorf("failed to write output: %w", err)
	}
	if textual {
		fmt.Println()
	}
	return nil
}
