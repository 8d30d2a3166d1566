package ocr

import (
	"errors"
	"fmt"
)

// Common OCR processing errors
var (
	// ErrRecognitionFailed is returned by the Recognizer whenever the engine
	// could not produce a result. It is the only error the Recognizer returns;
	// the cause is attached through OCRError.
	ErrRecognitionFailed = errors.New("OCR recognition failed")

	// ErrEngineUnavailable is returned when an engine instance could not be loaded,
	// typically because the language data is not installed.
	ErrEngineUnavailable = errors.New("OCR engine unavailable")

	// ErrUnknownBackend is returned for a backend name that is not compiled in.
	ErrUnknownBackend = errors.New("unknown OCR backend")

	// ErrMissingCredentials is returned when neither GOOGLE_APPLICATION_CREDENTIALS
	// nor GOOGLE_CREDENTIALS environment variables are configured.
	ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS environment variable")

	// ErrPoolClosed is returned by Pool.Acquire after Close.
	ErrPoolClosed = errors.New("engine pool closed")
)

// OCRError wraps errors with additional context about the OCR processing failure.
type OCRError struct {
	// Op is the operation that failed (e.g., "Recognize", "NewEngine").
	Op string

	// Err is the underlying error.
	Err error

	// Details provides additional context about the failure.
	Details string
}

// Error implements the error interface.
func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *OCRError) Unwrap() error {
	return e.Err
}

// Is implements error matching for Go 1.13+ error handling.
func (e *OCRError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewOCRError creates a new OCRError with the specified operation and underlying error.
func NewOCRError(op string, err error, details string) *OCRError {
	return &OCRError{
		Op:      op,
		Err:     err,
		Details: details,
	}
}

// WrapOCRError wraps an error as an OCRError if it isn't already one.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err // Already wrapped
	}

	return NewOCRError(op, err, details)
}

// failure reports err as a recognition failure while keeping the cause in the chain.
func failure(op string, err error) error {
	return NewOCRError(op, fmt.Errorf("%w: %w", ErrRecognitionFailed, err), "")
}
