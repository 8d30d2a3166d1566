// Package upload validates uploaded images and stages them on disk for OCR.
//
// Every upload gets its own temporary directory. The decoded image is stored
// there as PNG, rendered documents are written next to it, and Cleanup
// removes the whole directory.
package upload

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"ocrapi/internal/ocr"
)

// DefaultMaxBytes is the largest accepted upload.
const DefaultMaxBytes int64 = 50 << 20

// DefaultMaxPixels caps the decoded size of an image at 100 megapixels.
const DefaultMaxPixels int64 = 100_000_000

// DefaultExtensions are the accepted file extensions.
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif", ".tif", ".tiff", ".webp"}

var (
	// ErrTooLarge is returned for uploads over the size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrUnsupportedType is returned for extensions outside the allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrInvalidImage is returned when the upload does not decode as an image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrTooManyPixels is returned for images whose dimensions exceed the
	// pixel limit. It matches ErrTooLarge.
	ErrTooManyPixels = fmt.Errorf("%w: image dimensions over the limit", ErrTooLarge)
)

// Policy holds the upload limits.
type Policy struct {
	MaxBytes   int64
	MaxPixels  int64 // width*height of the decoded image, zero means DefaultMaxPixels
	Extensions []string
}

// DefaultPolicy returns the 50 MiB and 100 MP limits and the default extensions.
func DefaultPolicy() Policy {
	return Policy{MaxBytes: DefaultMaxBytes, MaxPixels: DefaultMaxPixels, Extensions: DefaultExtensions}
}

// CheckExtension rejects file names whose extension is not allowed.
func (p Policy) CheckExtension(name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || !slices.Contains(p.Extensions, ext) {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedType, ext, strings.Join(p.Extensions, ", "))
	}
	return nil
}

// CheckSize rejects sizes over the limit.
func (p Policy) CheckSize(n int64) error {
	if n > p.MaxBytes {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, n, p.MaxBytes)
	}
	return nil
}

// CheckPixels rejects images with more than MaxPixels pixels.
func (p Policy) CheckPixels(width, height int) error {
	limit := p.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if n := int64(width) * int64(height); n > limit {
		return fmt.Errorf("%w: %dx%d is %d pixels (limit %d)", ErrTooManyPixels, width, height, n, limit)
	}
	return nil
}

// Stager creates per-upload workspaces under a base directory.
type Stager struct {
	baseDir string
	policy  Policy
	logger  zerolog.Logger
}

// NewStager creates baseDir if needed. An empty baseDir means os.TempDir().
func NewStager(baseDir string, policy Policy, logger zerolog.Logger) (*Stager, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir %s: %w", baseDir, err)
	}
	return &Stager{baseDir: baseDir, policy: policy, logger: logger}, nil
}

// Policy returns the limits the stager enforces.
func (s *Stager) Policy() Policy {
	return s.policy
}

// Workspace is the temporary directory of one upload.
type Workspace struct {
	Dir   string
	Image ocr.Image
}

// Path returns a path for name inside the workspace.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, filepath.Base(name))
}

// Cleanup removes the workspace and everything in it.
func (w *Workspace) Cleanup() error {
	return os.RemoveAll(w.Dir)
}

// Stage validates name, copies r into a new workspace, decodes it honoring
// EXIF orientation and stores the result as PNG. On error nothing is left on disk.
func (s *Stager) Stage(name string, r io.Reader) (_ *Workspace, err error) {
	if err := s.policy.CheckExtension(name); err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp(s.baseDir, "ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	ws := &Workspace{Dir: dir}
	defer func() {
		if err != nil {
			if rmErr := ws.Cleanup(); rmErr != nil {
				s.logger.Warn().Err(rmErr).Str("dir", dir).Msg("Failed to remove workspace")
			}
		}
	}()

	src := ws.Path("source" + strings.ToLower(filepath.Ext(name)))
	if err := s.copyLimited(src, r); err != nil {
		return nil, err
	}

	img, format, err := s.decode(src)
	if err != nil {
		return nil, err
	}

	dst := ws.Path("image.png")
	if err := imaging.Save(img, dst); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}

	b := img.Bounds()
	ws.Image = ocr.Image{Path: dst, Format: format, Width: b.Dx(), Height: b.Dy()}
	s.logger.Debug().
		Str("dir", dir).
		Str("format", format).
		Int("width", b.Dx()).
		Int("height", b.Dy()).
		Msg("Upload staged")
	return ws, nil
}

func (s *Stager) copyLimited(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.policy.MaxBytes+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: %v", ErrTooLarge, err)
		}
		return fmt.Errorf("read upload: %w", err)
	}
	return s.policy.CheckSize(n)
}

// decode reads the image header first so oversized dimensions are rejected
// before any pixel memory is allocated.
func (s *Stager) decode(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if err := s.policy.CheckPixels(cfg.Width, cfg.Height); err != nil {
		return nil, "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, "", err
	}
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}
