// Package ocr recovers a CNPJ from a fixed region of a rendered nota fiscal
// page when the PDF carries no embedded text layer.
//
// The crop rectangle assumes the known, unchanging issuer template: the
// client CNPJ always renders at the same position on page 0. Template drift
// silently breaks extraction; the rectangle, DPI and page index are
// configuration, not detection.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// ErrNoIdentifier means OCR ran but did not yield exactly 14 digits.
// The fallback is CNPJ-only: the crop was tuned for the 14-digit field.
var ErrNoIdentifier = errors.New("ocr: no identifier in crop")

type Config struct {
	Page  int             // page index to rasterize
	DPI   int             // rasterization DPI, default 300
	Crop  image.Rectangle // pixel rectangle at that DPI
	Scale int             // upsample factor before OCR, default 2

	Lang    string        // tesseract language, default "por"
	Timeout time.Duration // per-call budget, default 30s
}

// DefaultCrop is where the client CNPJ renders on the issuer's template at 300 DPI.
var DefaultCrop = image.Rect(77, 232, 170, 245)

// Rasterizer renders one PDF page to an image.
type Rasterizer interface {
	Rasterize(path string, page, dpi int) (image.Image, error)
}

// Recognizer runs character recognition over an image file.
// Separate interface so tests can stub the engine.
type Recognizer interface {
	RecognizeDigits(imgPath, lang string) (string, error)
}

// CropOCR is the image-crop fallback pipeline.
type CropOCR struct {
	cfg    Config
	raster Rasterizer
	recog  Recognizer
	logger *slog.Logger
}

// New builds a CropOCR backed by MuPDF rasterization and Tesseract.
func New(cfg Config, logger *slog.Logger) *CropOCR {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Crop.Empty() {
		cfg.Crop = DefaultCrop
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 2
	}
	if cfg.Lang == "" {
		cfg.Lang = "por"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &CropOCR{cfg: cfg, raster: fitzRasterizer{}, recog: tessRecognizer{}, logger: logger}
}

// Extract runs the full pipeline and returns exactly 14 digits or an error.
// A context deadline bounds the call so one malformed PDF cannot stall the
// batch; on timeout the in-flight engine call is abandoned.
func (c *CropOCR) Extract(ctx context.Context, pdfPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	type result struct {
		digits string
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		digits, err := c.extract(pdfPath)
		ch <- result{digits, err}
	}()

	select {
	case <-ctx.Done():
		c.logger.Warn("crop ocr timed out", "path", pdfPath, "budget", c.cfg.Timeout)
		return "", fmt.Errorf("crop ocr %s: %w", pdfPath, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			c.logger.Warn("crop ocr failed", "path", pdfPath, "error", r.err)
		}
		return r.digits, r.err
	}
}

func (c *CropOCR) extract(pdfPath string) (string, error) {
	start := time.Now()

	page, err := c.raster.Rasterize(pdfPath, c.cfg.Page, c.cfg.DPI)
	if err != nil {
		return "", fmt.Errorf("rasterize: %w", err)
	}
	if !c.cfg.Crop.In(page.Bounds()) {
		return "", fmt.Errorf("crop %v outside page bounds %v", c.cfg.Crop, page.Bounds())
	}

	crop := imaging.Crop(page, c.cfg.Crop)
	w := crop.Bounds().Dx() * c.cfg.Scale
	h := crop.Bounds().Dy() * c.cfg.Scale
	upscaled := imaging.Resize(crop, w, h, imaging.Lanczos)
	bin := otsuBinarize(upscaled)

	tmpPath, cleanup, err := writeTempPNG(bin)
	if err != nil {
		return "", err
	}
	defer cleanup()

	text, err := c.recog.RecognizeDigits(tmpPath, c.cfg.Lang)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}

	digits := digitsOnly(text)
	if len(digits) != 14 {
		c.logger.Debug("crop ocr rejected", "path", pdfPath, "digits", len(digits))
		return "", ErrNoIdentifier
	}
	c.logger.Debug("crop ocr ok", "path", pdfPath, "duration_ms", time.Since(start).Milliseconds())
	return digits, nil
}

// writeTempPNG persists the binarized crop under a per-call unique name so
// concurrent classifications never collide. cleanup removes it on every path.
func writeTempPNG(img image.Image) (string, func(), error) {
	f, err := os.CreateTemp("", "faturamento-crop-*.png")
	if err != nil {
		return "", nil, fmt.Errorf("temp image: %w", err)
	}
	cleanup := func() { _ = os.Remove(f.Name()) }
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, fmt.Errorf("encode crop: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close crop: %w", err)
	}
	return f.Name(), cleanup, nil
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
