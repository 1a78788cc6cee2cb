// Package pdftext reads the embedded text layer of a PDF.
//
// Extraction fails soft: a corrupt, encrypted or image-only PDF yields empty
// text. Callers treat "no text" as "no embedded layer, try OCR".
package pdftext

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Extractor pulls text out of PDF files page by page.
type Extractor struct {
	logger *slog.Logger
}

func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// ExtractText returns the whole embedded text layer, pages concatenated with
// line breaks in source order. A page without text contributes nothing; a
// page that fails to decode is skipped.
func (e *Extractor) ExtractText(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			e.logger.Warn("close pdf", "path", path, "error", cerr)
		}
	}()

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("page text extraction failed", "path", path, "page", i, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// ExtractLines returns the embedded text split into lines, top-to-bottom in
// page order. Empty on any read error.
func (e *Extractor) ExtractLines(path string) ([]string, error) {
	text, err := e.ExtractText(path)
	if err != nil || text == "" {
		return nil, err
	}
	return strings.Split(text, "\n"), nil
}
