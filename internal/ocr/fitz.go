package ocr

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// fitzRasterizer renders PDF pages through MuPDF.
type fitzRasterizer struct{}

func (fitzRasterizer) Rasterize(path string, page, dpi int) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = doc.Close() }()

	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d)", page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return img, nil
}
