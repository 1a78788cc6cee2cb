package ocr

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// tessRecognizer runs Tesseract in single-character segmentation mode.
// The crop contains one short numeric string, not a paragraph.
type tessRecognizer struct{}

func (tessRecognizer) RecognizeDigits(imgPath, lang string) (string, error) {
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if err := client.SetLanguage(lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_CHAR); err != nil {
		return "", fmt.Errorf("set psm: %w", err)
	}
	if err := client.SetWhitelist("0123456789./-"); err != nil {
		return "", fmt.Errorf("set whitelist: %w", err)
	}
	if err := client.SetImage(imgPath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return text, nil
}
