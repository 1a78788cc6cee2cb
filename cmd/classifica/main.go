// Command classifica runs the identifier extraction on a single PDF and
// reports what matched. Useful when a document lands in the unresolved pile.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/JoaquimAuto22/faturamento/internal/classify"
	"github.com/JoaquimAuto22/faturamento/internal/common"
	"github.com/JoaquimAuto22/faturamento/internal/ocr"
	"github.com/JoaquimAuto22/faturamento/internal/pdftext"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 3 || (os.Args[1] != "boleto" && os.Args[1] != "nf") {
		logger.Error("usage", "cmd", "classifica <boleto|nf> <arquivo.pdf>")
		os.Exit(2)
	}
	docKind, path := os.Args[1], os.Args[2]

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment")
	}
	cfg := common.LoadConfig()

	matcher := taxid.Matcher{
		Ignored:         taxid.NewIgnoredSet(cfg.IgnoredTaxIDs...),
		MatchBareDigits: true,
	}
	cropOCR := ocr.New(ocr.Config{
		Page:    cfg.OCR.Page,
		DPI:     cfg.OCR.DPI,
		Scale:   cfg.OCR.Scale,
		Lang:    cfg.OCR.Lang,
		Timeout: cfg.OCR.Timeout,
		Crop:    cfg.OCR.Crop,
	}, logger)
	classifier := classify.New(pdftext.NewExtractor(logger), cropOCR, matcher, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	var outcome classify.Outcome
	if docKind == "boleto" {
		outcome = classifier.ClassifyBoleto(ctx, path)
	} else {
		outcome = classifier.ClassifyInvoice(ctx, path)
	}
	dur := time.Since(start)

	if outcome.Err != "" {
		logger.Error("classification failed",
			"path", path, "status", outcome.Status, "error", outcome.Err,
			"duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("classification OK",
		"path", path,
		"status", outcome.Status,
		"tax_id", outcome.ID,
		"method", outcome.Method,
		"duration_ms", dur.Milliseconds(),
	)
}
