package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/JoaquimAuto22/faturamento/internal/batch"
	"github.com/JoaquimAuto22/faturamento/internal/classify"
	"github.com/JoaquimAuto22/faturamento/internal/common"
	"github.com/JoaquimAuto22/faturamento/internal/ledger"
	"github.com/JoaquimAuto22/faturamento/internal/mailer"
	"github.com/JoaquimAuto22/faturamento/internal/ocr"
	"github.com/JoaquimAuto22/faturamento/internal/organize"
	"github.com/JoaquimAuto22/faturamento/internal/pdftext"
	"github.com/JoaquimAuto22/faturamento/internal/report"
	"github.com/JoaquimAuto22/faturamento/internal/roster"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	// Parse CLI flags
	var (
		send     = flag.Bool("send", false, "dispatch completed bundles by email")
		firstOrg = flag.Bool("first-cnpj", false, "prefer the first CNPJ on boletos instead of the second")
		workers  = flag.Int("workers", 0, "classification workers (overrides WORKERS)")
		out      = flag.String("out", "", "report XLSX path (overrides REPORT_PATH)")
	)
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment")
	}

	cfg := common.LoadConfig()
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}
	if *out != "" {
		cfg.Paths.ReportPath = *out
	}
	if err := cfg.Validate(*send); err != nil {
		logger.Error("invalid configuration", "error", err)
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	runID := uuid.New()
	start := time.Now()
	logger.Info("run started", "run_id", runID, "send", *send)

	// Wire the classifier: text layer first, crop-OCR fallback.
	matcher := taxid.Matcher{
		Ignored:         taxid.NewIgnoredSet(cfg.IgnoredTaxIDs...),
		MatchBareDigits: true,
	}
	textExtractor := pdftext.NewExtractor(logger)
	cropOCR := ocr.New(ocr.Config{
		Page:    cfg.OCR.Page,
		DPI:     cfg.OCR.DPI,
		Scale:   cfg.OCR.Scale,
		Lang:    cfg.OCR.Lang,
		Timeout: cfg.OCR.Timeout,
		Crop:    cfg.OCR.Crop,
	}, logger)

	var classifyOpts []classify.Option
	if *firstOrg {
		classifyOpts = append(classifyOpts, classify.WithFirstOrgTieBreak())
	}
	classifier := classify.New(textExtractor, cropOCR, matcher, logger, classifyOpts...)

	organizer := organize.New(classifier, logger,
		organize.WithWorkers(cfg.Batch.Workers),
		organize.WithJobTimeout(cfg.Batch.JobTimeout),
	)

	// Bucket each source directory by identifier.
	boletosOut := filepath.Join(cfg.Paths.OutputDir, "boletos")
	invoicesOut := filepath.Join(cfg.Paths.OutputDir, "notas")

	boletoResults, boletoStats, err := organizer.OrganizeBoletos(ctx, cfg.Paths.BoletosDir, boletosOut)
	if err != nil {
		logger.Error("boleto pass failed", "error", err)
		os.Exit(1)
	}
	invoiceResults, invoiceStats, err := organizer.OrganizeInvoices(ctx, cfg.Paths.InvoicesDir, invoicesOut)
	if err != nil {
		logger.Error("invoice pass failed", "error", err)
		os.Exit(1)
	}

	recordRun(ctx, cfg.Paths.LedgerPath, runID, boletoResults, invoiceResults, logger)

	// Merge: a client's bundle is complete only when both document types exist.
	bundleCount, err := organize.Merge(boletosOut, invoicesOut, cfg.Paths.MergedDir, logger)
	if err != nil {
		logger.Error("merge failed", "error", err)
		os.Exit(1)
	}
	bundles, err := organize.Bundles(cfg.Paths.MergedDir)
	if err != nil {
		logger.Error("listing bundles failed", "error", err)
		os.Exit(1)
	}

	var sent []taxid.ID
	if *send {
		dir, err := roster.Load(cfg.Paths.RosterPath, logger)
		if err != nil {
			logger.Error("loading roster failed", "path", cfg.Paths.RosterPath, "error", err)
			os.Exit(1)
		}
		dispatcher := mailer.New(cfg.Mail.APIKey, cfg.Mail.From, logger)
		sent = dispatcher.Dispatch(ctx, bundles, dir)

		if err := organize.Separate(cfg.Paths.MergedDir, cfg.Paths.OutputDir, sent, logger); err != nil {
			logger.Error("separating sent bundles failed", "error", err)
			os.Exit(1)
		}
	}

	unsent := make([]taxid.ID, 0, len(bundles))
	sentSet := make(map[taxid.ID]bool, len(sent))
	for _, id := range sent {
		sentSet[id] = true
	}
	for id := range bundles {
		if !sentSet[id] {
			unsent = append(unsent, id)
		}
	}

	reportSvc := report.NewService(logger)
	run := report.RunReport{
		RunID:      runID,
		StartedAt:  start,
		FinishedAt: time.Now(),
		Boletos:    boletoStats,
		Invoices:   invoiceStats,
		Bundles:    bundleCount,
		Sent:       sent,
		Unsent:     unsent,
	}
	if err := reportSvc.WriteFile(cfg.Paths.ReportPath, run); err != nil {
		logger.Error("writing report failed", "error", err)
		os.Exit(1)
	}

	logger.Info("run finished",
		"run_id", runID,
		"boletos_identified", boletoStats.Identified,
		"invoices_identified", invoiceStats.Identified,
		"bundles", bundleCount,
		"sent", len(sent),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	fmt.Printf("Processamento concluído!\n")
	fmt.Printf("- Boletos identificados: %d de %d\n", boletoStats.Identified, boletoStats.Matched)
	fmt.Printf("- Notas identificadas: %d de %d\n", invoiceStats.Identified, invoiceStats.Matched)
	fmt.Printf("- Pacotes completos: %d\n", bundleCount)
	fmt.Printf("- E-mails enviados: %d\n", len(sent))
	fmt.Printf("- Relatório: %s\n", cfg.Paths.ReportPath)
}

// recordRun logs every outcome to the run ledger. Ledger failures are
// reported but never abort the run.
func recordRun(ctx context.Context, path string, runID uuid.UUID, boletos, invoices []batch.Done, logger *slog.Logger) {
	led, err := ledger.Open(path, logger)
	if err != nil {
		logger.Error("opening ledger failed", "path", path, "error", err)
		return
	}
	defer func() {
		if cerr := led.Close(); cerr != nil {
			logger.Error("closing ledger failed", "error", cerr)
		}
	}()

	entries := make([]ledger.Entry, 0, len(boletos)+len(invoices))
	for _, d := range boletos {
		entries = append(entries, ledger.FromOutcome(d.Job.Path, d.Job.Type, d.Outcome))
	}
	for _, d := range invoices {
		entries = append(entries, ledger.FromOutcome(d.Job.Path, d.Job.Type, d.Outcome))
	}
	if err := led.RecordAll(ctx, runID, entries); err != nil {
		logger.Error("recording run failed", "error", err)
		return
	}

	if summary, err := led.Summarize(ctx, runID); err == nil {
		logger.Info("run recorded",
			"run_id", runID,
			"total", summary.Total,
			"identified", summary.Identified,
			"unresolved", summary.Unresolved,
			"errored", summary.Errored,
		)
	}
}
