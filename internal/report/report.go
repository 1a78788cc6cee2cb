// Package report renders a run's outcome as an XLSX workbook for the
// back-office team.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JoaquimAuto22/faturamento/internal/organize"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

const (
	summarySheet  = "Resumo"
	dispatchSheet = "Envios"
)

// RunReport carries everything one pipeline run produced.
type RunReport struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time
	Boletos    organize.Stats
	Invoices   organize.Stats
	Bundles    int
	Sent       []taxid.ID
	Unsent     []taxid.ID
}

type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// BuildXLSX returns the workbook as bytes: a summary sheet with run totals
// and a dispatch sheet listing each bundle's delivery state.
func (s *Service) BuildXLSX(r RunReport) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(dispatchSheet); err != nil {
		return nil, fmt.Errorf("create dispatch sheet: %w", err)
	}
	activeIndex, _ := f.GetSheetIndex(summarySheet)
	f.SetActiveSheet(activeIndex)

	if err := s.writeSummary(f, r); err != nil {
		return nil, err
	}
	if err := s.writeDispatch(f, r); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("report.xlsx.ok",
		"run_id", r.RunID.String(),
		"bundles", r.Bundles,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// WriteFile renders the workbook and writes it to path.
func (s *Service) WriteFile(path string, r RunReport) error {
	data, err := s.BuildXLSX(r)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

func (s *Service) writeSummary(f *excelize.File, r RunReport) error {
	rows := [][2]any{
		{"Execução", r.RunID.String()},
		{"Início", r.StartedAt.Format("2006-01-02 15:04:05")},
		{"Fim", r.FinishedAt.Format("2006-01-02 15:04:05")},
		{"Duração", r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()},
		{"", ""},
		{"Boletos encontrados", r.Boletos.Matched},
		{"Boletos identificados", r.Boletos.Identified},
		{"Boletos sem identificador", r.Boletos.Unresolved},
		{"Boletos com erro", r.Boletos.Errored},
		{"", ""},
		{"Notas fiscais encontradas", r.Invoices.Matched},
		{"Notas fiscais identificadas", r.Invoices.Identified},
		{"Notas fiscais sem identificador", r.Invoices.Unresolved},
		{"Notas fiscais com erro", r.Invoices.Errored},
		{"", ""},
		{"Pacotes completos", r.Bundles},
		{"E-mails enviados", fmt.Sprintf("%d (%s)", len(r.Sent), percent(len(r.Sent), r.Bundles))},
		{"Pacotes pendentes", fmt.Sprintf("%d (%s)", len(r.Unsent), percent(len(r.Unsent), r.Bundles))},
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &[]any{row[0], row[1]}); err != nil {
			return fmt.Errorf("summary row %d: %w", i+1, err)
		}
	}

	_ = f.SetColWidth(summarySheet, "A", "A", 32)
	_ = f.SetColWidth(summarySheet, "B", "B", 40)
	return nil
}

func (s *Service) writeDispatch(f *excelize.File, r RunReport) error {
	header := []any{"CNPJ", "Situação"}
	if err := f.SetSheetRow(dispatchSheet, "A1", &header); err != nil {
		return fmt.Errorf("dispatch header: %w", err)
	}

	row := 2
	write := func(id taxid.ID, status string) error {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(dispatchSheet, cell, &[]any{string(id), status}); err != nil {
			return fmt.Errorf("dispatch row %d: %w", row, err)
		}
		row++
		return nil
	}
	for _, id := range r.Sent {
		if err := write(id, "enviado"); err != nil {
			return err
		}
	}
	for _, id := range r.Unsent {
		if err := write(id, "pendente"); err != nil {
			return err
		}
	}

	_ = f.SetColWidth(dispatchSheet, "A", "A", 22)
	_ = f.SetColWidth(dispatchSheet, "B", "B", 14)
	return nil
}

func percent(n, total int) string {
	if total == 0 {
		return "0%"
	}
	return fmt.Sprintf("%.0f%%", float64(n)/float64(total)*100)
}
