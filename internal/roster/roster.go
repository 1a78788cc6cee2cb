// Package roster loads the client spreadsheet that maps each CNPJ to its
// billing period, client name and recipient addresses.
package roster

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

// Spreadsheet column headers, as the billing team maintains them.
const (
	colTaxID     = "CNPJ"
	colPeriod    = "Mês/Ano"
	colClient    = "CLIENTE"
	colRecipient = "DESTINATARIO"
)

// BillingInfo is the per-client billing data attached to an identifier.
type BillingInfo struct {
	Period string // competência, e.g. "03/2025"
	Client string
}

// Directory is the immutable identifier lookup built once per run and passed
// to whoever needs it. No ambient globals.
type Directory struct {
	billing    map[taxid.ID]BillingInfo
	recipients map[taxid.ID][]string
}

// NewDirectory builds a Directory from already-assembled maps. The maps are
// owned by the Directory after the call.
func NewDirectory(billing map[taxid.ID]BillingInfo, recipients map[taxid.ID][]string) *Directory {
	if billing == nil {
		billing = map[taxid.ID]BillingInfo{}
	}
	if recipients == nil {
		recipients = map[taxid.ID][]string{}
	}
	return &Directory{billing: billing, recipients: recipients}
}

func (d *Directory) Billing(id taxid.ID) (BillingInfo, bool) {
	b, ok := d.billing[id]
	return b, ok
}

// Recipients returns the addresses registered for id, nil when unknown.
func (d *Directory) Recipients(id taxid.ID) []string {
	return d.recipients[id]
}

// Len is the number of registered clients.
func (d *Directory) Len() int { return len(d.billing) }

// Load reads the spreadsheet's first sheet. Rows with a comma-separated
// recipient cell expand into one entry per address under the same
// identifier; rows missing any field are skipped with a warning.
func Load(path string, logger *slog.Logger) (*Directory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open roster %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logger.Warn("close roster", "error", cerr)
		}
	}()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("roster %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read roster rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("roster %s is empty", path)
	}

	cols, err := headerIndex(rows[0])
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}

	d := &Directory{
		billing:    make(map[taxid.ID]BillingInfo),
		recipients: make(map[taxid.ID][]string),
	}
	for i, row := range rows[1:] {
		rawID := cell(row, cols[colTaxID])
		period := cell(row, cols[colPeriod])
		client := cell(row, cols[colClient])
		addrs := cell(row, cols[colRecipient])
		if rawID == "" || period == "" || client == "" || addrs == "" {
			logger.Warn("roster row incomplete, skipping", "row", i+2)
			continue
		}
		id, ok := taxid.Normalize(rawID)
		if !ok {
			logger.Warn("roster row has invalid identifier, skipping", "row", i+2, "value", rawID)
			continue
		}

		d.billing[id] = BillingInfo{Period: period, Client: client}
		for _, addr := range strings.Split(addrs, ",") {
			addr = strings.TrimSpace(addr)
			if addr != "" {
				d.recipients[id] = append(d.recipients[id], addr)
			}
		}
	}

	logger.Info("roster loaded", "path", path, "clients", d.Len())
	return d, nil
}

func headerIndex(header []string) (map[string]int, error) {
	want := []string{colTaxID, colPeriod, colClient, colRecipient}
	idx := make(map[string]int, len(want))
	for i, h := range header {
		h = strings.TrimSpace(h)
		for _, w := range want {
			if strings.EqualFold(h, w) {
				idx[w] = i
			}
		}
	}
	for _, w := range want {
		if _, ok := idx[w]; !ok {
			return nil, fmt.Errorf("missing column %q", w)
		}
	}
	return idx, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
