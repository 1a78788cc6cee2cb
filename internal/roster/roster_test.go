package roster

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

func writeRoster(t *testing.T, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetList()[0]
	for i, row := range rows {
		cellName, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cellName, &row))
	}
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())
	return path
}

func TestLoad(t *testing.T) {
	path := writeRoster(t, [][]any{
		{"CNPJ", "Mês/Ano", "CLIENTE", "DESTINATARIO"},
		{"11.222.333/0001-81", "03/2025", "Acme LTDA", "a@acme.com"},
		{"99888777000122", "03/2025", "Beta SA", "x@beta.com, y@beta.com"},
	})

	d, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, d.Len())

	b, ok := d.Billing(taxid.ID("11222333000181"))
	require.True(t, ok)
	assert.Equal(t, BillingInfo{Period: "03/2025", Client: "Acme LTDA"}, b)
	assert.Equal(t, []string{"a@acme.com"}, d.Recipients("11222333000181"))

	// comma-separated recipients expand into one entry per address
	assert.Equal(t, []string{"x@beta.com", "y@beta.com"}, d.Recipients("99888777000122"))
}

func TestLoadSkipsBadRows(t *testing.T) {
	path := writeRoster(t, [][]any{
		{"CNPJ", "Mês/Ano", "CLIENTE", "DESTINATARIO"},
		{"11.222.333/0001-81", "03/2025", "Acme LTDA", "a@acme.com"},
		{"not-a-cnpj", "03/2025", "Gamma", "g@gamma.com"},
		{"99888777000122", "", "Beta SA", "x@beta.com"},
	})

	d, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len())
}

func TestLoadMissingColumn(t *testing.T) {
	path := writeRoster(t, [][]any{
		{"CNPJ", "CLIENTE", "DESTINATARIO"},
		{"11.222.333/0001-81", "Acme LTDA", "a@acme.com"},
	})

	_, err := Load(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mês/Ano")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.xlsx"), nil)
	require.Error(t, err)
}

func TestRecipientsUnknownID(t *testing.T) {
	path := writeRoster(t, [][]any{
		{"CNPJ", "Mês/Ano", "CLIENTE", "DESTINATARIO"},
		{"11.222.333/0001-81", "03/2025", "Acme LTDA", "a@acme.com"},
	})
	d, err := Load(path, nil)
	require.NoError(t, err)
	assert.Nil(t, d.Recipients("00000000000000"))
}
