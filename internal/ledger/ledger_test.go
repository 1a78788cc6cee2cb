package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoaquimAuto22/faturamento/constants"
	"github.com/JoaquimAuto22/faturamento/internal/classify"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestRecordAndSummarize(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	run := uuid.New()

	entries := []Entry{
		{Path: "a.pdf", DocType: constants.DocTypeBoleto, Status: constants.DocStatusIdentified, TaxID: "11222333000181", Method: "text-pattern"},
		{Path: "b.pdf", DocType: constants.DocTypeBoleto, Status: constants.DocStatusIdentified, TaxID: "11222333000181", Method: "text-pattern"},
		{Path: "c.pdf", DocType: constants.DocTypeInvoice, Status: constants.DocStatusUnresolved},
		{Path: "d.pdf", DocType: constants.DocTypeInvoice, Status: constants.DocStatusErrored, Err: "open failed"},
	}
	require.NoError(t, l.RecordAll(ctx, run, entries))

	s, err := l.Summarize(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 4, Identified: 2, Unresolved: 1, Errored: 1}, s)
}

func TestSummarizeIsScopedToRun(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	require.NoError(t, l.Record(ctx, first, Entry{Path: "a.pdf", DocType: constants.DocTypeBoleto, Status: constants.DocStatusIdentified, TaxID: "11222333000181"}))
	require.NoError(t, l.Record(ctx, second, Entry{Path: "b.pdf", DocType: constants.DocTypeBoleto, Status: constants.DocStatusUnresolved}))

	s, err := l.Summarize(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Identified: 1}, s)
}

func TestEntriesForID(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()
	run := uuid.New()

	require.NoError(t, l.RecordAll(ctx, run, []Entry{
		{Path: "a.pdf", DocType: constants.DocTypeBoleto, Status: constants.DocStatusIdentified, TaxID: "11222333000181", Method: "text-pattern"},
		{Path: "b.pdf", DocType: constants.DocTypeInvoice, Status: constants.DocStatusIdentified, TaxID: "11222333000181", Method: "crop-ocr"},
		{Path: "c.pdf", DocType: constants.DocTypeInvoice, Status: constants.DocStatusIdentified, TaxID: "99888777000122", Method: "text-pattern"},
	}))

	got, err := l.EntriesForID(ctx, run, "11222333000181")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b.pdf", got[0].Path, "newest first")
	assert.Equal(t, "crop-ocr", got[0].Method)
	assert.Equal(t, "a.pdf", got[1].Path)
}

func TestFromOutcome(t *testing.T) {
	o := classify.Outcome{
		Status: constants.DocStatusErrored,
		Err:    "corrupt xref table",
	}
	e := FromOutcome("bad.pdf", constants.DocTypeInvoice, o)
	assert.Equal(t, "bad.pdf", e.Path)
	assert.Equal(t, constants.DocTypeInvoice, e.DocType)
	assert.Equal(t, constants.DocStatusErrored, e.Status)
	assert.Equal(t, "corrupt xref table", e.Err)
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	l, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Record(context.Background(), uuid.New(), Entry{
		Path: "a.pdf", DocType: constants.DocTypeBoleto, Status: constants.DocStatusUnresolved,
	}))
	require.NoError(t, l.Close())

	// Reopening must see the same schema without error.
	l2, err := Open(path, nil)
	require.NoError(t, err)
	assert.NoError(t, l2.Close())
}
