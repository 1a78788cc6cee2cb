// Package ledger persists per-document classification outcomes so runs can be
// audited after the files have been moved around.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/JoaquimAuto22/faturamento/constants"
	"github.com/JoaquimAuto22/faturamento/internal/classify"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

const schema = `
CREATE TABLE IF NOT EXISTS document_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	path         TEXT NOT NULL,
	doc_type     TEXT NOT NULL,
	status       TEXT NOT NULL,
	tax_id       TEXT,
	method       TEXT,
	error        TEXT,
	processed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_document_log_run ON document_log (run_id);
`

// Entry is one classified document within a run.
type Entry struct {
	Path    string
	DocType constants.DocType
	Status  constants.DocStatus
	TaxID   taxid.ID
	Method  string
	Err     string
}

// FromOutcome flattens a classification outcome into a loggable entry.
func FromOutcome(path string, docType constants.DocType, o classify.Outcome) Entry {
	return Entry{Path: path, DocType: docType, Status: o.Status, TaxID: o.ID, Method: o.Method, Err: o.Err}
}

// Summary aggregates one run's entries by status.
type Summary struct {
	Total      int
	Identified int
	Unresolved int
	Errored    int
}

type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite ledger at path. ":memory:" is
// accepted for throwaway ledgers.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	// A single connection keeps :memory: ledgers coherent and is plenty for
	// a batch run.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply ledger schema: %w", err)
	}
	logger.Debug("ledger opened", "path", path)
	return &Ledger{db: db, logger: logger}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts one entry under the given run.
func (l *Ledger) Record(ctx context.Context, runID uuid.UUID, e Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO document_log (run_id, path, doc_type, status, tax_id, method, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID.String(), e.Path, string(e.DocType), string(e.Status),
		nullable(string(e.TaxID)), nullable(e.Method), nullable(e.Err),
	)
	if err != nil {
		return fmt.Errorf("record %s: %w", e.Path, err)
	}
	return nil
}

// RecordAll inserts the entries in one transaction.
func (l *Ledger) RecordAll(ctx context.Context, runID uuid.UUID, entries []Entry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_log (run_id, path, doc_type, status, tax_id, method, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare ledger insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			runID.String(), e.Path, string(e.DocType), string(e.Status),
			nullable(string(e.TaxID)), nullable(e.Method), nullable(e.Err),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", e.Path, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	l.logger.Debug("ledger entries recorded", "run_id", runID, "count", len(entries))
	return nil
}

// Summarize counts the run's entries by status.
func (l *Ledger) Summarize(ctx context.Context, runID uuid.UUID) (Summary, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM document_log WHERE run_id = ? GROUP BY status`,
		runID.String())
	if err != nil {
		return Summary{}, fmt.Errorf("summarize run %s: %w", runID, err)
	}
	defer func() { _ = rows.Close() }()

	var s Summary
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Summary{}, fmt.Errorf("scan ledger summary: %w", err)
		}
		s.Total += n
		switch constants.DocStatus(status) {
		case constants.DocStatusIdentified:
			s.Identified = n
		case constants.DocStatusUnresolved:
			s.Unresolved = n
		case constants.DocStatusErrored:
			s.Errored = n
		}
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("read ledger summary: %w", err)
	}
	return s, nil
}

// EntriesForID returns the run's entries that resolved to the identifier,
// newest first. Useful when tracing why a client's bundle looks wrong.
func (l *Ledger) EntriesForID(ctx context.Context, runID uuid.UUID, id taxid.ID) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT path, doc_type, status, COALESCE(tax_id, ''), COALESCE(method, ''), COALESCE(error, '')
		 FROM document_log WHERE run_id = ? AND tax_id = ? ORDER BY id DESC`,
		runID.String(), string(id))
	if err != nil {
		return nil, fmt.Errorf("query entries for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var docType, status string
		if err := rows.Scan(&e.Path, &docType, &status, (*string)(&e.TaxID), &e.Method, &e.Err); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.DocType = constants.DocType(docType)
		e.Status = constants.DocStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
