// Package organize buckets classified documents into per-identifier
// directories and assembles the merged per-client bundles.
package organize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JoaquimAuto22/faturamento/constants"
	"github.com/JoaquimAuto22/faturamento/internal/batch"
	"github.com/JoaquimAuto22/faturamento/internal/classify"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

// Stats summarizes one directory pass.
type Stats struct {
	Scanned    uint32
	Matched    uint32
	Identified uint32
	Unresolved uint32
	Errored    uint32
}

type Organizer struct {
	classifier *classify.Classifier
	logger     *slog.Logger
	workers    int
	jobTimeout time.Duration
}

type Option func(*Organizer)

func WithWorkers(n int) Option {
	return func(o *Organizer) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(o *Organizer) {
		if d > 0 {
			o.jobTimeout = d
		}
	}
}

func New(classifier *classify.Classifier, logger *slog.Logger, opts ...Option) *Organizer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Organizer{
		classifier: classifier,
		logger:     logger,
		workers:    4,
		jobTimeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ListPDFs returns the PDF files directly under dir, hidden files skipped.
// Documents arrive in a flat drop folder; no recursion.
func ListPDFs(dir string) ([]string, uint32, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var paths []string
	var scanned uint32
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		scanned++
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ext := constants.NormalizeExt(filepath.Ext(e.Name()))
		if _, ok := constants.AllowedExtensions[ext]; !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, scanned, nil
}

// OrganizeBoletos classifies every boleto under srcDir and copies identified
// ones into destDir/<identifier>/. Unresolved boletos are skipped with a
// warning; there is no OCR rescue for this template.
func (o *Organizer) OrganizeBoletos(ctx context.Context, srcDir, destDir string) ([]batch.Done, Stats, error) {
	return o.organize(ctx, srcDir, destDir, constants.DocTypeBoleto, "")
}

// OrganizeInvoices classifies every nota fiscal under srcDir; identified ones
// are bucketed per identifier and unresolved ones land in the sentinel
// directory for manual follow-up.
func (o *Organizer) OrganizeInvoices(ctx context.Context, srcDir, destDir string) ([]batch.Done, Stats, error) {
	return o.organize(ctx, srcDir, destDir, constants.DocTypeInvoice, constants.UnresolvedDirName)
}

func (o *Organizer) organize(ctx context.Context, srcDir, destDir string, docType constants.DocType, sentinel string) ([]batch.Done, Stats, error) {
	var stats Stats

	paths, scanned, err := ListPDFs(srcDir)
	if err != nil {
		return nil, stats, err
	}
	stats.Scanned = scanned
	stats.Matched = uint32(len(paths))
	// Created even for an empty scan: downstream merge reads this tree, and
	// an empty drop folder is a normal run, not a fatal one.
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, stats, fmt.Errorf("create dest dir: %w", err)
	}
	if len(paths) == 0 {
		o.logger.Warn("no pdf files found", "dir", srcDir, "type", docType)
		return nil, stats, nil
	}

	jobs := make([]batch.Job, len(paths))
	for i, p := range paths {
		jobs[i] = batch.Job{ID: uuid.New(), Path: p, Type: docType, SubmittedAt: time.Now().UTC()}
	}

	fn := func(ctx context.Context, job batch.Job) classify.Outcome {
		if job.Type == constants.DocTypeBoleto {
			return o.classifier.ClassifyBoleto(ctx, job.Path)
		}
		return o.classifier.ClassifyInvoice(ctx, job.Path)
	}
	results := batch.Process(ctx, fn, jobs, o.logger,
		batch.WithWorkers(o.workers), batch.WithJobTimeout(o.jobTimeout))

	for _, d := range results {
		switch d.Outcome.Status {
		case constants.DocStatusIdentified:
			stats.Identified++
			bucket := filepath.Join(destDir, d.Outcome.ID.String())
			if err := copyInto(d.Job.Path, bucket); err != nil {
				o.logger.Error("bucket copy failed", "path", d.Job.Path, "error", err)
				continue
			}
		case constants.DocStatusUnresolved:
			stats.Unresolved++
			if sentinel == "" {
				o.logger.Warn("no identifier found, skipping", "path", d.Job.Path, "type", docType)
				continue
			}
			if err := copyInto(d.Job.Path, filepath.Join(destDir, sentinel)); err != nil {
				o.logger.Error("sentinel copy failed", "path", d.Job.Path, "error", err)
			}
		case constants.DocStatusErrored:
			stats.Errored++
		}
	}

	o.logger.Info("directory organized",
		"dir", srcDir,
		"type", docType,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"identified", stats.Identified,
		"unresolved", stats.Unresolved,
		"errored", stats.Errored,
	)
	return results, stats, nil
}

// Merge copies the identifier buckets present in BOTH trees into mergedDir:
// a client bundle needs its boleto and its nota fiscal together. The invoice
// sentinel directory is carried along untouched.
func Merge(boletosDir, invoicesDir, mergedDir string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	boletos, err := subdirSet(boletosDir)
	if err != nil {
		return 0, err
	}
	invoices, err := subdirSet(invoicesDir)
	if err != nil {
		return 0, err
	}
	delete(invoices, constants.UnresolvedDirName)

	if err := os.MkdirAll(mergedDir, 0o755); err != nil {
		return 0, fmt.Errorf("create merged dir: %w", err)
	}

	sentinel := filepath.Join(invoicesDir, constants.UnresolvedDirName)
	if _, err := os.Stat(sentinel); err == nil {
		if err := copyDir(sentinel, filepath.Join(mergedDir, constants.UnresolvedDirName)); err != nil {
			logger.Error("sentinel merge failed", "error", err)
		}
	}

	merged := 0
	for name := range boletos {
		if _, ok := invoices[name]; !ok {
			continue
		}
		dest := filepath.Join(mergedDir, name)
		for _, src := range []string{filepath.Join(boletosDir, name), filepath.Join(invoicesDir, name)} {
			if err := copyDir(src, dest); err != nil {
				logger.Error("bundle merge failed", "bucket", name, "error", err)
			}
		}
		merged++
	}
	logger.Info("bundles merged", "count", merged)
	return merged, nil
}

// Separate splits the merged buckets into sent/ and unsent/ trees after
// dispatch, so the follow-up pass is a directory listing away.
func Separate(mergedDir, destBase string, sent []taxid.ID, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	sentSet := make(map[string]struct{}, len(sent))
	for _, id := range sent {
		sentSet[id.String()] = struct{}{}
	}

	buckets, err := subdirSet(mergedDir)
	if err != nil {
		return err
	}
	delete(buckets, constants.UnresolvedDirName)

	sentDir := filepath.Join(destBase, "sent")
	unsentDir := filepath.Join(destBase, "unsent")
	for _, d := range []string{sentDir, unsentDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create dir %s: %w", d, err)
		}
	}

	for name := range buckets {
		target := unsentDir
		if _, ok := sentSet[name]; ok {
			target = sentDir
		}
		if err := copyDir(filepath.Join(mergedDir, name), filepath.Join(target, name)); err != nil {
			logger.Error("separate copy failed", "bucket", name, "error", err)
		}
	}
	return nil
}

// Bundles maps each identifier bucket in mergedDir to its file list,
// sentinel excluded. Input to the email dispatcher.
func Bundles(mergedDir string) (map[taxid.ID][]string, error) {
	buckets, err := subdirSet(mergedDir)
	if err != nil {
		return nil, err
	}
	delete(buckets, constants.UnresolvedDirName)

	out := make(map[taxid.ID][]string, len(buckets))
	for name := range buckets {
		id, ok := taxid.Normalize(name)
		if !ok {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(mergedDir, name))
		if err != nil {
			return nil, fmt.Errorf("read bucket %s: %w", name, err)
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			files = append(files, filepath.Join(mergedDir, name, e.Name()))
		}
		if len(files) > 0 {
			out[id] = files
		}
	}
	return out, nil
}

func subdirSet(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("organized dir missing: %w", err)
		}
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	set := make(map[string]struct{})
	for _, e := range entries {
		if e.IsDir() {
			set[e.Name()] = struct{}{}
		}
	}
	return set, nil
}

func copyInto(srcFile, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return copyFile(srcFile, filepath.Join(destDir, filepath.Base(srcFile)))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

func copyDir(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dst, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
