// Package classify resolves one tax identifier per document, routing each
// document type through its extraction strategy chain.
package classify

import (
	"context"
	"log/slog"
	"slices"

	"github.com/JoaquimAuto22/faturamento/constants"
	"github.com/JoaquimAuto22/faturamento/internal/taxid"
)

// TextSource reads the embedded text layer of a PDF.
type TextSource interface {
	ExtractText(path string) (string, error)
	ExtractLines(path string) ([]string, error)
}

// Fallback recovers digits from a rendered page region when no text layer exists.
type Fallback interface {
	Extract(ctx context.Context, pdfPath string) (string, error)
}

// Extraction methods recorded on outcomes.
const (
	MethodTextPattern = "text-pattern"
	MethodCropOCR     = "crop-ocr"
)

// Outcome is the per-document result. Failure is an explicit variant, not a
// swallowed exception: the orchestrator decides skip/report per status.
type Outcome struct {
	Status constants.DocStatus
	ID     taxid.ID
	Method string
	Err    string
}

func (o Outcome) Found() bool { return o.Status == constants.DocStatusIdentified }

func identified(id taxid.ID, method string) Outcome {
	return Outcome{Status: constants.DocStatusIdentified, ID: id, Method: method}
}

func unresolved() Outcome {
	return Outcome{Status: constants.DocStatusUnresolved}
}

func errored(err error) Outcome {
	return Outcome{Status: constants.DocStatusErrored, Err: err.Error()}
}

// Classifier orchestrates extraction and tie-break per document type.
type Classifier struct {
	text         TextSource
	fallback     Fallback
	matcher      taxid.Matcher
	pickFirstOrg bool
	logger       *slog.Logger
}

type Option func(*Classifier)

// WithFirstOrgTieBreak selects the first CNPJ on boletos instead of the
// second. The second-CNPJ default reflects the issuer's template, where the
// payment processor's own CNPJ prints before the payer's; other templates
// may order them differently.
func WithFirstOrgTieBreak() Option {
	return func(c *Classifier) { c.pickFirstOrg = true }
}

func New(text TextSource, fallback Fallback, matcher taxid.Matcher, logger *slog.Logger, opts ...Option) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Classifier{text: text, fallback: fallback, matcher: matcher, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ClassifyBoleto extracts lines, runs the label-anchored match plus the
// general per-line scan, and applies the boleto tie-break. Boletos have no
// OCR fallback: an unreadable boleto is reported, not rescued.
func (c *Classifier) ClassifyBoleto(ctx context.Context, path string) Outcome {
	if err := ctx.Err(); err != nil {
		return errored(err)
	}
	lines, err := c.text.ExtractLines(path)
	if err != nil {
		c.logger.Warn("boleto text extraction failed", "path", path, "error", err)
		return errored(err)
	}
	if len(lines) == 0 {
		c.logger.Warn("boleto has no text layer", "path", path)
		return unresolved()
	}

	// Candidates accumulate in document order, line by line: the pattern
	// hits of each line first, then a label-anchored token the patterns
	// missed. The label scan only contributes tokens the general regexes
	// cannot see (unpunctuated forms); it never reorders candidates, so the
	// tie-break below always runs over encounter order.
	var orgs, personal []taxid.ID
	for _, line := range lines {
		cs := c.matcher.FindAll(line)
		orgs = append(orgs, cs.Orgs...)
		personal = append(personal, cs.Personal...)

		lab := c.matcher.FindLabeled([]string{line})
		for _, id := range lab.Orgs {
			if !slices.Contains(cs.Orgs, id) {
				orgs = append(orgs, id)
			}
		}
		for _, id := range lab.Personal {
			if !slices.Contains(cs.Personal, id) {
				personal = append(personal, id)
			}
		}
	}

	if id, ok := pickOrg(orgs, c.pickFirstOrg); ok {
		return identified(id, MethodTextPattern)
	}
	if len(personal) > 0 {
		return identified(personal[0], MethodTextPattern)
	}
	return unresolved()
}

// ClassifyInvoice scans the whole text blob; when nothing matches it falls
// back to crop OCR. The fallback only ever yields a CNPJ.
func (c *Classifier) ClassifyInvoice(ctx context.Context, path string) Outcome {
	if err := ctx.Err(); err != nil {
		return errored(err)
	}
	text, err := c.text.ExtractText(path)
	if err != nil {
		// Unreadable counts as "no text layer": the OCR fallback still applies.
		c.logger.Warn("invoice text extraction failed, trying ocr", "path", path, "error", err)
		text = ""
	}

	if cs := c.matcher.FindAll(text); !cs.Empty() {
		if len(cs.Orgs) > 0 {
			return identified(cs.Orgs[0], MethodTextPattern)
		}
		return identified(cs.Personal[0], MethodTextPattern)
	}

	digits, err := c.fallback.Extract(ctx, path)
	if err != nil {
		// OCR failure downgrades to no-identifier; per-document failures never
		// abort the batch.
		return unresolved()
	}
	id, ok := taxid.Normalize(digits)
	if !ok || !id.IsOrg() || c.matcher.Ignored.Contains(id) {
		return unresolved()
	}
	return identified(id, MethodCropOCR)
}

// pickOrg applies the boleto tie-break over distinct CNPJs in encounter order.
func pickOrg(orgs []taxid.ID, pickFirst bool) (taxid.ID, bool) {
	var distinct []taxid.ID
	seen := make(map[taxid.ID]struct{}, len(orgs))
	for _, id := range orgs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		distinct = append(distinct, id)
	}
	switch {
	case len(distinct) == 0:
		return "", false
	case len(distinct) == 1 || pickFirst:
		return distinct[0], true
	default:
		return distinct[1], true
	}
}
