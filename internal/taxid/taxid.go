// Package taxid recovers and normalizes Brazilian tax identifiers
// (CNPJ, 14 digits; CPF, 11 digits) from extracted document text.
package taxid

import (
	"regexp"
	"sort"
	"strings"
)

// ID is a normalized tax identifier: exactly 11 digits (CPF) or 14 digits (CNPJ).
type ID string

// IsOrg reports whether the identifier is a CNPJ.
func (id ID) IsOrg() bool { return len(id) == 14 }

// IsPersonal reports whether the identifier is a CPF.
func (id ID) IsPersonal() bool { return len(id) == 11 }

func (id ID) String() string { return string(id) }

var reNonDigit = regexp.MustCompile(`\D`)

// Normalize strips every non-digit character from raw and returns the result
// only if exactly 11 or 14 digits remain. Anything else is discarded, never
// truncated or padded.
func Normalize(raw string) (ID, bool) {
	digits := reNonDigit.ReplaceAllString(raw, "")
	if len(digits) == 11 || len(digits) == 14 {
		return ID(digits), true
	}
	return "", false
}

// IgnoredSet holds the company's own CNPJs, which appear on its letterhead
// and must never be matched as a client. Built once at startup, read-only after.
type IgnoredSet map[ID]struct{}

// NewIgnoredSet normalizes each raw entry; entries that do not normalize to a
// valid identifier are dropped.
func NewIgnoredSet(raw ...string) IgnoredSet {
	s := make(IgnoredSet, len(raw))
	for _, r := range raw {
		if id, ok := Normalize(r); ok {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s IgnoredSet) Contains(id ID) bool {
	_, ok := s[id]
	return ok
}

// CandidateSet collects identifiers found in one document, in order of first
// appearance. Duplicates are kept; selection happens at the tie-break step.
type CandidateSet struct {
	Orgs     []ID
	Personal []ID
}

func (c CandidateSet) Empty() bool {
	return len(c.Orgs) == 0 && len(c.Personal) == 0
}

// Structural patterns for the two identifier formats. The punctuated forms
// are what both document templates actually print; the bare-digit forms catch
// templates that drop the punctuation.
var (
	reCNPJ     = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}`)
	reCPF      = regexp.MustCompile(`\d{3}\.\d{3}\.\d{3}-\d{2}`)
	reBareCNPJ = regexp.MustCompile(`\b\d{14}\b`)
	reBareCPF  = regexp.MustCompile(`\b\d{11}\b`)
)

// Label markers some boleto templates print immediately before the payer's
// identifier. Matching the label instead of the whole line avoids picking up
// unrelated digit runs on the same line (due dates, amounts, bar codes).
var labelMarkers = []string{"CPF/CNPJ:", "CNPJ:"}

// Matcher scans text against the identifier patterns, excluding ignored CNPJs.
type Matcher struct {
	Ignored IgnoredSet

	// MatchBareDigits also accepts unpunctuated 11/14 digit runs.
	MatchBareDigits bool
}

// FindAll scans text with the structural patterns and returns every match in
// document order, normalized, with ignored CNPJs excluded.
func (m Matcher) FindAll(text string) CandidateSet {
	var cs CandidateSet
	for _, match := range orderedMatches(text, reCNPJ, reBareCNPJ, m.MatchBareDigits) {
		id, ok := Normalize(match)
		if !ok || m.Ignored.Contains(id) {
			continue
		}
		cs.Orgs = append(cs.Orgs, id)
	}
	for _, match := range orderedMatches(text, reCPF, reBareCPF, m.MatchBareDigits) {
		id, ok := Normalize(match)
		if !ok {
			continue
		}
		cs.Personal = append(cs.Personal, id)
	}
	return cs
}

// FindLabeled scans lines individually. A line is eligible only if it carries
// a literal label marker; the last whitespace-delimited token is normalized
// and classified by digit length.
func (m Matcher) FindLabeled(lines []string) CandidateSet {
	var cs CandidateSet
	for _, line := range lines {
		if !hasLabel(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		id, ok := Normalize(fields[len(fields)-1])
		if !ok {
			continue
		}
		if id.IsOrg() {
			if m.Ignored.Contains(id) {
				continue
			}
			cs.Orgs = append(cs.Orgs, id)
		} else {
			cs.Personal = append(cs.Personal, id)
		}
	}
	return cs
}

func hasLabel(line string) bool {
	for _, marker := range labelMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// orderedMatches merges punctuated and bare matches by position so candidate
// order reflects the document, not the pattern that hit.
func orderedMatches(text string, punct, bare *regexp.Regexp, withBare bool) []string {
	type hit struct {
		pos int
		s   string
	}
	var hits []hit
	for _, loc := range punct.FindAllStringIndex(text, -1) {
		hits = append(hits, hit{loc[0], text[loc[0]:loc[1]]})
	}
	if withBare {
		for _, loc := range bare.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{loc[0], text[loc[0]:loc[1]]})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.s
	}
	return out
}
