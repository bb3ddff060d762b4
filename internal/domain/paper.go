// Package domain defines the core data model for the research digest bot:
// papers discovered on arXiv, their summaries, and the digest assembled from
// one completed pipeline run.
package domain

import (
	"strings"
	"time"
)

// PaperStatus tracks a paper's progress through the pipeline.
type PaperStatus string

const (
	// StatusDiscovered means the paper came back from the search query.
	StatusDiscovered PaperStatus = "discovered"

	// StatusFetched means full-text sections were retrieved.
	StatusFetched PaperStatus = "fetched"

	// StatusFetchFailed means neither full text nor summaries could be
	// produced; the paper is excluded from the digest.
	StatusFetchFailed PaperStatus = "fetch_failed"

	// StatusSummarized means the paper has section summaries and a general
	// summary and will appear in the digest.
	StatusSummarized PaperStatus = "summarized"

	// StatusSkippedDuplicate means the paper was already processed in a
	// prior run and was filtered out by the ledger.
	StatusSkippedDuplicate PaperStatus = "skipped_duplicate"
)

// PaperMeta is the metadata returned by the search collaborator for one
// discovered paper.
type PaperMeta struct {
	ID       string
	Title    string
	Abstract string
	Authors  []string
}

// Section is one (heading, body) pair of a paper's full text, in document order.
type Section struct {
	Heading string
	Body    string
}

// SectionSummary pairs a section heading with its generated summary.
// Summaries keep the section order of the source document.
type SectionSummary struct {
	Heading string
	Summary string
}

// PaperRecord represents one discovered paper moving through the pipeline.
type PaperRecord struct {
	ID               string
	Title            string
	Abstract         string
	Authors          []string
	Sections         []Section
	SectionSummaries []SectionSummary
	GeneralSummary   string
	Status           PaperStatus
}

// URL returns the canonical arXiv abstract page for the paper.
func (p *PaperRecord) URL() string {
	return "https://arxiv.org/abs/" + p.ID
}

// DateRange is an inclusive calendar-day window for a search.
type DateRange struct {
	From time.Time
	To   time.Time
}

// String renders the range in the user-facing YYYY.MM.DD format.
func (r DateRange) String() string {
	return r.From.Format("2006.01.02") + " to " + r.To.Format("2006.01.02")
}

// Digest is the consolidated report for one completed pipeline run.
// Papers holds only records that reached StatusSummarized, in discovery order.
type Digest struct {
	Topic     string
	Query     string
	Range     DateRange
	Papers    []*PaperRecord
	Synthesis string

	// DuplicatesSkipped counts discovered papers dropped by the ledger.
	DuplicatesSkipped int

	// Failed counts papers excluded because fetching or generation failed.
	Failed int
}

// Empty reports whether the run produced no summarized papers.
func (d *Digest) Empty() bool {
	return len(d.Papers) == 0
}

// SearchRecord captures the outcome of one completed run for archival.
type SearchRecord struct {
	Topic      string
	Query      string
	Range      DateRange
	Discovered int
	Summarized int
	Duplicates int
	Failed     int
}

// NormalizeWhitespace trims and collapses runs of whitespace, including the
// zero-width characters arXiv HTML embeds in headings.
func NormalizeWhitespace(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
