// Package pipeline implements the paper-processing run: discover candidate
// papers, filter out already-processed ones, fetch and summarize the rest
// under a bounded concurrency gate, and assemble the final digest.
//
// The gate is a weighted semaphore shared across all concurrent runs, so the
// cap bounds total in-flight fetch and generation calls system-wide rather
// than per run. A single paper's failure never aborts a run; the digest
// reports how many papers were skipped as duplicates and how many failed.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/llm"
	"github.com/ironzo/arxiveparser/internal/observability"
)

// SearchClient discovers candidate papers for a query and date window.
type SearchClient interface {
	Search(ctx context.Context, query string, dateRange domain.DateRange) ([]domain.PaperMeta, error)
}

// ContentFetcher retrieves a paper's abstract and full-text sections.
type ContentFetcher interface {
	FetchFullText(ctx context.Context, id string) (abstract string, sections []domain.Section, err error)
}

// Ledger filters out papers already processed in prior runs.
type Ledger interface {
	IsProcessed(id string) bool
	MarkProcessed(id string) error
}

// Archive optionally persists a completed run: its summarized papers and
// the search record. Archive failures are logged, never propagated;
// archival is best-effort.
type Archive interface {
	SaveRun(ctx context.Context, digest *domain.Digest, discovered int) error
}

// Pipeline orchestrates one digest run end to end.
type Pipeline struct {
	search    SearchClient
	fetcher   ContentFetcher
	generator llm.Client
	ledger    Ledger
	archive   Archive
	gate      *semaphore.Weighted
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates a Pipeline. The gate must be shared between all pipelines that
// should count against the same concurrency cap; NewGate builds one. The
// archive may be nil when persistence is disabled.
func New(search SearchClient, fetcher ContentFetcher, generator llm.Client, ledger Ledger, archive Archive, gate *semaphore.Weighted, logger zerolog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		search:    search,
		fetcher:   fetcher,
		generator: generator,
		ledger:    ledger,
		archive:   archive,
		gate:      gate,
		logger:    logger.With().Str("component", "pipeline").Logger(),
		metrics:   metrics,
	}
}

// NewGate builds the shared admission gate for the given concurrency cap.
func NewGate(concurrency int64) *semaphore.Weighted {
	if concurrency < 1 {
		concurrency = 1
	}
	return semaphore.NewWeighted(concurrency)
}

// Run executes one digest run for the query and date window.
//
// An error is returned only when discovery itself fails; everything after
// discovery degrades per paper. The returned digest lists summarized papers
// in discovery order regardless of completion order.
func (p *Pipeline) Run(ctx context.Context, topic, query string, dateRange domain.DateRange) (*domain.Digest, error) {
	start := time.Now()
	logger := p.logger.With().Str("topic", topic).Str("range", dateRange.String()).Logger()

	digest := &domain.Digest{
		Topic: topic,
		Query: query,
		Range: dateRange,
	}

	metas, err := p.search.Search(ctx, query, dateRange)
	if err != nil {
		return nil, fmt.Errorf("paper discovery failed: %w", err)
	}
	if p.metrics != nil {
		p.metrics.RecordPapersDiscovered(len(metas))
	}
	logger.Info().Int("discovered", len(metas)).Msg("discovery completed")

	if len(metas) == 0 {
		return digest, nil
	}

	fresh := make([]domain.PaperMeta, 0, len(metas))
	for _, meta := range metas {
		if p.ledger.IsProcessed(meta.ID) {
			digest.DuplicatesSkipped++
			continue
		}
		fresh = append(fresh, meta)
	}
	if p.metrics != nil && digest.DuplicatesSkipped > 0 {
		p.metrics.RecordPaperDuplicates(digest.DuplicatesSkipped)
	}
	if len(fresh) == 0 {
		logger.Info().Int("duplicates", digest.DuplicatesSkipped).Msg("all discovered papers already processed")
		return digest, nil
	}

	// Fan out per paper; the slice keeps discovery order so the digest can
	// be assembled in order no matter when each paper finishes.
	records := make([]*domain.PaperRecord, len(fresh))
	var wg sync.WaitGroup
	for i, meta := range fresh {
		wg.Add(1)
		go func(i int, meta domain.PaperMeta) {
			defer wg.Done()
			records[i] = p.processPaper(ctx, meta)
		}(i, meta)
	}
	wg.Wait()

	for _, record := range records {
		if record.Status != domain.StatusSummarized {
			digest.Failed++
			if p.metrics != nil {
				p.metrics.RecordPaperFailed()
			}
			continue
		}
		if err := p.ledger.MarkProcessed(record.ID); err != nil {
			logger.Warn().Err(err).Str("paper_id", record.ID).Msg("failed to mark paper processed")
		}
		if p.metrics != nil {
			p.metrics.RecordPaperSummarized()
		}
		digest.Papers = append(digest.Papers, record)
	}

	if !digest.Empty() {
		digest.Synthesis = p.synthesize(ctx, digest.Papers)
	}

	p.archiveRun(ctx, digest, len(metas))

	logger.Info().
		Int("summarized", len(digest.Papers)).
		Int("duplicates", digest.DuplicatesSkipped).
		Int("failed", digest.Failed).
		Dur("elapsed", time.Since(start)).
		Msg("pipeline run completed")

	return digest, nil
}

// processPaper takes one paper from discovery to a general summary. Fetch
// failures fall back to the abstract as the sole section; any generation
// failure marks the paper failed without affecting other papers.
func (p *Pipeline) processPaper(ctx context.Context, meta domain.PaperMeta) *domain.PaperRecord {
	logger := observability.WithPaperContext(p.logger, meta.ID)

	record := &domain.PaperRecord{
		ID:       meta.ID,
		Title:    meta.Title,
		Abstract: meta.Abstract,
		Authors:  meta.Authors,
		Status:   domain.StatusDiscovered,
	}

	abstract, sections, err := p.fetchContent(ctx, meta.ID)
	if err != nil {
		logger.Warn().Err(err).Msg("full text unavailable, falling back to abstract")
		sections = []domain.Section{{Heading: "Summary", Body: meta.Abstract}}
	} else {
		if abstract != "" {
			record.Abstract = abstract
		}
		if len(sections) == 0 {
			sections = []domain.Section{{Heading: "Summary", Body: record.Abstract}}
		}
	}
	record.Sections = sections
	record.Status = domain.StatusFetched

	summaries, err := p.summarizeSections(ctx, sections)
	if err != nil {
		logger.Warn().Err(err).Msg("section summarization failed, excluding paper")
		record.Status = domain.StatusFetchFailed
		return record
	}
	record.SectionSummaries = summaries

	general, err := p.generateGeneralSummary(ctx, record)
	if err != nil {
		logger.Warn().Err(err).Msg("general summary failed, excluding paper")
		record.Status = domain.StatusFetchFailed
		return record
	}
	record.GeneralSummary = general
	record.Status = domain.StatusSummarized

	return record
}

// fetchContent retrieves the paper's full text under the admission gate.
func (p *Pipeline) fetchContent(ctx context.Context, id string) (string, []domain.Section, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return "", nil, fmt.Errorf("acquiring fetch slot: %w", err)
	}
	defer p.gate.Release(1)

	return p.fetcher.FetchFullText(ctx, id)
}

// summarizeSections generates one summary per section. Sections are
// summarized concurrently; each generation call individually acquires the
// shared gate so total in-flight calls stay capped across all papers and
// runs. Results keep section order.
func (p *Pipeline) summarizeSections(ctx context.Context, sections []domain.Section) ([]domain.SectionSummary, error) {
	summaries := make([]domain.SectionSummary, len(sections))
	errs := make([]error, len(sections))

	var wg sync.WaitGroup
	for i, section := range sections {
		wg.Add(1)
		go func(i int, section domain.Section) {
			defer wg.Done()

			system, user := llm.BuildSectionSummaryPrompt(section.Heading, section.Body)
			content, err := p.generate(ctx, "section_summary", llm.Request{System: system, User: user})
			if err != nil {
				errs[i] = fmt.Errorf("section %q: %w", section.Heading, err)
				return
			}
			summaries[i] = domain.SectionSummary{Heading: section.Heading, Summary: content}
		}(i, section)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return summaries, nil
}

// generateGeneralSummary produces the whole-paper summary from the abstract
// and section summaries.
func (p *Pipeline) generateGeneralSummary(ctx context.Context, record *domain.PaperRecord) (string, error) {
	system, user := llm.BuildPaperSummaryPrompt(record.Title, record.Abstract, record.SectionSummaries)
	return p.generate(ctx, "paper_summary", llm.Request{System: system, User: user})
}

// synthesize produces the cross-paper digest narrative. On failure it falls
// back to a plain concatenation of the per-paper summaries; synthesis never
// fails a run that already has summarized papers.
func (p *Pipeline) synthesize(ctx context.Context, papers []*domain.PaperRecord) string {
	titles := make([]string, len(papers))
	summaries := make([]string, len(papers))
	for i, paper := range papers {
		titles[i] = paper.Title
		summaries[i] = paper.GeneralSummary
	}

	system, user := llm.BuildDigestPrompt(titles, summaries)
	content, err := p.generate(ctx, "digest", llm.Request{System: system, User: user})
	if err != nil {
		p.logger.Warn().Err(err).Msg("digest synthesis failed, falling back to concatenation")
		return concatenateSummaries(titles, summaries)
	}
	return content
}

// concatenateSummaries is the no-narrative fallback when synthesis fails.
func concatenateSummaries(titles, summaries []string) string {
	var sb strings.Builder
	for i, title := range titles {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(title)
		sb.WriteString("\n")
		sb.WriteString(summaries[i])
	}
	return sb.String()
}

// generate performs one generation call under the admission gate.
func (p *Pipeline) generate(ctx context.Context, operation string, req llm.Request) (string, error) {
	if err := p.gate.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquiring generation slot: %w", err)
	}
	defer p.gate.Release(1)

	start := time.Now()
	resp, err := p.generator.Complete(ctx, req)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordLLMRequestFailed(operation, p.generator.Model(), "generation")
		}
		return "", err
	}
	if p.metrics != nil {
		p.metrics.RecordLLMRequest(operation, p.generator.Model(), time.Since(start).Seconds())
	}
	return resp.Content, nil
}

// archiveRun persists the run's outcome when an archive is configured.
func (p *Pipeline) archiveRun(ctx context.Context, digest *domain.Digest, discovered int) {
	if p.archive == nil {
		return
	}
	if err := p.archive.SaveRun(ctx, digest, discovered); err != nil {
		p.logger.Warn().Err(err).Str("topic", digest.Topic).Msg("failed to archive run")
	}
}
