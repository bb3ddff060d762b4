package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/llm"
)

// fakeSearch returns canned discovery results.
type fakeSearch struct {
	metas []domain.PaperMeta
	err   error
	calls int
}

func (f *fakeSearch) Search(ctx context.Context, query string, dateRange domain.DateRange) ([]domain.PaperMeta, error) {
	f.calls++
	return f.metas, f.err
}

// fakeFetcher serves full texts from a map; ids in failIDs fail to fetch.
type fakeFetcher struct {
	sections map[string][]domain.Section
	failIDs  map[string]bool
	latency  func(id string) time.Duration
}

func (f *fakeFetcher) FetchFullText(ctx context.Context, id string) (string, []domain.Section, error) {
	if f.latency != nil {
		time.Sleep(f.latency(id))
	}
	if f.failIDs[id] {
		return "", nil, fmt.Errorf("fetch %s: %w", id, domain.ErrUnavailable)
	}
	return "full abstract of " + id, f.sections[id], nil
}

// countingGenerator implements llm.Client, tracking the maximum number of
// concurrently in-flight calls. failWhen decides per-request failures.
type countingGenerator struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	calls    int
	latency  func() time.Duration
	failWhen func(req llm.Request) bool
}

func (g *countingGenerator) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	g.calls++
	g.inFlight++
	if g.inFlight > g.maxSeen {
		g.maxSeen = g.inFlight
	}
	g.mu.Unlock()

	if g.latency != nil {
		time.Sleep(g.latency())
	}

	g.mu.Lock()
	g.inFlight--
	g.mu.Unlock()

	if g.failWhen != nil && g.failWhen(req) {
		return nil, errors.New("generation failed")
	}
	return &llm.Response{Content: "summary: " + firstLine(req.User), Model: "fake"}, nil
}

func (g *countingGenerator) Provider() string { return "fake" }
func (g *countingGenerator) Model() string    { return "fake" }

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// memLedger is an in-memory Ledger.
type memLedger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func newMemLedger(ids ...string) *memLedger {
	l := &memLedger{seen: make(map[string]struct{})}
	for _, id := range ids {
		l.seen[id] = struct{}{}
	}
	return l
}

func (l *memLedger) IsProcessed(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[id]
	return ok
}

func (l *memLedger) MarkProcessed(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[id] = struct{}{}
	return nil
}

func testRange() domain.DateRange {
	from, _ := time.Parse("2006.01.02", "2025.08.01")
	to, _ := time.Parse("2006.01.02", "2025.08.08")
	return domain.DateRange{From: from, To: to}
}

func metasFor(ids ...string) []domain.PaperMeta {
	metas := make([]domain.PaperMeta, len(ids))
	for i, id := range ids {
		metas[i] = domain.PaperMeta{
			ID:       id,
			Title:    "Title " + id,
			Abstract: "Abstract " + id,
		}
	}
	return metas
}

func sectionsFor(ids ...string) map[string][]domain.Section {
	m := make(map[string][]domain.Section)
	for _, id := range ids {
		m[id] = []domain.Section{
			{Heading: "1 Introduction", Body: "intro of " + id},
			{Heading: "2 Method", Body: "method of " + id},
		}
	}
	return m
}

func newTestPipeline(search SearchClient, fetcher ContentFetcher, gen llm.Client, ledger Ledger, cap int64) *Pipeline {
	return New(search, fetcher, gen, ledger, nil, NewGate(cap), zerolog.Nop(), nil)
}

// recordingArchive captures the SaveRun call a completed run makes.
type recordingArchive struct {
	digest     *domain.Digest
	discovered int
	err        error
}

func (a *recordingArchive) SaveRun(ctx context.Context, digest *domain.Digest, discovered int) error {
	a.digest = digest
	a.discovered = discovered
	return a.err
}

func TestPipeline_Run(t *testing.T) {
	t.Run("happy path summarizes all papers with synthesis", func(t *testing.T) {
		ids := []string{"a1", "b2"}
		search := &fakeSearch{metas: metasFor(ids...)}
		fetcher := &fakeFetcher{sections: sectionsFor(ids...)}
		gen := &countingGenerator{}
		ledger := newMemLedger()

		p := newTestPipeline(search, fetcher, gen, ledger, 4)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		require.Len(t, digest.Papers, 2)
		assert.Equal(t, "a1", digest.Papers[0].ID)
		assert.Equal(t, "b2", digest.Papers[1].ID)
		assert.NotEmpty(t, digest.Synthesis)
		assert.Zero(t, digest.Failed)
		assert.Zero(t, digest.DuplicatesSkipped)

		for _, paper := range digest.Papers {
			assert.Equal(t, domain.StatusSummarized, paper.Status)
			assert.Len(t, paper.SectionSummaries, 2)
			assert.NotEmpty(t, paper.GeneralSummary)
			assert.True(t, ledger.IsProcessed(paper.ID), "summarized paper is marked in ledger")
		}
	})

	t.Run("completed run is archived with the discovery count", func(t *testing.T) {
		ids := []string{"a1", "b2"}
		archive := &recordingArchive{}

		p := New(
			&fakeSearch{metas: metasFor(ids...)},
			&fakeFetcher{sections: sectionsFor(ids...)},
			&countingGenerator{}, newMemLedger(), archive,
			NewGate(4), zerolog.Nop(), nil,
		)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		require.NotNil(t, archive.digest)
		assert.Same(t, digest, archive.digest)
		assert.Equal(t, 2, archive.discovered)
	})

	t.Run("archive failure does not fail the run", func(t *testing.T) {
		ids := []string{"a1"}
		archive := &recordingArchive{err: errors.New("database down")}

		p := New(
			&fakeSearch{metas: metasFor(ids...)},
			&fakeFetcher{sections: sectionsFor(ids...)},
			&countingGenerator{}, newMemLedger(), archive,
			NewGate(4), zerolog.Nop(), nil,
		)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		assert.Len(t, digest.Papers, 1)
	})

	t.Run("empty discovery short-circuits without generation", func(t *testing.T) {
		search := &fakeSearch{}
		gen := &countingGenerator{}

		p := newTestPipeline(search, &fakeFetcher{}, gen, newMemLedger(), 4)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		assert.True(t, digest.Empty())
		assert.Zero(t, gen.calls, "no generation calls for an empty result set")
	})

	t.Run("discovery failure fails the run", func(t *testing.T) {
		search := &fakeSearch{err: errors.New("arxiv down")}

		p := newTestPipeline(search, &fakeFetcher{}, &countingGenerator{}, newMemLedger(), 4)
		_, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "paper discovery failed")
	})

	t.Run("ledger filters duplicates and digest has no duplicate ids", func(t *testing.T) {
		ids := []string{"a1", "b2", "c3", "d4"}
		search := &fakeSearch{metas: metasFor(ids...)}
		fetcher := &fakeFetcher{sections: sectionsFor(ids...)}
		ledger := newMemLedger("b2", "d4")

		p := newTestPipeline(search, fetcher, &countingGenerator{}, ledger, 4)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		assert.Equal(t, 2, digest.DuplicatesSkipped)
		require.Len(t, digest.Papers, 2)

		seen := make(map[string]bool)
		for _, paper := range digest.Papers {
			assert.False(t, seen[paper.ID], "duplicate id %s in digest", paper.ID)
			seen[paper.ID] = true
		}
		assert.True(t, seen["a1"])
		assert.True(t, seen["c3"])
	})

	t.Run("all duplicates short-circuits without generation", func(t *testing.T) {
		search := &fakeSearch{metas: metasFor("a1", "b2")}
		gen := &countingGenerator{}

		p := newTestPipeline(search, &fakeFetcher{}, gen, newMemLedger("a1", "b2"), 4)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		assert.True(t, digest.Empty())
		assert.Equal(t, 2, digest.DuplicatesSkipped)
		assert.Zero(t, gen.calls)
	})

	t.Run("fetch failure falls back to abstract as sole section", func(t *testing.T) {
		search := &fakeSearch{metas: metasFor("a1")}
		fetcher := &fakeFetcher{failIDs: map[string]bool{"a1": true}}

		p := newTestPipeline(search, fetcher, &countingGenerator{}, newMemLedger(), 4)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		require.Len(t, digest.Papers, 1)

		paper := digest.Papers[0]
		assert.Equal(t, domain.StatusSummarized, paper.Status)
		require.Len(t, paper.Sections, 1)
		assert.Equal(t, "Summary", paper.Sections[0].Heading)
		assert.Equal(t, "Abstract a1", paper.Sections[0].Body)
	})

	t.Run("one paper's generation failure does not abort the run", func(t *testing.T) {
		ids := []string{"a1", "b2", "c3"}
		search := &fakeSearch{metas: metasFor(ids...)}
		fetcher := &fakeFetcher{sections: sectionsFor(ids...)}
		gen := &countingGenerator{failWhen: func(req llm.Request) bool {
			return strings.Contains(req.User, "of b2")
		}}
		ledger := newMemLedger()

		p := newTestPipeline(search, fetcher, gen, ledger, 4)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		assert.Equal(t, 1, digest.Failed)
		require.Len(t, digest.Papers, 2)
		assert.Equal(t, "a1", digest.Papers[0].ID)
		assert.Equal(t, "c3", digest.Papers[1].ID)
		assert.False(t, ledger.IsProcessed("b2"), "failed paper is not marked processed")
	})

	t.Run("synthesis failure falls back to concatenated summaries", func(t *testing.T) {
		search := &fakeSearch{metas: metasFor("a1")}
		fetcher := &fakeFetcher{sections: sectionsFor("a1")}
		gen := &countingGenerator{failWhen: func(req llm.Request) bool {
			return strings.Contains(req.User, "paper summaries")
		}}

		p := newTestPipeline(search, fetcher, gen, newMemLedger(), 4)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		require.Len(t, digest.Papers, 1)
		assert.Contains(t, digest.Synthesis, "Title a1")
		assert.Contains(t, digest.Synthesis, digest.Papers[0].GeneralSummary)
	})

	t.Run("digest order is discovery order under randomized latency", func(t *testing.T) {
		ids := []string{"a1", "b2", "c3", "d4", "e5", "f6"}
		search := &fakeSearch{metas: metasFor(ids...)}
		rng := rand.New(rand.NewSource(42))
		var mu sync.Mutex
		fetcher := &fakeFetcher{
			sections: sectionsFor(ids...),
			latency: func(id string) time.Duration {
				mu.Lock()
				d := time.Duration(rng.Intn(30)) * time.Millisecond
				mu.Unlock()
				return d
			},
		}

		p := newTestPipeline(search, fetcher, &countingGenerator{}, newMemLedger(), 3)
		digest, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		require.Len(t, digest.Papers, len(ids))
		for i, id := range ids {
			assert.Equal(t, id, digest.Papers[i].ID)
		}
	})

	t.Run("generation concurrency never exceeds the cap", func(t *testing.T) {
		ids := []string{"a1", "b2", "c3", "d4", "e5", "f6", "g7", "h8"}
		search := &fakeSearch{metas: metasFor(ids...)}
		fetcher := &fakeFetcher{sections: sectionsFor(ids...)}
		gen := &countingGenerator{latency: func() time.Duration { return 5 * time.Millisecond }}

		const limit = 3
		p := newTestPipeline(search, fetcher, gen, newMemLedger(), limit)
		_, err := p.Run(context.Background(), "RAG", "all:rag", testRange())

		require.NoError(t, err)
		assert.LessOrEqual(t, gen.maxSeen, limit, "observed concurrency above the cap")
		assert.Greater(t, gen.calls, 0)
	})

	t.Run("shared gate caps concurrency across simultaneous runs", func(t *testing.T) {
		ids := []string{"a1", "b2", "c3", "d4"}
		gen := &countingGenerator{latency: func() time.Duration { return 5 * time.Millisecond }}
		gate := NewGate(2)

		makePipeline := func() *Pipeline {
			return New(
				&fakeSearch{metas: metasFor(ids...)},
				&fakeFetcher{sections: sectionsFor(ids...)},
				gen, newMemLedger(), nil, gate, zerolog.Nop(), nil,
			)
		}

		var wg sync.WaitGroup
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := makePipeline().Run(context.Background(), "RAG", "all:rag", testRange())
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, gen.maxSeen, 2, "gate must bound all runs together")
	})
}

func TestConcatenateSummaries(t *testing.T) {
	out := concatenateSummaries([]string{"T1", "T2"}, []string{"S1", "S2"})
	assert.Equal(t, "T1\nS1\n\nT2\nS2", out)
}
