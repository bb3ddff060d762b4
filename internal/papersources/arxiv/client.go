// Package arxiv provides clients for the arXiv search API and the arXiv
// HTML full-text pages.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/observability"
	"github.com/ironzo/arxiveparser/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultFullTextBaseURL is the default base URL for arXiv HTML full texts.
	DefaultFullTextBaseURL = "https://arxiv.org/html/"

	// DefaultRateLimit is the default rate limit (3 requests per second),
	// matching arXiv's published guidance.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults is the default maximum results per search request.
	DefaultMaxResults = 25

	// sourceName is the human-readable name for this source.
	sourceName = "arXiv"
)

// Config holds configuration for the arXiv client.
type Config struct {
	// BaseURL is the arXiv API base URL.
	BaseURL string

	// FullTextBaseURL is the base URL for HTML full-text pages.
	FullTextBaseURL string

	// Timeout is the request timeout.
	Timeout time.Duration

	// RateLimit is the maximum requests per second.
	RateLimit float64

	// BurstSize is the maximum burst of requests allowed.
	BurstSize int

	// MaxResults is the maximum results to return per search request.
	MaxResults int
}

// applyDefaults sets default values for unset configuration fields.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.FullTextBaseURL == "" {
		c.FullTextBaseURL = DefaultFullTextBaseURL
	}
	if !strings.HasSuffix(c.FullTextBaseURL, "/") {
		c.FullTextBaseURL += "/"
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxResults == 0 {
		c.MaxResults = DefaultMaxResults
	}
}

// Client speaks to the arXiv search API and full-text pages. A single rate
// limiter inside the shared HTTP client covers both endpoints.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// New creates a new arXiv client with the given configuration.
func New(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	httpClient := papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	})

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "arxiv").Logger(),
		metrics:    metrics,
	}
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
// This is useful for testing with mock servers.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "arxiv").Logger(),
		metrics:    metrics,
	}
}

// Search queries arXiv for papers matching query within the date range.
//
// The query must already be in arXiv wire format (pre-encoded, + for spaces);
// it is spliced into the URL as-is with the submittedDate filter appended.
// Results are returned newest first, capped at the configured maximum.
func (c *Client) Search(ctx context.Context, query string, dateRange domain.DateRange) ([]domain.PaperMeta, error) {
	start := time.Now()

	searchURL := fmt.Sprintf("%s/query?search_query=%s+AND+%s&start=0&max_results=%d&sortBy=submittedDate&sortOrder=descending",
		strings.TrimRight(c.config.BaseURL, "/"),
		query,
		buildDateFilter(dateRange),
		c.config.MaxResults,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure("search", "transport")
		return nil, fmt.Errorf("executing search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		c.recordFailure("search", "status")
		return nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
	}

	var feed Feed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&feed); err != nil {
		c.recordFailure("search", "decode")
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	papers := make([]domain.PaperMeta, 0, len(feed.Entries))
	for i := range feed.Entries {
		meta, ok := entryToMeta(&feed.Entries[i])
		if ok {
			papers = append(papers, meta)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordSourceRequest("search", time.Since(start).Seconds())
	}
	c.logger.Debug().
		Str("query", query).
		Str("range", dateRange.String()).
		Int("results", len(papers)).
		Msg("arxiv search completed")

	return papers, nil
}

// recordFailure records a source request failure if metrics are configured.
func (c *Client) recordFailure(endpoint, errorType string) {
	if c.metrics != nil {
		c.metrics.RecordSourceRequestFailed(endpoint, errorType)
	}
}

// buildDateFilter constructs the submittedDate filter in wire format.
// Bounds are inclusive: the start day from 00:00, the end day to 23:59.
func buildDateFilter(r domain.DateRange) string {
	return fmt.Sprintf("submittedDate:[%s0000+TO+%s2359]",
		r.From.Format("20060102"),
		r.To.Format("20060102"),
	)
}

// entryToMeta converts an arXiv Atom entry to paper metadata. Entries with
// no usable identifier are dropped.
func entryToMeta(entry *Entry) (domain.PaperMeta, bool) {
	// "http://arxiv.org/abs/2301.12345v1" -> "2301.12345v1". The version
	// suffix is kept because full-text URLs require it.
	id := entry.ID[strings.LastIndex(entry.ID, "/")+1:]
	if id == "" {
		return domain.PaperMeta{}, false
	}

	authors := make([]string, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name != "" {
			authors = append(authors, name)
		}
	}

	return domain.PaperMeta{
		ID:       id,
		Title:    domain.NormalizeWhitespace(entry.Title),
		Abstract: domain.NormalizeWhitespace(entry.Summary),
		Authors:  authors,
	}, true
}
