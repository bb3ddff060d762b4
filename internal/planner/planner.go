// Package planner turns a free-text research topic into an arXiv search query.
//
// Query construction is delegated to a text-generation client; when that call
// fails or returns something unusable, the planner falls back to a direct
// keyword query built from the topic alone. The planner makes exactly one
// generation attempt per topic and never fails outward.
package planner

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ironzo/arxiveparser/internal/domain"
	"github.com/ironzo/arxiveparser/internal/llm"
	"github.com/ironzo/arxiveparser/internal/observability"
)

// Planner builds arXiv search queries from user topics.
type Planner struct {
	generator llm.Client
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// New creates a Planner backed by the given generation client.
func New(generator llm.Client, logger zerolog.Logger, metrics *observability.Metrics) *Planner {
	return &Planner{
		generator: generator,
		logger:    logger.With().Str("component", "planner").Logger(),
		metrics:   metrics,
	}
}

// BuildQuery constructs a search query for the topic.
//
// A single generation attempt is made; any failure (transport error, malformed
// JSON, empty query) falls back to FallbackQuery. The returned string is in
// the arXiv API wire format (pre-encoded, + for spaces) and is always
// non-empty for a non-empty topic.
func (p *Planner) BuildQuery(ctx context.Context, topic string) string {
	system, user := llm.BuildQueryPrompt(topic)

	resp, err := p.generator.Complete(ctx, llm.Request{
		System:       system,
		User:         user,
		JSONResponse: true,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("topic", topic).Msg("query generation failed, using fallback query")
		if p.metrics != nil {
			p.metrics.RecordLLMRequestFailed("build_query", p.generator.Model(), "generation")
		}
		return FallbackQuery(topic)
	}

	query, err := parseQueryResponse(resp.Content)
	if err != nil {
		p.logger.Warn().Err(err).Str("topic", topic).Msg("query response unusable, using fallback query")
		if p.metrics != nil {
			p.metrics.RecordLLMRequestFailed("build_query", p.generator.Model(), "parse")
		}
		return FallbackQuery(topic)
	}

	p.logger.Debug().Str("topic", topic).Str("query", query).Msg("built search query")
	return query
}

// parseQueryResponse extracts the query string from the generation response.
func parseQueryResponse(content string) (string, error) {
	var parsed llm.QueryResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", domain.NewValidationError("query", "response is not valid JSON")
	}

	query := strings.TrimSpace(parsed.Query)
	query = strings.TrimPrefix(query, "search_query=")
	query = strings.Trim(query, "`\"")
	if query == "" {
		return "", domain.NewValidationError("query", "response contains no query")
	}
	return query, nil
}

// FallbackQuery builds a deterministic all-fields phrase query from the topic.
// The result uses the arXiv API wire format: %22-quoted phrase with + joining
// the topic's words.
func FallbackQuery(topic string) string {
	fields := strings.Fields(domain.NormalizeWhitespace(topic))
	escaped := make([]string, 0, len(fields))
	for _, f := range fields {
		escaped = append(escaped, url.QueryEscape(f))
	}
	return "all:%22" + strings.Join(escaped, "+") + "%22"
}
