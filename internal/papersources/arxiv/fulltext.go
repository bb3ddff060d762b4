package arxiv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/ironzo/arxiveparser/internal/domain"
)

// FetchFullText retrieves the HTML rendering of a paper and extracts its
// abstract and top-level sections.
//
// arXiv only renders HTML for a subset of papers; a missing page or a page
// with no parsable content yields domain.ErrUnavailable so callers can fall
// back to the abstract from the search feed.
func (c *Client) FetchFullText(ctx context.Context, id string) (string, []domain.Section, error) {
	start := time.Now()

	fullTextURL := c.config.FullTextBaseURL + id
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullTextURL, nil)
	if err != nil {
		return "", nil, fmt.Errorf("creating full-text request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure("fulltext", "transport")
		return "", nil, fmt.Errorf("executing full-text request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.recordFailure("fulltext", "not_found")
		return "", nil, fmt.Errorf("no HTML rendering for %s: %w", id, domain.ErrUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		c.recordFailure("fulltext", "status")
		return "", nil, domain.NewExternalAPIError(sourceName, resp.StatusCode, "full-text fetch failed", nil)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		c.recordFailure("fulltext", "parse")
		return "", nil, fmt.Errorf("parsing full-text HTML: %w", err)
	}

	abstract, sections := extractPaperContent(doc)
	if abstract == "" && len(sections) == 0 {
		c.recordFailure("fulltext", "empty")
		return "", nil, fmt.Errorf("no parsable content for %s: %w", id, domain.ErrUnavailable)
	}

	if c.metrics != nil {
		c.metrics.RecordSourceRequest("fulltext", time.Since(start).Seconds())
	}
	c.logger.Debug().Str("paper_id", id).Int("sections", len(sections)).Msg("fetched full text")

	return abstract, sections, nil
}

// extractPaperContent pulls the abstract and top-level sections out of an
// arXiv LaTeXML page. The abstract lives in a div with the ltx_abstract
// class; each section starts at an h2 with the ltx_title_section class and
// runs until the next h2 among its siblings.
func extractPaperContent(doc *html.Node) (string, []domain.Section) {
	var abstract string
	var sections []domain.Section

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "div" && hasClass(n, "ltx_abstract"):
				if abstract == "" {
					abstract = nodeText(n)
				}
			case n.Data == "h2" && hasClass(n, "ltx_title_section"):
				heading := nodeText(n)
				body := sectionBody(n)
				if heading != "" && body != "" {
					sections = append(sections, domain.Section{Heading: heading, Body: body})
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)

	return abstract, sections
}

// sectionBody collects the text of content elements following a section
// heading, stopping at the next h2 sibling.
func sectionBody(h2 *html.Node) string {
	var parts []string
	for sibling := h2.NextSibling; sibling != nil; sibling = sibling.NextSibling {
		if sibling.Type != html.ElementNode {
			continue
		}
		if sibling.Data == "h2" {
			break
		}
		switch sibling.Data {
		case "p", "div", "ul", "ol", "li":
			if text := nodeText(sibling); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// hasClass reports whether the node's class attribute contains the given class.
func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(attr.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

// nodeText returns the normalized concatenation of all text nodes under n.
func nodeText(n *html.Node) string {
	var sb strings.Builder

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)

	return domain.NormalizeWhitespace(sb.String())
}
