package llm

import (
	"fmt"
	"strings"

	"github.com/ironzo/arxiveparser/internal/domain"
)

// QueryResponse is the expected JSON structure for query construction responses.
type QueryResponse struct {
	Query string `json:"query"`
}

// BuildQueryPrompt builds the system and user prompts for arXiv search query
// construction. The system prompt instructs the LLM on the arXiv API query
// syntax and the JSON response format. The user prompt carries the topic.
func BuildQueryPrompt(topic string) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are an expert arXiv API assistant. Your task is to generate ")
	sb.WriteString("an arXiv search_query string for the API based on a user's topic ")
	sb.WriteString("of interest.\n\n")

	sb.WriteString("You MUST respond with valid JSON in exactly this format:\n")
	sb.WriteString(`{"query": "the search_query string"}`)
	sb.WriteString("\n\n")

	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Return only the search_query string, without id_list or date filters (those are appended in code).\n")
	sb.WriteString("2. Follow the arXiv API query format (section 5.1 of the API manual).\n")
	sb.WriteString("3. Use valid fields: ti: (title), abs: (abstract), au: (author), co: (comment), cat: (category), all: (all fields).\n")
	sb.WriteString("4. Use Boolean operators: AND, OR, ANDNOT.\n")
	sb.WriteString("5. Use parentheses %28, %29 for grouping and %22 for phrases in quotes.\n")
	sb.WriteString("6. Do not include submittedDate:[...]. That will be appended by code later.\n")
	sb.WriteString("7. Use + instead of spaces and escape special characters accordingly.\n\n")

	sb.WriteString("Search strategy:\n")
	sb.WriteString("- For broad topics, use the all: field for semantic matching.\n")
	sb.WriteString("- For specific terms, combine ti: (title) and abs: (abstract) fields.\n")
	sb.WriteString("- Include relevant arXiv categories when appropriate (cs.CL, cs.AI, cs.IR, cs.LG, cs.CV, etc.).\n")
	sb.WriteString("- Use synonyms and related terms with OR operators.\n")
	sb.WriteString("- Consider both singular and plural forms of terms.\n\n")

	sb.WriteString("Example query values:\n")
	sb.WriteString("- Single topic: all:%22machine+learning%22\n")
	sb.WriteString("- Multiple related terms: (all:%22neural+networks%22+OR+all:%22deep+learning%22)\n")
	sb.WriteString("- With categories: (all:%22computer+vision%22)+AND+(cat:cs.CV+OR+cat:cs.AI)\n")
	sb.WriteString("- Specific field search: (ti:%22transformer%22+OR+abs:%22transformer%22)\n")

	userPrompt = fmt.Sprintf("Generate an arXiv search query for the following research topic:\n\n%s", topic)

	return sb.String(), userPrompt
}

// BuildSectionSummaryPrompt builds the system and user prompts for summarizing
// a single section of a paper. The heading gives the model the relative
// location of the text within the paper.
func BuildSectionSummaryPrompt(heading, text string) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are a summarizing expert. Your task is to construct a concise ")
	sb.WriteString("summary of a section from a research paper.\n\n")

	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Summarize all numbers, dates, names, and abbreviations mentioned.\n")
	sb.WriteString("2. Do not return shallow or vague summaries.\n")
	sb.WriteString("3. You will be given the heading of the section, which tells you its relative location in the paper.\n")
	sb.WriteString("4. Return ONLY the summary of the section text.\n")
	sb.WriteString("5. Do not include introductory phrases such as \"This section discusses...\" or \"The summary is...\".\n")

	var ub strings.Builder
	ub.WriteString("Given the section heading and section text, return a concise summary of the section text.\n\n")
	ub.WriteString("Section heading:\n")
	ub.WriteString(heading)
	ub.WriteString("\n\nSection text:\n")
	ub.WriteString(text)

	return sb.String(), ub.String()
}

// BuildPaperSummaryPrompt builds the system and user prompts for the
// whole-paper structured summary. It synthesizes the title, abstract, and
// per-section summaries into a single comprehensive overview.
func BuildPaperSummaryPrompt(title, abstract string, sections []domain.SectionSummary) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are an expert research paper analyst and summarizer. ")
	sb.WriteString("Your task is to create a comprehensive, detailed summary of an academic paper ")
	sb.WriteString("so thorough that readers can decide whether to read the full paper.\n\n")

	sb.WriteString("Summary structure:\n")
	sb.WriteString("1. **Research Overview** (2-3 sentences): the problem addressed and why it matters.\n")
	sb.WriteString("2. **Methodology & Approach** (3-4 sentences): the proposed solution, key technical components, datasets and evaluation methods.\n")
	sb.WriteString("3. **Key Contributions & Findings** (3-4 sentences): main results, novel contributions, quantitative improvements.\n")
	sb.WriteString("4. **Technical Details** (2-3 sentences): specific techniques, algorithms, architectural decisions.\n")
	sb.WriteString("5. **Limitations & Future Work** (1-2 sentences).\n")
	sb.WriteString("6. **Practical Implications** (1-2 sentences).\n\n")

	sb.WriteString("Writing style:\n")
	sb.WriteString("- Clear, academic but accessible language.\n")
	sb.WriteString("- Include specific technical details and numbers when available.\n")
	sb.WriteString("- Synthesize information from all provided sources (abstract and section summaries).\n")
	sb.WriteString("- Be comprehensive but concise (aim for 200-300 words total).\n\n")

	sb.WriteString("CRITICAL: Return ONLY the structured summary content. ")
	sb.WriteString("Do not include introductory phrases or conversational elements.\n")

	var ub strings.Builder
	ub.WriteString("Please create a comprehensive summary of the following research paper:\n\n")
	ub.WriteString("**Paper Title:** ")
	ub.WriteString(title)
	ub.WriteString("\n\n**Abstract:** ")
	ub.WriteString(abstract)
	if len(sections) > 0 {
		ub.WriteString("\n\n**Section Summaries:**\n")
		for _, s := range sections {
			ub.WriteString("\nSection heading:\n")
			ub.WriteString(s.Heading)
			ub.WriteString("\n\nSection summary:\n")
			ub.WriteString(s.Summary)
			ub.WriteString("\n")
		}
	}
	ub.WriteString("\nGenerate a detailed summary following the structure and guidelines provided in the system prompt.")

	return sb.String(), ub.String()
}

// BuildDigestPrompt builds the system and user prompts for the cross-paper
// digest narrative. Titles and summaries must be parallel slices in the order
// the papers were discovered.
func BuildDigestPrompt(titles, summaries []string) (systemPrompt, userPrompt string) {
	var sb strings.Builder

	sb.WriteString("You are a research analyst creating a digest for a busy professional. ")
	sb.WriteString("Your task is to create an engaging, informative overview that helps ")
	sb.WriteString("them stay current with research trends.\n\n")

	sb.WriteString("Digest structure:\n")
	sb.WriteString("1. **Highlights** (3-4 sentences): the big picture story and any surprising developments.\n")
	sb.WriteString("2. **Key Papers & Findings** (4-5 sentences): the most significant papers, novel approaches, performance improvements.\n")
	sb.WriteString("3. **Emerging Trends** (2-3 sentences): patterns across the papers and where the field is heading.\n")
	sb.WriteString("4. **What This Means** (2-3 sentences): practical implications and future research directions.\n\n")

	sb.WriteString("Writing style:\n")
	sb.WriteString("- Conversational but informative, like a good newsletter.\n")
	sb.WriteString("- Use specific examples from the papers and make connections between works.\n")
	sb.WriteString("- Aim for 250-350 words total.\n\n")

	sb.WriteString("CRITICAL: Return ONLY the digest content. Start directly with the digest.\n")

	var ub strings.Builder
	fmt.Fprintf(&ub, "Please create a concise scientific digest based on these %d paper summaries:\n", len(titles))
	for i, title := range titles {
		fmt.Fprintf(&ub, "\n**Paper %d: %s**\n", i+1, title)
		if i < len(summaries) {
			ub.WriteString(summaries[i])
			ub.WriteString("\n")
		}
	}
	ub.WriteString("\nGenerate a focused, factual overview that synthesizes the key findings and trends across all this research.")

	return sb.String(), ub.String()
}
