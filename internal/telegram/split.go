package telegram

import "strings"

// SplitMessage breaks text into chunks no longer than maxLen characters.
//
// It prefers splitting on paragraph boundaries (blank lines), then on
// sentence boundaries within an oversized paragraph, and finally hard-splits
// a sentence that alone exceeds the limit. Chunk boundaries never reorder
// content and whitespace at chunk edges is trimmed.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			chunks = append(chunks, trimmed)
		}
		current.Reset()
	}

	appendPiece := func(piece, separator string) {
		if current.Len()+len(separator)+len(piece) > maxLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(separator)
		}
		current.WriteString(piece)
	}

	for _, paragraph := range strings.Split(text, "\n\n") {
		if len(paragraph) <= maxLen {
			appendPiece(paragraph, "\n\n")
			continue
		}

		// The first sentence still starts a new paragraph relative to
		// whatever precedes it in the current chunk.
		separator := "\n\n"
		for _, sentence := range strings.SplitAfter(paragraph, ". ") {
			if len(sentence) <= maxLen {
				appendPiece(sentence, separator)
				separator = ""
				continue
			}
			// A single sentence above the limit is hard-split.
			flush()
			for len(sentence) > maxLen {
				chunks = append(chunks, strings.TrimSpace(sentence[:maxLen]))
				sentence = sentence[maxLen:]
			}
			appendPiece(sentence, "")
			separator = ""
		}
	}
	flush()

	return chunks
}
