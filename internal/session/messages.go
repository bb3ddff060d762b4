package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ironzo/arxiveparser/internal/domain"
)

// User-facing message texts.
const (
	msgHelp = "Commands:\n" +
		"/digest - build a research digest for a topic and date range\n" +
		"/cancel - abort the current conversation\n" +
		"/help - show this message"

	msgIdleHint            = "Send /digest to start building a research digest."
	msgUnknownCommand      = "I don't know that command.\n\n" + msgHelp
	msgAskTopic            = "What research topic are you interested in?"
	msgEmptyTopic          = "The topic cannot be empty. What research topic are you interested in?"
	msgAskStartDate        = "From which date should I search? Use the format YYYY.MM.DD, e.g. 2025.08.01"
	msgAskEndDate          = "Until which date? Use the format YYYY.MM.DD, e.g. 2025.08.08"
	msgBadDateFormat       = "That doesn't look like a valid date. Please use YYYY.MM.DD, e.g. 2025.08.01"
	msgBadDateRange        = "The end date must not be before the start date. Please send the end date again."
	msgProcessing          = "Searching arXiv for papers on \"%s\" submitted %s. This can take a few minutes."
	msgBusy                = "I'm still working on your current digest. Send /cancel to abort it."
	msgNothingToCancel     = "Nothing to cancel."
	msgCancelled           = "Cancelled. Send /digest to start over."
	msgCancelledProcessing = "Cancelled. The current run will be discarded when it finishes."
	msgRunFailed           = "Sorry, I couldn't build the digest. arXiv may be unavailable; please try again later."

	msgAskUserIDAdd    = "Send the numeric user ID to authorize."
	msgAskUserIDRemove = "Send the numeric user ID to remove."
	msgBadUserID       = "That's not a valid numeric user ID."
	msgAdminOpDone     = "Done: %s user %d."
	msgAdminDenied     = "Only the admin can do that."
	msgAllowListEmpty  = "The allow-list is empty: everyone is currently authorized."
)

// adminErrorMessage maps access-control errors to user-facing replies.
func adminErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return msgAdminDenied
	case errors.Is(err, domain.ErrAlreadyExists):
		return "That user is already authorized."
	case errors.Is(err, domain.ErrCannotRemoveSelf):
		return "The admin cannot be removed."
	case errors.Is(err, domain.ErrNotFound):
		return "That user is not on the allow-list."
	default:
		return "Sorry, that didn't work: " + err.Error()
	}
}

// FormatDigest renders a completed digest as a sequence of outbound
// messages: a header, one message per paper, the synthesis, and a stats
// footer. Long messages are chunked by the messenger, not here.
func FormatDigest(digest *domain.Digest) []string {
	if digest.Empty() {
		text := fmt.Sprintf("No new papers found for \"%s\" (%s).", digest.Topic, digest.Range.String())
		if digest.DuplicatesSkipped > 0 {
			text += fmt.Sprintf(" %d papers were skipped because you have already seen them.", digest.DuplicatesSkipped)
		}
		return []string{text}
	}

	messages := make([]string, 0, len(digest.Papers)+3)
	messages = append(messages, fmt.Sprintf("📑 Digest for \"%s\" (%s): %d papers.",
		digest.Topic, digest.Range.String(), len(digest.Papers)))

	for i, paper := range digest.Papers {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d. %s\n%s\n", i+1, paper.Title, paper.URL())
		if len(paper.Authors) > 0 {
			sb.WriteString(strings.Join(paper.Authors, ", "))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
		sb.WriteString(paper.GeneralSummary)
		messages = append(messages, sb.String())
	}

	if digest.Synthesis != "" {
		messages = append(messages, "🔭 Overview\n\n"+digest.Synthesis)
	}

	if digest.DuplicatesSkipped > 0 || digest.Failed > 0 {
		messages = append(messages, fmt.Sprintf("Skipped %d already-seen papers; %d papers could not be processed.",
			digest.DuplicatesSkipped, digest.Failed))
	}

	return messages
}
