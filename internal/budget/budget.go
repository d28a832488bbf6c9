// Package budget estimates token counts for chat requests and trims
// conversation history to fit a context window. Chat backends use different
// tokenizers, so estimation uses a character heuristic of about four
// characters per token, counted in runes so non-Latin documents are not
// over-charged.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// messageOverhead is the per-message framing cost most chat APIs charge.
	messageOverhead = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// It fits 8k-context models while leaving room for the output.
	// Override with CHAT_MAX_CONTEXT_TOKENS.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s. Non-empty input costs at
// least one token.
func Estimate(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return max(n/charsPerToken, 1)
}

// EstimateMessages returns the estimated total token count of msgs, summing
// the framing overhead, role and content of each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += messageOverhead + Estimate(string(m.Role)) + Estimate(m.Content)
	}
	return total
}

// Fits reports whether msgs fit within maxTokens.
func Fits(msgs []*schema.Message, maxTokens int) bool {
	return EstimateMessages(msgs) <= maxTokens
}

// TrimHistory drops the oldest history messages until fixed + history fits
// within maxTokens. fixed holds the messages that are always sent (the
// system instruction with any document context, and the current user
// message). After trimming, leading assistant messages are dropped as well
// so the retained history opens on a user turn rather than on a reply whose
// question is gone.
//
// If fixed alone exceeds the budget the result is empty; callers decide
// whether that warrants a warning.
func TrimHistory(fixed, history []*schema.Message, maxTokens int) []*schema.Message {
	if len(history) == 0 {
		return history
	}

	remaining := maxTokens - EstimateMessages(fixed)
	cost := EstimateMessages(history)
	trimmed := false
	for len(history) > 0 && cost > remaining {
		cost -= EstimateMessages(history[:1])
		history = history[1:]
		trimmed = true
	}
	if trimmed {
		for len(history) > 0 && history[0].Role == schema.Assistant {
			history = history[1:]
		}
	}
	return history
}
