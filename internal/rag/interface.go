// Package rag retrieves document context for a chat turn. The Coordinator
// embeds the user's question, searches the session's vector index, filters
// the hits by relevance and frames what survives as a system-prompt prefix.
// Missing context is a normal outcome, never an error.
package rag

import (
	"context"
)

// QueryEmbedder converts a search query into a unit vector.
// Implementations must be safe to call from multiple goroutines.
type QueryEmbedder interface {
	// EmbedQuery returns the embedding of a single query text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Passage is one retrieved chunk with its similarity score.
type Passage struct {
	// Text is the chunk content.
	Text string

	// Score is the cosine similarity with the query (-1.0 to 1.0).
	Score float32
}

// Options tunes a single retrieval. Zero fields take the Coordinator's
// defaults.
type Options struct {
	// DocumentName is shown to the model in the context framing.
	DocumentName string

	// TopK is the number of nearest chunks to consider.
	TopK int

	// Threshold is the minimum score a chunk needs to be used. It is applied
	// after top-k selection. Nil takes the default; 0 is a real threshold
	// and -1 keeps every hit.
	Threshold *float32

	// MaxChars caps the joined context length in runes.
	MaxChars int
}
