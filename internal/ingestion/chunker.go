package ingestion

import (
	"unicode"
)

// Chunk is an immutable slice of a document's extracted text.
type Chunk struct {
	// Text is the trimmed chunk content.
	Text string
	// Offset is the rune offset of Text within the extracted document text.
	Offset int
}

// chunker splits text into overlapping windows of at most size runes.
// The caller guarantees 0 <= overlap < size.
type chunker struct {
	size    int
	overlap int
}

// isBoundary reports whether r is a position where a chunk may end without
// splitting a word.
func isBoundary(r rune) bool {
	switch r {
	case ' ', '\n', '\t', '\r', '.', '!', '?':
		return true
	}
	return false
}

// split walks text with a cursor that always moves forward by at least one
// rune per iteration, so it terminates for any size/overlap combination.
func (c chunker) split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)

	var chunks []Chunk
	start := 0
	for start < n {
		end := min(start+c.size, n)

		if end < n && !isBoundary(runes[end]) {
			for i := end - 1; i > start; i-- {
				if isBoundary(runes[i]) {
					end = i
					break
				}
			}
		}

		if ch, ok := trimmed(runes, start, end); ok {
			chunks = append(chunks, ch)
		}

		next := n
		if end < n {
			next = end - c.overlap
		}
		start = max(next, start+1)
	}
	return chunks
}

// trimmed returns runes[from:to] with surrounding whitespace removed, and
// false when nothing remains.
func trimmed(runes []rune, from, to int) (Chunk, bool) {
	for from < to && unicode.IsSpace(runes[from]) {
		from++
	}
	for to > from && unicode.IsSpace(runes[to-1]) {
		to--
	}
	if from == to {
		return Chunk{}, false
	}
	return Chunk{Text: string(runes[from:to]), Offset: from}, true
}
