package embedder

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// DefaultHashDimensions is the vector length of the fallback model.
const DefaultHashDimensions = 384

// HashEmbedder is a dependency-free embedding model. It hashes unigrams and
// bigrams into a fixed number of signed buckets and weights each bucket by
// sublinear term frequency. It needs no vocabulary, so it works on any
// corpus without a prepare step.
type HashEmbedder struct {
	dim          int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHashEmbedder returns a HashEmbedder producing vectors of length dim.
// A non-positive dim selects DefaultHashDimensions.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimensions
	}
	return &HashEmbedder{
		dim:          dim,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this model.
func (h *HashEmbedder) Name() string { return fmt.Sprintf("hash-%d", h.dim) }

// Dimension returns the vector length.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed hashes each text independently.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	tokens := h.tokenize(text)
	counts := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}

	vec := make([]float32, h.dim)
	if len(counts) == 0 {
		// Stopword or punctuation-only text still gets a deterministic
		// non-zero vector, so it normalises to unit length.
		bucket, sign := h.bucket("\x00" + strings.ToLower(strings.TrimSpace(text)))
		vec[bucket] = sign
		return vec
	}
	for feature, n := range counts {
		bucket, sign := h.bucket(feature)
		vec[bucket] += sign * float32(1+math.Log(float64(n)))
	}
	return vec
}

// bucket maps a feature to a slot and a sign. The sign bit comes from the
// top of the hash so that collisions tend to cancel instead of accumulate.
func (h *HashEmbedder) bucket(feature string) (int, float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	sign := float32(1)
	if sum>>63 == 1 {
		sign = -1
	}
	return int(sum % uint64(h.dim)), sign
}

func (h *HashEmbedder) tokenize(text string) []string {
	raw := h.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := h.stopwords[t]; stop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same",
		"too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
