// Package index provides in-memory vector indexes for top-k similarity
// search over unit-normalised embeddings.
//
// Two backends satisfy [Index]: an exact inner-product backend built on the
// viant/vec SIMD kernels (arm64 builds without the novec tag), and a flat
// fallback that scores a contiguous matrix with one matrix–vector product. A [Factory] picks one of them when
// it is constructed and keeps that choice for its whole lifetime.
package index

import (
	"errors"
	"fmt"
)

// Backend names an index implementation.
type Backend string

const (
	// BackendExact is the viant/vec inner-product backend.
	BackendExact Backend = "exact"
	// BackendFlat is the portable matrix backend.
	BackendFlat Backend = "flat"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the index dimension.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
	// ErrLengthMismatch is returned when Add receives different numbers of
	// chunks and vectors.
	ErrLengthMismatch = errors.New("index: chunks and vectors length mismatch")
	// ErrInvalidDimension is returned for a non-positive index dimension.
	ErrInvalidDimension = errors.New("index: dimension must be positive")
	// ErrExactUnavailable is returned when the exact backend is requested in
	// a build that does not include it.
	ErrExactUnavailable = errors.New("index: exact backend not available in this build")
)

// Hit is one search result.
type Hit struct {
	// Position is the insertion position of the chunk (0-based).
	Position int
	// Text is the chunk text.
	Text string
	// Score is the inner product with the query; for unit vectors this is
	// the cosine similarity.
	Score float32
}

// Index stores chunk vectors and answers top-k similarity queries.
// Implementations are safe for concurrent use.
type Index interface {
	// Add appends chunks with their vectors. vectors[i] belongs to chunks[i].
	Add(chunks []string, vectors [][]float32) error
	// Search returns at most k hits ordered by descending score. Ties keep
	// insertion order.
	Search(query []float32, k int) ([]Hit, error)
	// Clear drops every entry and releases the backing storage.
	Clear()
	// Size returns the number of stored entries.
	Size() int
	// Dimension returns the vector length the index was built for.
	Dimension() int
	// Backend names the implementation.
	Backend() Backend
}

// validateAdd checks the shape of an Add call against dim.
func validateAdd(dim int, chunks []string, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("%w: %d chunks, %d vectors", ErrLengthMismatch, len(chunks), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d, index has %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// validateQuery checks the query length against dim.
func validateQuery(dim int, query []float32) error {
	if len(query) != dim {
		return fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(query), dim)
	}
	return nil
}

// topK selects the k highest scores from scores, keeping insertion order
// among equal scores. It runs in O(n·k) without sorting the whole slice.
func topK(scores []float32, k int) []int {
	if k <= 0 || len(scores) == 0 {
		return nil
	}
	k = min(k, len(scores))

	best := make([]int, 0, k)
	for i, s := range scores {
		if len(best) == k && s <= scores[best[k-1]] {
			continue
		}
		pos := len(best)
		for pos > 0 && scores[best[pos-1]] < s {
			pos--
		}
		if len(best) < k {
			best = append(best, 0)
		}
		copy(best[pos+1:], best[pos:len(best)-1])
		best[pos] = i
	}
	return best
}
