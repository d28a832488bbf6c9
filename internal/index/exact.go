//go:build arm64 && !novec

package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/viant/vec/search"
)

// exactAvailable reports whether this build carries the exact backend.
const exactAvailable = true

// Exact is an inner-product index over unit vectors using the viant/vec
// NEON/SVE kernels, which exist on arm64 only. With both magnitudes fixed
// at 1 the cosine kernel reduces to the inner product, which equals cosine
// similarity for normalised input.
type Exact struct {
	mu     sync.RWMutex
	dim    int
	rows   []search.Float32s
	chunks []string
}

// NewExact returns an empty exact index for vectors of length dim.
func NewExact(dim int) (*Exact, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	return &Exact{dim: dim}, nil
}

// Add stores a copy of each vector.
func (e *Exact) Add(chunks []string, vectors [][]float32) error {
	if err := validateAdd(e.dim, chunks, vectors); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i, v := range vectors {
		row := make(search.Float32s, e.dim)
		copy(row, v)
		e.rows = append(e.rows, row)
		e.chunks = append(e.chunks, chunks[i])
	}
	return nil
}

// Search returns the k rows with the largest inner product with query.
func (e *Exact) Search(query []float32, k int) ([]Hit, error) {
	if err := validateQuery(e.dim, query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	hits := make([]Hit, len(e.rows))
	for i, row := range e.rows {
		hits[i] = Hit{
			Position: i,
			Text:     e.chunks[i],
			Score:    1 - row.CosineDistanceWithMagnitude(query, 1, 1),
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Clear drops all rows.
func (e *Exact) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rows = nil
	e.chunks = nil
}

// Size returns the number of rows.
func (e *Exact) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rows)
}

// Dimension returns the row length.
func (e *Exact) Dimension() int { return e.dim }

// Backend returns BackendExact.
func (e *Exact) Backend() Backend { return BackendExact }

// newExact adapts NewExact to the factory constructor shape.
func newExact(dim int) (Index, error) {
	return NewExact(dim)
}
