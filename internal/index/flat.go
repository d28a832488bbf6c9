package index

import (
	"fmt"
	"slices"
	"sync"
)

// Flat is the portable backend. Vectors live in one row-major matrix and a
// query is scored with a single matrix–vector product.
type Flat struct {
	mu     sync.RWMutex
	dim    int
	matrix []float32
	chunks []string
}

// NewFlat returns an empty flat index for vectors of length dim.
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	return &Flat{dim: dim}, nil
}

// Add appends chunks and their vectors to the matrix.
func (f *Flat) Add(chunks []string, vectors [][]float32) error {
	if err := validateAdd(f.dim, chunks, vectors); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.matrix = slices.Grow(f.matrix, len(vectors)*f.dim)
	for _, v := range vectors {
		f.matrix = append(f.matrix, v...)
	}
	f.chunks = append(f.chunks, chunks...)
	return nil
}

// Search scores every row against query and returns the top k.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if err := validateQuery(f.dim, query); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	scores := matVec(f.matrix, f.dim, query)
	best := topK(scores, k)
	hits := make([]Hit, len(best))
	for i, pos := range best {
		hits[i] = Hit{Position: pos, Text: f.chunks[pos], Score: scores[pos]}
	}
	return hits, nil
}

// Clear drops all rows.
func (f *Flat) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matrix = nil
	f.chunks = nil
}

// Size returns the number of rows.
func (f *Flat) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.chunks)
}

// Dimension returns the row length.
func (f *Flat) Dimension() int { return f.dim }

// Backend returns BackendFlat.
func (f *Flat) Backend() Backend { return BackendFlat }

// matVec returns m·v for a row-major matrix m with cols columns.
func matVec(m []float32, cols int, v []float32) []float32 {
	rows := len(m) / cols
	out := make([]float32, rows)
	for r := range rows {
		row := m[r*cols : (r+1)*cols]
		var sum float32
		for c, x := range row {
			sum += x * v[c]
		}
		out[r] = sum
	}
	return out
}
