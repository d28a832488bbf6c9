package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/docchat-go/internal/index"
)

// Embedder is the subset of the embedding provider the pipeline needs.
type Embedder interface {
	// EmbedDocuments returns one unit vector per text, in input order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension returns the vector length of the active model.
	Dimension(ctx context.Context) (int, error)
	// ModelName identifies the active model.
	ModelName() string
}

// Result is a fully indexed upload, ready to bind to a session.
type Result struct {
	// Document is the ingested document with its chunks.
	Document *Document
	// Index holds one vector per chunk, sized to the active embedding model.
	Index index.Index
	// Model is the embedding model that produced the vectors.
	Model string
	// Elapsed is the wall time of the whole run.
	Elapsed time.Duration
}

// Pipeline orchestrates the extract → chunk → embed → index flow for one
// upload at a time.
type Pipeline struct {
	// ingestor extracts and chunks the uploaded bytes.
	ingestor *Ingestor

	// embedder converts chunk texts into unit vectors.
	embedder Embedder

	// indexes builds the per-upload vector index.
	indexes *index.Factory

	log *slog.Logger
}

// NewPipeline constructs a Pipeline from the provided dependencies.
func NewPipeline(ingestor *Ingestor, embedder Embedder, indexes *index.Factory, log *slog.Logger) (*Pipeline, error) {
	if ingestor == nil {
		return nil, fmt.Errorf("ingestion: ingestor must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if indexes == nil {
		return nil, fmt.Errorf("ingestion: index factory must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{ingestor: ingestor, embedder: embedder, indexes: indexes, log: log}, nil
}

// embedResult carries the worker's output back to Run.
type embedResult struct {
	vectors [][]float32
	err     error
}

// Run ingests raw and returns a populated index. Extraction errors are
// returned synchronously as *Error. Embedding runs on a worker goroutine so
// that a cancelled ctx returns immediately; the worker's late result is
// discarded. Progress is reported via the optional progress callback.
func (p *Pipeline) Run(ctx context.Context, raw []byte, filename string, progress func(msg string)) (*Result, error) {
	if progress == nil {
		progress = func(string) {}
	}
	start := time.Now()

	doc, err := p.ingestor.ProcessDocument(raw, filename)
	if err != nil {
		return nil, err
	}
	progress(fmt.Sprintf("chunked %s into %d chunks", filename, len(doc.Chunks)))

	texts := doc.Texts()
	done := make(chan embedResult, 1)
	go func() {
		vecs, err := p.embedder.EmbedDocuments(ctx, texts)
		done <- embedResult{vectors: vecs, err: err}
	}()

	var vectors [][]float32
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("ingestion: embedding %s: %w", filename, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("ingestion: embedding %s: %w", filename, res.err)
		}
		vectors = res.vectors
	}
	progress(fmt.Sprintf("embedded %d chunks with %s", len(vectors), p.embedder.ModelName()))

	dim, err := p.embedder.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: embedding dimension: %w", err)
	}
	idx, err := p.indexes.New(dim)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}
	if err := idx.Add(texts, vectors); err != nil {
		idx.Clear()
		if errors.Is(err, index.ErrDimensionMismatch) {
			return nil, fmt.Errorf("ingestion: %s: embedding model changed dimension mid-upload: %w", filename, err)
		}
		return nil, fmt.Errorf("ingestion: indexing %s: %w", filename, err)
	}

	res := &Result{
		Document: doc,
		Index:    idx,
		Model:    p.embedder.ModelName(),
		Elapsed:  time.Since(start),
	}
	p.log.Info("ingestion: document indexed",
		slog.String("file", filename),
		slog.String("format", string(doc.Format)),
		slog.Int("chunks", len(doc.Chunks)),
		slog.String("backend", string(idx.Backend())),
		slog.Int("dimension", dim),
		slog.String("model", res.Model),
		slog.Duration("elapsed", res.Elapsed),
	)
	progress(fmt.Sprintf("indexed %d chunks (%s, dim=%d)", idx.Size(), idx.Backend(), dim))
	return res, nil
}
