// Package ingestion turns uploaded files into retrieval-ready documents.
// An [Ingestor] extracts text (structured documents and plain text with
// encoding detection) and splits it into overlapping chunks; a [Pipeline]
// embeds those chunks and builds the vector index a session binds to.
package ingestion

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Default chunking parameters.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

var (
	// ErrUnsupportedType is returned for files whose extension has no extractor.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrEmptyContent is returned when extraction yields no usable text.
	ErrEmptyContent = errors.New("no extractable text")
	// ErrInvalidChunkConfig is returned by [New] when the chunk size and
	// overlap cannot produce forward progress.
	ErrInvalidChunkConfig = errors.New("invalid chunk configuration")
)

// Error is the ingestion failure surfaced to uploaders. Kind is one of the
// package sentinels; Err carries the underlying cause when there is one.
type Error struct {
	// File is the uploaded filename.
	File string
	// Kind is ErrUnsupportedType, ErrEmptyContent or ErrInvalidChunkConfig.
	Kind error
	// Err is the underlying cause (e.g. a PDF parse failure). May be nil.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ingestion: %s: %v: %v", e.File, e.Kind, e.Err)
	}
	return fmt.Sprintf("ingestion: %s: %v", e.File, e.Kind)
}

// Unwrap exposes both the sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Config holds chunking parameters.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	ChunkSize int
	// ChunkOverlap is the number of characters shared by consecutive chunks.
	ChunkOverlap int
}

// ConfigFromEnv reads INGEST_CHUNK_SIZE and INGEST_CHUNK_OVERLAP, falling
// back to the package defaults.
func ConfigFromEnv() Config {
	return Config{
		ChunkSize:    getEnvInt("INGEST_CHUNK_SIZE", DefaultChunkSize),
		ChunkOverlap: getEnvInt("INGEST_CHUNK_OVERLAP", DefaultChunkOverlap),
	}
}

// Document is the result of ingesting one upload.
type Document struct {
	// Name is the uploaded filename.
	Name string
	// Title is the display title inferred from the filename.
	Title string
	// Format is the extraction strategy that was used.
	Format Format
	// Chunks are the ordered chunks of the extracted text.
	Chunks []Chunk
}

// Texts returns the chunk texts in order.
func (d *Document) Texts() []string {
	out := make([]string, len(d.Chunks))
	for i, c := range d.Chunks {
		out[i] = c.Text
	}
	return out
}

// Ingestor extracts and chunks uploaded files. It is immutable after
// construction and safe for concurrent use.
type Ingestor struct {
	chunker chunker
}

// New validates cfg once and returns an Ingestor.
func New(cfg Config) (*Ingestor, error) {
	if cfg.ChunkSize <= 0 || cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, &Error{
			File: "-",
			Kind: ErrInvalidChunkConfig,
			Err:  fmt.Errorf("chunk_size=%d chunk_overlap=%d (need 0 <= overlap < size)", cfg.ChunkSize, cfg.ChunkOverlap),
		}
	}
	return &Ingestor{chunker: chunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}}, nil
}

// Process extracts raw and returns the ordered chunk texts.
func (in *Ingestor) Process(raw []byte, filename string) ([]string, error) {
	doc, err := in.ProcessDocument(raw, filename)
	if err != nil {
		return nil, err
	}
	return doc.Texts(), nil
}

// ProcessDocument is [Ingestor.Process] returning chunk offsets and the
// inferred metadata as well.
func (in *Ingestor) ProcessDocument(raw []byte, filename string) (*Document, error) {
	meta := InferMetadata(filename)
	extract, ok := extractors[meta.Format]
	if !ok {
		return nil, &Error{File: filename, Kind: ErrUnsupportedType}
	}

	text, err := extract(raw)
	if err != nil {
		return nil, &Error{File: filename, Kind: ErrEmptyContent, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &Error{File: filename, Kind: ErrEmptyContent}
	}

	chunks := in.chunker.split(text)
	if len(chunks) == 0 {
		return nil, &Error{File: filename, Kind: ErrEmptyContent}
	}

	return &Document{
		Name:   filename,
		Title:  meta.Title,
		Format: meta.Format,
		Chunks: chunks,
	}, nil
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
