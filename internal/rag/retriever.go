package rag

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/docchat-go/internal/index"
	"github.com/54b3r/docchat-go/internal/logging"
)

// Retrieval defaults.
const (
	DefaultTopK            = 3
	DefaultThreshold       = 0.3
	DefaultMaxContextChars = 3000

	// Separator joins passages inside the context block.
	Separator = "\n\n---\n\n"
)

// Config holds the coordinator defaults.
type Config struct {
	// TopK is the default number of chunks searched.
	TopK int
	// Threshold is the default minimum relevance score.
	Threshold float32
	// MaxChars is the default context budget in runes.
	MaxChars int
}

// ConfigFromEnv reads RETRIEVAL_TOP_K, RETRIEVAL_THRESHOLD and
// RETRIEVAL_MAX_CHARS, falling back to the package defaults.
func ConfigFromEnv() Config {
	cfg := Config{
		TopK:      DefaultTopK,
		Threshold: DefaultThreshold,
		MaxChars:  DefaultMaxContextChars,
	}
	if v, err := strconv.Atoi(os.Getenv("RETRIEVAL_TOP_K")); err == nil && v > 0 {
		cfg.TopK = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("RETRIEVAL_THRESHOLD"), 32); err == nil {
		cfg.Threshold = float32(v)
	}
	if v, err := strconv.Atoi(os.Getenv("RETRIEVAL_MAX_CHARS")); err == nil && v > 0 {
		cfg.MaxChars = v
	}
	return cfg
}

// Coordinator turns a question and a session index into framed context.
type Coordinator struct {
	// embedder converts the query text to a dense vector.
	embedder QueryEmbedder

	// cfg holds the defaults applied to zero Options fields.
	cfg Config
}

// NewCoordinator constructs a Coordinator. Non-positive cfg fields take the
// package defaults.
func NewCoordinator(embedder QueryEmbedder, cfg Config) (*Coordinator, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxContextChars
	}
	return &Coordinator{embedder: embedder, cfg: cfg}, nil
}

// Defaults returns the coordinator configuration.
func (c *Coordinator) Defaults() Config { return c.cfg }

// Retrieve returns the top-k passages for query whose score meets the
// threshold, ordered by descending score. A nil or empty index yields no
// passages and no error.
func (c *Coordinator) Retrieve(ctx context.Context, idx index.Index, query string, opts Options) ([]Passage, error) {
	if idx == nil || idx.Size() == 0 {
		return nil, nil
	}
	opts = c.resolve(opts)

	vec, err := c.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	hits, err := idx.Search(vec, opts.TopK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		if h.Score < *opts.Threshold {
			continue
		}
		passages = append(passages, Passage{Text: h.Text, Score: h.Score})
	}
	return passages, nil
}

// RetrieveContext returns the framed context block for query, or "", false
// when nothing relevant was found. Failures are logged, never returned: a
// turn without context is still a valid turn.
func (c *Coordinator) RetrieveContext(ctx context.Context, idx index.Index, query string, opts Options) (string, bool) {
	log := logging.FromContext(ctx)

	if idx == nil || idx.Size() == 0 {
		log.Debug("rag: no document indexed, skipping retrieval")
		return "", false
	}
	opts = c.resolve(opts)

	passages, err := c.Retrieve(ctx, idx, query, opts)
	if err != nil {
		log.Warn("rag: retrieval failed, continuing without context", slog.String("error", err.Error()))
		return "", false
	}
	if len(passages) == 0 {
		log.Debug("rag: no passage met the relevance threshold",
			slog.Int("top_k", opts.TopK),
			slog.Float64("threshold", float64(*opts.Threshold)),
		)
		return "", false
	}

	body := joinWithin(passages, opts.MaxChars)
	log.Debug("rag: context retrieved",
		slog.Int("passages", len(passages)),
		slog.Float64("top_score", float64(passages[0].Score)),
		slog.Int("chars", utf8.RuneCountInString(body)),
	)
	return Frame(opts.DocumentName, body), true
}

// resolve fills unset option fields from the coordinator defaults.
func (c *Coordinator) resolve(opts Options) Options {
	if opts.TopK <= 0 {
		opts.TopK = c.cfg.TopK
	}
	if opts.Threshold == nil {
		threshold := c.cfg.Threshold
		opts.Threshold = &threshold
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = c.cfg.MaxChars
	}
	return opts
}

// joinWithin joins passage texts with Separator and caps the result at
// budget runes. The passage that crosses the budget is truncated and the
// rest are dropped.
func joinWithin(passages []Passage, budget int) string {
	var sb strings.Builder
	used := 0
	for i, p := range passages {
		if i > 0 {
			sepLen := utf8.RuneCountInString(Separator)
			if used+sepLen >= budget {
				break
			}
			sb.WriteString(Separator)
			used += sepLen
		}
		remaining := budget - used
		if n := utf8.RuneCountInString(p.Text); n > remaining {
			sb.WriteString(string([]rune(p.Text)[:remaining]))
			break
		}
		sb.WriteString(p.Text)
		used += utf8.RuneCountInString(p.Text)
	}
	return sb.String()
}

// Frame wraps a context body with the instructions the model sees.
func Frame(documentName, body string) string {
	if documentName == "" {
		documentName = "document"
	}
	return fmt.Sprintf("Use the following context from the uploaded document \"%s\" to answer the user's question. "+
		"If the context is not relevant, answer from your own knowledge.\n\n<context>\n%s\n</context>",
		documentName, body)
}

// AugmentSystemPrompt prepends framed context to the base instruction. An
// empty context returns base unchanged.
func AugmentSystemPrompt(base, framed string) string {
	switch {
	case framed == "":
		return base
	case base == "":
		return framed
	default:
		return framed + "\n\n" + base
	}
}
