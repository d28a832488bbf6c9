// Package embedder turns text into unit-length dense vectors. A Provider pairs
// a remote primary model (Ollama, OpenAI, Azure OpenAI or NVIDIA NIM over
// plain HTTP) with an in-process hashing fallback, and switches to the
// fallback for the life of the process when the primary cannot be reached.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
)

// ErrNoModel is returned when neither the primary nor the fallback model
// could be initialised.
var ErrNoModel = errors.New("embedder: no embedding model available")

// Model is a single embedding backend.
type Model interface {
	// Name identifies the model, e.g. "qwen3-embedding:0.6b".
	Name() string
	// Dimension is the expected vector length, or 0 when only a probe can tell.
	Dimension() int
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const (
	defaultBatchSize    = 64
	defaultProbeTimeout = 30 * time.Second
	queryCacheTTL       = 10 * time.Minute
	queryCacheCleanup   = 20 * time.Minute
)

// Option customises a Provider.
type Option func(*Provider)

// WithLogger sets the logger used for the degrade warning.
func WithLogger(log *slog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithQueryInstruction sets the prefix the primary model receives on queries.
// The fallback never receives it.
func WithQueryInstruction(instruction string) Option {
	return func(p *Provider) { p.queryInstruction = instruction }
}

// WithBatchSize caps the number of texts sent in one Embed call.
func WithBatchSize(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithProbeTimeout bounds the initialisation probe of each model.
func WithProbeTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.probeTimeout = d
		}
	}
}

// active is the model chosen at initialisation together with its probed dimension.
type active struct {
	model   Model
	dim     int
	primary bool
}

// Provider embeds documents and queries with whichever model initialised
// first. It is safe for concurrent use.
type Provider struct {
	primary          Model
	fallback         Model
	log              *slog.Logger
	queryInstruction string
	batchSize        int
	probeTimeout     time.Duration

	once     sync.Once
	initErr  error
	current  atomic.Pointer[active]
	degraded atomic.Bool

	queries *cache.Cache
}

// NewProvider returns a Provider over primary and fallback. Either may be nil,
// but not both. No model is contacted until the first embed call.
func NewProvider(primary, fallback Model, opts ...Option) *Provider {
	p := &Provider{
		primary:      primary,
		fallback:     fallback,
		log:          slog.Default(),
		batchSize:    defaultBatchSize,
		probeTimeout: defaultProbeTimeout,
		queries:      cache.New(queryCacheTTL, queryCacheCleanup),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// init resolves the active model exactly once. The probe ignores the
// caller's cancellation so that one aborted request cannot degrade the
// provider for every later caller.
func (p *Provider) init(ctx context.Context) (*active, error) {
	p.once.Do(func() {
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.probeTimeout)
		defer cancel()

		var primaryErr error
		if p.primary != nil {
			dim, err := probe(probeCtx, p.primary)
			if err == nil {
				p.current.Store(&active{model: p.primary, dim: dim, primary: true})
				return
			}
			primaryErr = err
			p.degraded.Store(true)
			p.log.Warn("embedder: primary model unavailable, switching to fallback",
				slog.String("model", p.primary.Name()),
				slog.String("error", err.Error()),
			)
		}

		if p.fallback == nil {
			p.initErr = fmt.Errorf("%w: %w", ErrNoModel, errors.Join(primaryErr, errors.New("no fallback configured")))
			return
		}
		dim, err := probe(probeCtx, p.fallback)
		if err != nil {
			p.initErr = fmt.Errorf("%w: %w", ErrNoModel, errors.Join(primaryErr, err))
			return
		}
		p.current.Store(&active{model: p.fallback, dim: dim})
	})
	if p.initErr != nil {
		return nil, p.initErr
	}
	return p.current.Load(), nil
}

// probe embeds a fixed string and checks the vector length against the
// model's declared dimension.
func probe(ctx context.Context, m Model) (int, error) {
	vecs, err := m.Embed(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", m.Name(), err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return 0, fmt.Errorf("probe %s: empty embedding", m.Name())
	}
	got := len(vecs[0])
	if want := m.Dimension(); want > 0 && want != got {
		return 0, fmt.Errorf("probe %s: dimension %d, expected %d", m.Name(), got, want)
	}
	return got, nil
}

// EmbedDocuments returns one unit vector per text, in input order.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	a, err := p.init(ctx)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		vecs, err := a.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedQuery returns the unit vector for a search query. Results are cached
// per model and text.
func (p *Provider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	a, err := p.init(ctx)
	if err != nil {
		return nil, err
	}

	key := a.model.Name() + "\x00" + text
	if v, ok := p.queries.Get(key); ok {
		return v.([]float32), nil
	}

	input := text
	if a.primary {
		input = p.queryInstruction + text
	}
	vecs, err := a.embed(ctx, []string{input})
	if err != nil {
		return nil, err
	}
	p.queries.SetDefault(key, vecs[0])
	return vecs[0], nil
}

// Dimension returns the vector length of the active model.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	a, err := p.init(ctx)
	if err != nil {
		return 0, err
	}
	return a.dim, nil
}

// ModelName returns the active model's name, or the configured primary's
// name before initialisation.
func (p *Provider) ModelName() string {
	if a := p.current.Load(); a != nil {
		return a.model.Name()
	}
	if p.primary != nil {
		return p.primary.Name()
	}
	if p.fallback != nil {
		return p.fallback.Name()
	}
	return ""
}

// Degraded reports whether the provider has switched to its fallback.
func (p *Provider) Degraded() bool { return p.degraded.Load() }

// Ping initialises the provider. Readiness probes use it.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.init(ctx)
	return err
}

// embed calls the model and normalises every vector it returns.
func (a *active) embed(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := a.model.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedder: %s: %w", a.model.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder: %s: expected %d embeddings, got %d", a.model.Name(), len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) != a.dim {
			return nil, fmt.Errorf("embedder: %s: embedding %d has dimension %d, expected %d", a.model.Name(), i, len(v), a.dim)
		}
		vecs[i] = normalize(v)
	}
	return vecs, nil
}

// normalize scales v to unit length in place. A zero vector is left as is.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}
