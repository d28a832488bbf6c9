package server

import (
	"context"
	"fmt"

	"github.com/54b3r/docchat-go/internal/provider"
)

// LLMPinger probes the chat backend through its zero-cost HTTP health
// endpoint. Backends without one (ark, gemini) are reported healthy
// without a request, so readiness never spends tokens.
type LLMPinger struct {
	healthCheck provider.HealthCheckConfig
	name        string
}

// NewLLMPinger constructs an LLMPinger. hc may be nil.
func NewLLMPinger(hc provider.HealthCheckConfig, name string) *LLMPinger {
	return &LLMPinger{healthCheck: hc, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping runs the backend health check.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck == nil {
		return nil
	}
	if err := p.healthCheck.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// EmbedderProber is the part of the embedding provider readiness needs.
type EmbedderProber interface {
	Ping(ctx context.Context) error
	ModelName() string
	Degraded() bool
}

// EmbedderPinger probes the active embedding model. A degraded provider is
// still ready: it answers with the fallback model.
type EmbedderPinger struct {
	emb EmbedderProber
}

// NewEmbedderPinger constructs an EmbedderPinger.
func NewEmbedderPinger(emb EmbedderProber) *EmbedderPinger {
	return &EmbedderPinger{emb: emb}
}

// Name returns "embedder".
func (p *EmbedderPinger) Name() string { return "embedder" }

// Ping embeds a probe string with the active model.
func (p *EmbedderPinger) Ping(ctx context.Context) error {
	if err := p.emb.Ping(ctx); err != nil {
		return fmt.Errorf("embedding model %s: %w", p.emb.ModelName(), err)
	}
	return nil
}
