package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HealthCheckConfig probes a backend without generating tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}

// httpCheck is a GET against a listing endpoint that needs the same
// credentials as chat completions.
type httpCheck struct {
	url    string
	header http.Header
	client *http.Client
}

// HealthCheck returns nil on a 2xx response.
func (h *httpCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("provider: build health request: %w", err)
	}
	for k, v := range h.header {
		req.Header[k] = v
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider: health request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck returns a zero-cost probe for the selected backend, or nil
// when the backend has no listing endpoint to probe.
func (c *Config) HealthCheck() HealthCheckConfig {
	client := &http.Client{Timeout: 10 * time.Second}
	bearer := func(key string) http.Header {
		return http.Header{"Authorization": {"Bearer " + key}}
	}
	switch c.Backend {
	case BackendOllama:
		return &httpCheck{url: strings.TrimRight(c.Ollama.Host, "/") + "/api/tags", client: client}
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpCheck{url: strings.TrimRight(base, "/") + "/models", header: bearer(c.OpenAI.APIKey), client: client}
	case BackendNIM:
		return &httpCheck{url: strings.TrimRight(c.NIM.BaseURL, "/") + "/models", header: bearer(c.NIM.APIKey), client: client}
	case BackendAzure:
		az := c.AzureOpenAI
		return &httpCheck{
			url:    strings.TrimRight(az.Endpoint, "/") + "/openai/models?api-version=" + az.APIVersion,
			header: http.Header{"Api-Key": {az.APIKey}},
			client: client,
		}
	}
	return nil
}
