package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseBytes caps an embeddings reply. A batch of 64 vectors of 4096
// floats in JSON stays well below it.
const maxResponseBytes = 64 << 20

// apiReply is a decoded response body that may carry a backend error.
type apiReply interface {
	errorMessage() string
}

// postJSON sends body as JSON to url and decodes a 2xx reply into out. A
// non-2xx reply is reported with the backend's error message when the body
// carries one, otherwise with the start of the raw body.
func postJSON(ctx context.Context, client *http.Client, url string, header http.Header, body any, out apiReply) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	decodeErr := json.Unmarshal(raw, out)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && out.errorMessage() != "" {
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, out.errorMessage())
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet(raw))
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	return nil
}

// snippet returns the first line of a response body, shortened for logs.
func snippet(raw []byte) string {
	s, _, _ := strings.Cut(strings.TrimSpace(string(raw)), "\n")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	if s == "" {
		return "empty body"
	}
	return s
}
