package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "qwen3-embedding:0.6b"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultNIMModel    = "nvidia/nv-embedqa-e5-v5"

	// defaultOllamaDimensions is the output dimension of qwen3-embedding:0.6b.
	// Other Ollama models may differ; override with EMBEDDING_DIMENSIONS.
	defaultOllamaDimensions = 1024
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	defaultNIMBaseURL = "https://integrate.api.nvidia.com/v1"
)

// QwenQueryInstruction is the retrieval prompt Qwen3 embedding models expect
// in front of a query.
const QwenQueryInstruction = "Instruct: Given a question, retrieve passages that answer it\nQuery: "

// NewFromEnv constructs a Provider from the environment. The fallback
// HashEmbedder is always present; the primary is chosen by
// EMBEDDING_PROVIDER.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER: ollama (default), openai, azure, nim or hash.
//     hash runs the fallback alone.
//  2. EMBEDDING_MODEL overrides the default model for the backend.
//  3. EMBEDDING_API_KEY overrides the backend's own key variable.
//  4. EMBEDDING_ENDPOINT overrides the backend's own endpoint variable.
//  5. EMBEDDING_DIMENSIONS overrides the expected primary dimension.
//  6. EMBEDDING_FALLBACK_DIMENSIONS sets the fallback dimension (default 384).
//  7. EMBEDDING_QUERY_INSTRUCTION overrides the query prefix. Qwen3 models
//     get QwenQueryInstruction by default, all others none.
func NewFromEnv(log *slog.Logger) (*Provider, error) {
	primary, err := primaryFromEnv()
	if err != nil {
		return nil, err
	}

	fallback := NewHashEmbedder(getEnvInt("EMBEDDING_FALLBACK_DIMENSIONS", DefaultHashDimensions))

	opts := []Option{
		WithLogger(log),
		WithBatchSize(getEnvInt("EMBEDDING_BATCH_SIZE", defaultBatchSize)),
	}
	if v := getEnv("EMBEDDING_PROBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("embedder: EMBEDDING_PROBE_TIMEOUT: %w", err)
		}
		opts = append(opts, WithProbeTimeout(d))
	}
	if primary != nil {
		instruction, ok := os.LookupEnv("EMBEDDING_QUERY_INSTRUCTION")
		if !ok && strings.Contains(strings.ToLower(primary.Name()), "qwen3-embedding") {
			instruction = QwenQueryInstruction
		}
		opts = append(opts, WithQueryInstruction(instruction))
	}

	return NewProvider(primary, fallback, opts...), nil
}

// primaryFromEnv returns nil, nil when the hash backend is selected.
func primaryFromEnv() (Model, error) {
	backend := strings.ToLower(getEnvOrDefault("EMBEDDING_PROVIDER", "ollama"))

	switch backend {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		model := getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		dims := getEnvInt("EMBEDDING_DIMENSIONS", 0)
		if dims == 0 && model == defaultOllamaModel {
			dims = defaultOllamaDimensions
		}
		return NewOllamaEmbedder(&OllamaConfig{
			Host:       strings.TrimRight(host, "/"),
			Model:      model,
			Dimensions: dims,
		}), nil

	case "openai":
		apiKey := firstEnv("EMBEDDING_API_KEY", "OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		baseURL := getEnvOrDefault("EMBEDDING_ENDPOINT", "https://api.openai.com/v1")
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(baseURL, "/"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
		}), nil

	case "azure":
		apiKey := firstEnv("EMBEDDING_API_KEY", "AZURE_OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstEnv("EMBEDDING_ENDPOINT", "AZURE_OPENAI_ENDPOINT")
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(endpoint, "/") + "/openai",
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", defaultOpenAIDimensions),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "nim":
		apiKey := firstEnv("EMBEDDING_API_KEY", "NVIDIA_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: nim requires NVIDIA_API_KEY or EMBEDDING_API_KEY")
		}
		baseURL := getEnvOrDefault("EMBEDDING_ENDPOINT", defaultNIMBaseURL)
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimRight(baseURL, "/"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultNIMModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			InputType:  getEnvOrDefault("EMBEDDING_INPUT_TYPE", "passage"),
		}), nil

	case "hash", "none":
		return nil, nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q: valid values: ollama, openai, azure, nim, hash", backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
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
