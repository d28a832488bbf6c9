package embedder

import (
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If EMBEDDING_MODEL matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"kimi",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model. Names that
// mention "embed" are never flagged (qwen3-embedding, nv-embedqa).
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check on the embedding environment. It returns
// the same configuration error NewFromEnv would, so operators see it at
// startup rather than on the first upload, and logs a warning when
// EMBEDDING_MODEL looks like a chat model.
func Validate(log *slog.Logger) error {
	if _, err := primaryFromEnv(); err != nil {
		return err
	}

	if getEnv("EMBEDDING_PROVIDER") == "" && getEnv("MODEL_PROVIDER") != "" && getEnv("MODEL_PROVIDER") != "ollama" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, defaulting to ollama",
			slog.String("model_provider", getEnv("MODEL_PROVIDER")),
			slog.String("hint", "set EMBEDDING_PROVIDER=openai (or azure/nim/hash) to embed with another backend"),
		)
	}

	model := getEnv("EMBEDDING_MODEL")
	if model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model; "+
			"retrieval quality will likely be poor",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. qwen3-embedding:0.6b, text-embedding-3-small"),
		)
	}

	return nil
}
