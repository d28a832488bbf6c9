package embedder

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// These tests mutate the environment and cannot run in parallel.

func TestNewFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantModel string
		wantErr   string
	}{
		{
			name:      "default ollama qwen",
			env:       map[string]string{},
			wantModel: defaultOllamaModel,
		},
		{
			name:      "hash only",
			env:       map[string]string{"EMBEDDING_PROVIDER": "hash"},
			wantModel: "hash-384",
		},
		{
			name:      "hash custom dimension",
			env:       map[string]string{"EMBEDDING_PROVIDER": "hash", "EMBEDDING_FALLBACK_DIMENSIONS": "128"},
			wantModel: "hash-128",
		},
		{
			name:    "openai without key",
			env:     map[string]string{"EMBEDDING_PROVIDER": "openai"},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:      "openai with key",
			env:       map[string]string{"EMBEDDING_PROVIDER": "openai", "OPENAI_API_KEY": "sk"},
			wantModel: defaultOpenAIModel,
		},
		{
			name:    "azure without endpoint",
			env:     map[string]string{"EMBEDDING_PROVIDER": "azure", "AZURE_OPENAI_API_KEY": "k"},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name:      "nim with key",
			env:       map[string]string{"EMBEDDING_PROVIDER": "nim", "NVIDIA_API_KEY": "nv"},
			wantModel: defaultNIMModel,
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"EMBEDDING_PROVIDER": "cohere"},
			wantErr: "unknown backend",
		},
		{
			name:    "bad probe timeout",
			env:     map[string]string{"EMBEDDING_PROVIDER": "hash", "EMBEDDING_PROBE_TIMEOUT": "soon"},
			wantErr: "EMBEDDING_PROBE_TIMEOUT",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{
				"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_ENDPOINT",
				"EMBEDDING_DIMENSIONS", "EMBEDDING_FALLBACK_DIMENSIONS", "EMBEDDING_PROBE_TIMEOUT",
				"OPENAI_API_KEY", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "NVIDIA_API_KEY",
			} {
				t.Setenv(k, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			p, err := NewFromEnv(discardLogger())
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewFromEnv: %v", err)
			}
			if got := p.ModelName(); got != tc.wantModel {
				t.Errorf("ModelName() = %q, want %q", got, tc.wantModel)
			}
		})
	}
}

func TestNewFromEnv_QwenGetsQueryInstruction(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "")

	p, err := NewFromEnv(discardLogger())
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if p.queryInstruction != QwenQueryInstruction {
		t.Errorf("queryInstruction = %q, want qwen instruction", p.queryInstruction)
	}

	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")
	p, _ = NewFromEnv(discardLogger())
	if p.queryInstruction != "" {
		t.Errorf("queryInstruction = %q, want none for non-qwen model", p.queryInstruction)
	}
}

func TestValidate_WarnsOnChatModel(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "llama3.1:8b")

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	if err := Validate(log); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !strings.Contains(buf.String(), "looks like a chat model") {
		t.Errorf("expected chat-model warning, got %q", buf.String())
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model string
		want  bool
	}{
		{"qwen3-embedding:0.6b", false},
		{"nvidia/nv-embedqa-e5-v5", false},
		{"text-embedding-3-small", false},
		{"qwen2.5:7b", true},
		{"gpt-4o", true},
		{"moonshotai/kimi-k2.5", true},
	}
	for _, tc := range tests {
		if got := looksLikeChatModel(tc.model); got != tc.want {
			t.Errorf("looksLikeChatModel(%q) = %v, want %v", tc.model, got, tc.want)
		}
	}
}
