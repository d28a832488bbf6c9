package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg:  Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: DefaultOllamaHost, Model: "qwen3:8b"}},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: DefaultOllamaHost}},
			wantErr: "OLLAMA_MODEL",
		},

		// ── OpenAI ────────────────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg:  Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"}},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "openai/missing model",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test"}},
			wantErr: "OPENAI_MODEL",
		},

		// ── Azure ─────────────────────────────────────────────────────────────
		{
			name: "azure/valid",
			cfg: Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{
				APIKey: "key", Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o", APIVersion: DefaultAzureAPIVersion,
			}},
		},
		{
			name:    "azure/missing api key",
			cfg:     Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{Endpoint: "https://my.openai.azure.com", Deployment: "gpt-4o"}},
			wantErr: "AZURE_OPENAI_API_KEY",
		},
		{
			name:    "azure/missing endpoint",
			cfg:     Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{APIKey: "key", Deployment: "gpt-4o"}},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name:    "azure/missing deployment",
			cfg:     Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{APIKey: "key", Endpoint: "https://my.openai.azure.com"}},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},

		// ── NIM ───────────────────────────────────────────────────────────────
		{
			name: "nim/valid",
			cfg:  Config{Backend: BackendNIM, NIM: ProviderNIM{APIKey: "nvapi-test", Model: DefaultNIMModel, BaseURL: DefaultNIMBaseURL}},
		},
		{
			name:    "nim/missing api key",
			cfg:     Config{Backend: BackendNIM, NIM: ProviderNIM{Model: DefaultNIMModel}},
			wantErr: "NVIDIA_API_KEY",
		},

		// ── Ark ───────────────────────────────────────────────────────────────
		{
			name: "ark/valid",
			cfg:  Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-test", Model: "ep-123"}},
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-test"}},
			wantErr: "ARK_MODEL",
		},

		// ── Gemini ────────────────────────────────────────────────────────────
		{
			name: "gemini/valid",
			cfg:  Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test", Model: DefaultGeminiModel}},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: DefaultGeminiModel}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},

		// ── Shared ────────────────────────────────────────────────────────────
		{
			name: "top_p out of range",
			cfg: Config{Backend: BackendOllama, Ollama: ProviderOllama{Model: "qwen3:8b"},
				Tuning: SharedTuning{TopP: 1.5}},
			wantErr: "MODEL_TOP_P",
		},
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "unknown"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "nim")
	t.Setenv("NVIDIA_API_KEY", "nvapi-test")
	t.Setenv("NIM_MODEL", "")
	t.Setenv("NIM_BASE_URL", "")
	t.Setenv("MODEL_MAX_TOKENS", "1024")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")
	t.Setenv("MODEL_TOP_P", "")
	t.Setenv("MODEL_TIMEOUT", "30s")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendNIM {
		t.Fatalf("Backend = %q, want nim", cfg.Backend)
	}
	if cfg.NIM.Model != DefaultNIMModel || cfg.NIM.BaseURL != DefaultNIMBaseURL {
		t.Errorf("NIM defaults not applied: %+v", cfg.NIM)
	}
	if cfg.ModelName() != DefaultNIMModel {
		t.Errorf("ModelName() = %q", cfg.ModelName())
	}
	want := SharedTuning{MaxTokens: 1024, Temperature: DefaultTemperature, TopP: DefaultTopP, Timeout: 30 * time.Second}
	if cfg.Tuning != want {
		t.Errorf("Tuning = %+v, want %+v", cfg.Tuning, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		{"o1", true},
		{"o3-mini", true},
		{"o4-mini", true},
		{"O1-PREVIEW", true},
		{"codex-mini", true},
		{"gpt-5.2-codex", false},
		{"gpt-4o", false},
		{"gpt-4.1", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			if got := isAzureReasoningModel(tc.deployment); got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestWithoutSampling(t *testing.T) {
	t.Parallel()

	opts := withoutSampling([]model.Option{
		model.WithTemperature(0.7),
		model.WithTopP(0.9),
		model.WithMaxTokens(512),
		model.WithModel("o3-mini"),
	})
	got := model.GetCommonOptions(nil, opts...)
	if got.Temperature != nil || got.TopP != nil {
		t.Errorf("sampling options survived: temperature=%v top_p=%v", got.Temperature, got.TopP)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 512 || got.Model == nil || *got.Model != "o3-mini" {
		t.Errorf("non-sampling options lost: %+v", got)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path == "/v1/models" && gotAuth != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name     string
		cfg      Config
		wantPath string
		wantErr  bool
	}{
		{"ollama tags", Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: srv.URL + "/"}}, "/api/tags", false},
		{"nim models", Config{Backend: BackendNIM, NIM: ProviderNIM{APIKey: "good", BaseURL: srv.URL + "/v1"}}, "/v1/models", false},
		{"bad key", Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "bad", BaseURL: srv.URL + "/v1"}}, "/v1/models", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hc := tc.cfg.HealthCheck()
			if hc == nil {
				t.Fatal("HealthCheck() = nil")
			}
			err := hc.HealthCheck(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tc.wantErr)
			}
			if gotPath != tc.wantPath {
				t.Errorf("path = %q, want %q", gotPath, tc.wantPath)
			}
		})
	}

	if (&Config{Backend: BackendGemini}).HealthCheck() != nil {
		t.Error("gemini should have no zero-cost probe")
	}
}
