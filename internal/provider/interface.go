// Package provider selects and constructs the streaming chat model backend
// at runtime. Supported backends: Ollama, OpenAI, Azure OpenAI, NVIDIA NIM
// (OpenAI-compatible), Volcengine Ark and Google Gemini.
package provider

import (
	"fmt"
	"strings"
	"time"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendNIM selects an NVIDIA NIM OpenAI-compatible endpoint.
	BackendNIM Backend = "nim"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Backends lists every supported backend in display order.
var Backends = []Backend{BackendOllama, BackendOpenAI, BackendAzure, BackendNIM, BackendArk, BackendGemini}

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds OpenAI settings. BaseURL is optional.
type ProviderOpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderNIM holds NVIDIA NIM settings.
type ProviderNIM struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderArk holds Volcengine Ark settings. Model is the endpoint id.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
	Region  string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation settings applied by every backend. The chat
// orchestrator can override them per request.
type SharedTuning struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	// Timeout bounds a single HTTP exchange with the backend.
	Timeout time.Duration
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	NIM         ProviderNIM
	Ark         ProviderArk
	Gemini      ProviderGemini

	Tuning SharedTuning
}

// Validate reports the first missing setting of the selected backend, naming
// the env var that supplies it.
func (c *Config) Validate() error {
	missing := func(key string) error {
		return fmt.Errorf("provider: %s is required for the %s backend", key, c.Backend)
	}
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return missing("OLLAMA_MODEL")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return missing("OPENAI_API_KEY")
		}
		if c.OpenAI.Model == "" {
			return missing("OPENAI_MODEL")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return missing("AZURE_OPENAI_API_KEY")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return missing("AZURE_OPENAI_ENDPOINT")
		}
		if c.AzureOpenAI.Deployment == "" {
			return missing("AZURE_OPENAI_DEPLOYMENT")
		}
	case BackendNIM:
		if c.NIM.APIKey == "" {
			return missing("NVIDIA_API_KEY")
		}
		if c.NIM.Model == "" {
			return missing("NIM_MODEL")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return missing("ARK_API_KEY")
		}
		if c.Ark.Model == "" {
			return missing("ARK_MODEL")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return missing("GOOGLE_API_KEY")
		}
		if c.Gemini.Model == "" {
			return missing("GEMINI_MODEL")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: %s)", c.Backend, backendList())
	}
	if c.Tuning.TopP < 0 || c.Tuning.TopP > 1 {
		return fmt.Errorf("provider: MODEL_TOP_P must be within [0, 1], got %v", c.Tuning.TopP)
	}
	return nil
}

// ModelName returns the model or deployment the selected backend talks to.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendNIM:
		return c.NIM.Model
	case BackendArk:
		return c.Ark.Model
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

func backendList() string {
	names := make([]string, len(Backends))
	for i, b := range Backends {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}
