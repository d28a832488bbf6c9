package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

// newOllama constructs a chat model backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	return einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: cfg.Ollama.Host,
		Model:   cfg.Ollama.Model,
		Timeout: cfg.Tuning.Timeout,
	})
}

// newOpenAI constructs a chat model backed by the OpenAI API or any
// endpoint that speaks its protocol.
func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	t := cfg.Tuning
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Timeout:     t.Timeout,
		MaxTokens:   &t.MaxTokens,
		Temperature: &t.Temperature,
		TopP:        &t.TopP,
	})
}

// newNIM constructs a chat model backed by an NVIDIA NIM endpoint. NIM
// speaks the OpenAI protocol and streams reasoning in reasoning_content,
// which the openai component surfaces as Message.ReasoningContent.
func newNIM(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	t := cfg.Tuning
	return einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.NIM.Model,
		APIKey:      cfg.NIM.APIKey,
		BaseURL:     cfg.NIM.BaseURL,
		Timeout:     t.Timeout,
		MaxTokens:   &t.MaxTokens,
		Temperature: &t.Temperature,
		TopP:        &t.TopP,
	})
}

// newAzure constructs a chat model backed by Azure OpenAI Service.
// Reasoning deployments (o-series, codex) reject sampling parameters and
// max_tokens, so they get max_completion_tokens and a filter that strips
// per-request sampling options.
func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	az := cfg.AzureOpenAI
	t := cfg.Tuning
	mc := &einoopenai.ChatModelConfig{
		Model:      az.Deployment,
		APIKey:     az.APIKey,
		BaseURL:    az.Endpoint,
		ByAzure:    true,
		APIVersion: az.APIVersion,
		Timeout:    t.Timeout,
		// Use the deployment name as-is: the default mapper strips dots and
		// colons, which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	reasoning := isAzureReasoningModel(az.Deployment)
	if reasoning {
		mc.MaxCompletionTokens = &t.MaxTokens
	} else {
		mc.MaxTokens = &t.MaxTokens
		mc.Temperature = &t.Temperature
		mc.TopP = &t.TopP
	}
	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, err
	}
	if reasoning {
		return samplingFilter{BaseChatModel: m}, nil
	}
	return m, nil
}

// newArk constructs a chat model backed by Volcengine Ark.
func newArk(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	t := cfg.Tuning
	timeout := t.Timeout
	return einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Ark.Model,
		APIKey:      cfg.Ark.APIKey,
		BaseURL:     cfg.Ark.BaseURL,
		Region:      cfg.Ark.Region,
		Timeout:     &timeout,
		MaxTokens:   &t.MaxTokens,
		Temperature: &t.Temperature,
		TopP:        &t.TopP,
	})
}

// newGemini constructs a chat model backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	t := cfg.Tuning
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.Gemini.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: t.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("provider: failed to create Gemini client: %w", err)
	}
	return einogemini.NewChatModel(ctx, &einogemini.Config{
		Client:      client,
		Model:       cfg.Gemini.Model,
		MaxTokens:   &t.MaxTokens,
		Temperature: &t.Temperature,
		TopP:        &t.TopP,
	})
}

// isAzureReasoningModel reports whether an Azure deployment name belongs to
// the o-series or codex families, which only accept default sampling.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}

// samplingFilter drops per-request temperature and top_p, which reasoning
// deployments reject.
type samplingFilter struct {
	model.BaseChatModel
}

func (f samplingFilter) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return f.BaseChatModel.Generate(ctx, input, withoutSampling(opts)...)
}

func (f samplingFilter) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return f.BaseChatModel.Stream(ctx, input, withoutSampling(opts)...)
}

// withoutSampling rebuilds the common options minus temperature and top_p.
func withoutSampling(opts []model.Option) []model.Option {
	o := model.GetCommonOptions(nil, opts...)
	var out []model.Option
	if o.Model != nil {
		out = append(out, model.WithModel(*o.Model))
	}
	if o.MaxTokens != nil {
		out = append(out, model.WithMaxTokens(*o.MaxTokens))
	}
	if len(o.Stop) > 0 {
		out = append(out, model.WithStop(o.Stop))
	}
	return out
}
