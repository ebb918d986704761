// Package gemini adapts Google's official genai SDK to C6's uniform
// provider interface, grounded directly on the teacher's own gemini model
// integration.
package gemini

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/genai"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/llm"
)

// Config configures the adapter.
type Config struct {
	APIKey  string
	Enabled bool
	Models  []string
}

// Adapter implements llm.Adapter over Gemini's GenerateContent API.
type Adapter struct {
	client  *genai.Client
	cfg     Config
	enabled bool
	logger  hclog.Logger
}

// New constructs a Gemini adapter. Client construction failures disable the
// adapter rather than propagate, so a misconfigured provider doesn't block
// startup of the others.
func New(cfg Config, logger hclog.Logger) *Adapter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	a := &Adapter{cfg: cfg, logger: logger.Named("llm.gemini")}
	if cfg.APIKey == "" {
		return a
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		logger.Warn("failed to create gemini client, adapter disabled", "error", err)
		return a
	}
	a.client = client
	a.enabled = cfg.Enabled
	return a
}

func (a *Adapter) ProviderName() string           { return "gemini" }
func (a *Adapter) ProviderType() llm.ProviderType { return llm.ProviderTypeAPI }
func (a *Adapter) IsEnabled() bool                { return a.enabled && a.client != nil }

func (a *Adapter) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	names := a.cfg.Models
	if len(names) == 0 {
		names = []string{"gemini-2.0-flash", "gemini-2.0-pro"}
	}
	out := make([]llm.ModelDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, llm.ModelDescriptor{
			Name: n, Provider: a.ProviderName(), Type: llm.ProviderTypeAPI,
			Capabilities:    []string{"tools", "streaming"},
			TokenizerNotice: "count_tokens uses the character-based fallback estimator",
		})
	}
	return out, nil
}

func (a *Adapter) Chat(ctx context.Context, model string, messages []llm.Message, params llm.Params) (*llm.ChatResult, error) {
	if !a.IsEnabled() {
		return nil, gatewayerr.NewProviderDisabled(a.ProviderName())
	}
	contents, systemInstruction := toContents(messages)
	config := toConfig(systemInstruction, params)

	resp, err := a.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}

	text, usage := extractText(resp)
	return &llm.ChatResult{Text: text, Usage: usage}, nil
}

func (a *Adapter) ChatStream(ctx context.Context, model string, messages []llm.Message, params llm.Params) (<-chan llm.StreamChunk, error) {
	if !a.IsEnabled() {
		return nil, gatewayerr.NewProviderDisabled(a.ProviderName())
	}
	contents, systemInstruction := toContents(messages)
	config := toConfig(systemInstruction, params)

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		var usage llm.Usage
		for resp, err := range a.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				out <- llm.StreamChunk{Err: gatewayerr.NewProviderUnavailable(a.ProviderName(), err), Done: true}
				return
			}
			text, u := extractText(resp)
			if text != "" {
				out <- llm.StreamChunk{Text: text}
			}
			usage = u
		}
		out <- llm.StreamChunk{Done: true, Usage: &usage}
	}()
	return out, nil
}

func (a *Adapter) CountTokens(text, model string) (int, error) {
	return llm.EstimateTokens(text), nil
}

func (a *Adapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	if !a.IsEnabled() {
		return llm.HealthStatus{Healthy: false, Detail: "disabled"}
	}
	_, err := a.client.Models.GenerateContent(ctx, "gemini-2.0-flash",
		[]*genai.Content{{Parts: []*genai.Part{{Text: "ping"}}}}, nil)
	if err != nil {
		return llm.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	return llm.HealthStatus{Healthy: true}
}

func toContents(messages []llm.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var systemInstruction *genai.Content
	for _, m := range messages {
		if m.Role == "system" {
			systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
			continue
		}
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return contents, systemInstruction
}

func toConfig(systemInstruction *genai.Content, params llm.Params) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{SystemInstruction: systemInstruction}
	if params.Temperature > 0 {
		t := float32(params.Temperature)
		config.Temperature = &t
	}
	if params.MaxTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxTokens)
	}
	return config
}

func extractText(resp *genai.GenerateContentResponse) (string, llm.Usage) {
	var text string
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			text += part.Text
		}
	}
	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage = llm.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return text, usage
}
