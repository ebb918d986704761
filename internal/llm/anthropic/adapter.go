// Package anthropic adapts Anthropic's Messages API to C6's uniform
// provider interface.
package anthropic

import (
	"context"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/hashicorp/go-hclog"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/llm"
)

// Config configures the adapter.
type Config struct {
	APIKey  string
	Enabled bool
	Models  []string
}

// Adapter implements llm.Adapter over Anthropic's Messages API.
type Adapter struct {
	client  *sdk.Client
	cfg     Config
	enabled bool
	logger  hclog.Logger
}

// New constructs an Anthropic adapter.
func New(cfg Config, logger hclog.Logger) *Adapter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	a := &Adapter{cfg: cfg, logger: logger.Named("llm.anthropic")}
	if cfg.APIKey == "" {
		return a
	}
	client := sdk.NewClient(option.WithAPIKey(cfg.APIKey))
	a.client = &client
	a.enabled = cfg.Enabled
	return a
}

func (a *Adapter) ProviderName() string           { return "anthropic" }
func (a *Adapter) ProviderType() llm.ProviderType { return llm.ProviderTypeAPI }
func (a *Adapter) IsEnabled() bool                { return a.enabled && a.client != nil }

func (a *Adapter) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	names := a.cfg.Models
	if len(names) == 0 {
		names = []string{"claude-sonnet-4-20250514", "claude-opus-4-20250514", "claude-3-5-haiku-20241022"}
	}
	out := make([]llm.ModelDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, llm.ModelDescriptor{
			Name: n, Provider: a.ProviderName(), Type: llm.ProviderTypeAPI,
			Capabilities:    []string{"tools", "streaming", "thinking"},
			TokenizerNotice: "count_tokens uses the character-based fallback estimator",
		})
	}
	return out, nil
}

func (a *Adapter) Chat(ctx context.Context, model string, messages []llm.Message, params llm.Params) (*llm.ChatResult, error) {
	if !a.IsEnabled() {
		return nil, gatewayerr.NewProviderDisabled(a.ProviderName())
	}
	req := toMessageParams(model, messages, params)
	resp, err := a.client.Messages.New(ctx, req)
	if err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return &llm.ChatResult{
		Text: text,
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
			TotalTokens:  int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

func (a *Adapter) ChatStream(ctx context.Context, model string, messages []llm.Message, params llm.Params) (<-chan llm.StreamChunk, error) {
	if !a.IsEnabled() {
		return nil, gatewayerr.NewProviderDisabled(a.ProviderName())
	}
	req := toMessageParams(model, messages, params)
	stream := a.client.Messages.NewStreaming(ctx, req)

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		var inputTokens, outputTokens int64

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				ms := event.AsMessageStart()
				inputTokens = ms.Message.Usage.InputTokens
			case "content_block_delta":
				delta := event.AsContentBlockDelta()
				if delta.Delta.Type == "text_delta" {
					out <- llm.StreamChunk{Text: delta.Delta.Text}
				}
			case "message_delta":
				md := event.AsMessageDelta()
				outputTokens = md.Usage.OutputTokens
			}
		}
		if err := stream.Err(); err != nil {
			out <- llm.StreamChunk{Err: gatewayerr.NewProviderUnavailable(a.ProviderName(), err), Done: true}
			return
		}
		out <- llm.StreamChunk{
			Done: true,
			Usage: &llm.Usage{
				InputTokens:  int(inputTokens),
				OutputTokens: int(outputTokens),
				TotalTokens:  int(inputTokens + outputTokens),
			},
		}
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
	_, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model("claude-3-5-haiku-20241022"),
		MaxTokens: 1,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock("ping"))},
	})
	if err != nil {
		return llm.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	return llm.HealthStatus{Healthy: true}
}

func toMessageParams(model string, messages []llm.Message, params llm.Params) sdk.MessageNewParams {
	req := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: 1024,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = int64(params.MaxTokens)
	}
	if params.Temperature > 0 {
		req.Temperature = sdk.Float(params.Temperature)
	}

	for _, m := range messages {
		if m.Role == "system" {
			req.System = []sdk.TextBlockParam{{Text: m.Content}}
			continue
		}
		block := sdk.NewTextBlock(m.Content)
		if m.Role == "assistant" {
			req.Messages = append(req.Messages, sdk.NewAssistantMessage(block))
		} else {
			req.Messages = append(req.Messages, sdk.NewUserMessage(block))
		}
	}
	return req
}
