// Package openai adapts the OpenAI chat completions API to C6's uniform
// provider interface.
package openai

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	tiktoken "github.com/pkoukk/tiktoken-go"
	sdk "github.com/sashabaranov/go-openai"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/llm"
)

// Config configures the adapter.
type Config struct {
	APIKey  string
	BaseURL string // optional, for Azure/compatible endpoints
	Enabled bool
	Models  []string // static model list; the public API has no list-models endpoint suitable here
}

// Adapter implements llm.Adapter over the OpenAI API.
type Adapter struct {
	client  *sdk.Client
	cfg     Config
	encoder *tiktoken.Tiktoken
	logger  hclog.Logger
}

// New constructs an OpenAI adapter. The client is nil (and the adapter
// disabled) if no API key is configured.
func New(cfg Config, logger hclog.Logger) *Adapter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	a := &Adapter{cfg: cfg, logger: logger.Named("llm.openai")}
	if cfg.APIKey == "" {
		return a
	}

	sdkCfg := sdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkCfg.BaseURL = cfg.BaseURL
	}
	a.client = sdk.NewClientWithConfig(sdkCfg)

	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("failed to load tiktoken encoding, falling back to estimator", "error", err)
	} else {
		a.encoder = enc
	}
	return a
}

func (a *Adapter) ProviderName() string         { return "openai" }
func (a *Adapter) ProviderType() llm.ProviderType { return llm.ProviderTypeAPI }
func (a *Adapter) IsEnabled() bool              { return a.cfg.Enabled && a.client != nil }

func (a *Adapter) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	names := a.cfg.Models
	if len(names) == 0 {
		names = []string{"gpt-4o", "gpt-4-turbo", "gpt-3.5-turbo"}
	}
	out := make([]llm.ModelDescriptor, 0, len(names))
	for _, n := range names {
		out = append(out, llm.ModelDescriptor{
			Name: n, Provider: a.ProviderName(), Type: llm.ProviderTypeAPI,
			Capabilities: []string{"tools", "streaming"},
		})
	}
	return out, nil
}

func (a *Adapter) Chat(ctx context.Context, model string, messages []llm.Message, params llm.Params) (*llm.ChatResult, error) {
	if !a.IsEnabled() {
		return nil, gatewayerr.NewProviderDisabled(a.ProviderName())
	}
	req := sdk.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	applyParams(&req, params)

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}
	if len(resp.Choices) == 0 {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), fmt.Errorf("empty choices"))
	}
	return &llm.ChatResult{
		Text: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}, nil
}

func (a *Adapter) ChatStream(ctx context.Context, model string, messages []llm.Message, params llm.Params) (<-chan llm.StreamChunk, error) {
	if !a.IsEnabled() {
		return nil, gatewayerr.NewProviderDisabled(a.ProviderName())
	}
	req := sdk.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
	}
	applyParams(&req, params)

	stream, err := a.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err == io.EOF {
				out <- llm.StreamChunk{Done: true}
				return
			}
			if err != nil {
				out <- llm.StreamChunk{Err: gatewayerr.NewProviderUnavailable(a.ProviderName(), err), Done: true}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if delta := resp.Choices[0].Delta.Content; delta != "" {
				out <- llm.StreamChunk{Text: delta}
			}
		}
	}()
	return out, nil
}

func (a *Adapter) CountTokens(text, model string) (int, error) {
	if a.encoder != nil {
		return len(a.encoder.Encode(text, nil, nil)), nil
	}
	return llm.EstimateTokens(text), nil
}

func (a *Adapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	if !a.IsEnabled() {
		return llm.HealthStatus{Healthy: false, Detail: "disabled"}
	}
	if _, err := a.client.ListModels(ctx); err != nil {
		return llm.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	return llm.HealthStatus{Healthy: true}
}

func toOpenAIMessages(messages []llm.Message) []sdk.ChatCompletionMessage {
	out := make([]sdk.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, sdk.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func applyParams(req *sdk.ChatCompletionRequest, params llm.Params) {
	if params.Temperature > 0 {
		req.Temperature = float32(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = params.MaxTokens
	}
	if len(params.Tools) > 0 {
		tools := make([]sdk.Tool, 0, len(params.Tools))
		for _, t := range params.Tools {
			fn, _ := t["function"].(map[string]any)
			tools = append(tools, sdk.Tool{
				Type: sdk.ToolTypeFunction,
				Function: &sdk.FunctionDefinition{
					Name:        fmt.Sprint(fn["name"]),
					Description: fmt.Sprint(fn["description"]),
					Parameters:  fn["parameters"],
				},
			})
		}
		req.Tools = tools
	}
}
