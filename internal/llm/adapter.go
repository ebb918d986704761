// Package llm implements C6 (provider adapter) and C7 (model registry): a
// uniform interface over heterogeneous LLM backends and an aggregating
// registry that resolves model names to the provider that serves them.
package llm

import (
	"context"

	"github.com/ragchat/gateway/internal/gatewayerr"
)

// ProviderType distinguishes a locally-hosted inference server from a cloud
// API, surfaced to clients so UIs can label models accordingly.
type ProviderType string

const (
	ProviderTypeLocal ProviderType = "local"
	ProviderTypeAPI   ProviderType = "api"
)

// Message is a single turn in the conversation handed to an adapter.
type Message struct {
	Role    string
	Content string
}

// Params carries sampling and tool configuration for a chat call.
type Params struct {
	Temperature float64
	MaxTokens   int
	Tools       []map[string]any
}

// Usage reports token accounting for a completed chat call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatResult is the outcome of a blocking chat call.
type ChatResult struct {
	Text  string
	Usage Usage
}

// ModelDescriptor describes one model exposed by a provider.
type ModelDescriptor struct {
	Name            string
	Provider        string
	Type            ProviderType
	ContextLength   int
	ParameterSize   string
	CostPerMToken   float64
	Capabilities    []string
	TokenizerNotice string // set when count_tokens uses a fallback estimator
}

// HealthStatus is the result of a single round-trip probe.
type HealthStatus struct {
	Healthy bool
	Detail  string
}

// Adapter is the uniform interface every LLM backend implements (C6).
type Adapter interface {
	ProviderName() string
	ProviderType() ProviderType
	IsEnabled() bool
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
	Chat(ctx context.Context, model string, messages []Message, params Params) (*ChatResult, error)
	ChatStream(ctx context.Context, model string, messages []Message, params Params) (<-chan StreamChunk, error)
	CountTokens(text, model string) (int, error)
	HealthCheck(ctx context.Context) HealthStatus
}

// StreamChunk is one piece of a streaming chat response. The channel is
// closed after the final chunk (Done=true) or after an error chunk.
type StreamChunk struct {
	Text  string
	Done  bool
	Usage *Usage
	Err   error
}

// EstimateTokens is the documented fallback estimator for adapters whose
// provider SDK exposes no local tokenizer: roughly 4 characters per token,
// rounded up.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func wrapProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return gatewayerr.NewProviderUnavailable(provider, err)
}
