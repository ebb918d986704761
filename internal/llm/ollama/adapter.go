// Package ollama adapts a local Ollama inference server's HTTP/JSON API to
// C6's uniform provider interface.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/transport"
)

// Config configures the adapter.
type Config struct {
	BaseURL string
	Enabled bool
}

// Adapter implements llm.Adapter over Ollama's /api/chat and /api/tags.
type Adapter struct {
	client  *transport.Client
	baseURL string
	cfg     Config
	logger  hclog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
	Error   string      `json:"error"`

	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// New constructs an Ollama adapter against baseURL (default
// http://localhost:11434).
func New(cfg Config, logger hclog.Logger) *Adapter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Adapter{
		client:  transport.New(transport.WithLogger(logger.Named("llm.ollama"))),
		baseURL: baseURL,
		cfg:     cfg,
		logger:  logger.Named("llm.ollama"),
	}
}

func (a *Adapter) ProviderName() string           { return "ollama" }
func (a *Adapter) ProviderType() llm.ProviderType { return llm.ProviderTypeLocal }
func (a *Adapter) IsEnabled() bool                { return a.cfg.Enabled }

func (a *Adapter) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}
	defer resp.Body.Close()

	var parsed tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}

	out := make([]llm.ModelDescriptor, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		out = append(out, llm.ModelDescriptor{
			Name: m.Name, Provider: a.ProviderName(), Type: llm.ProviderTypeLocal,
			TokenizerNotice: "count_tokens uses the character-based fallback estimator",
		})
	}
	return out, nil
}

func (a *Adapter) Chat(ctx context.Context, model string, messages []llm.Message, params llm.Params) (*llm.ChatResult, error) {
	resp, err := a.doChat(ctx, model, messages, params, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}
	if parsed.Error != "" {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), fmt.Errorf("%s", parsed.Error))
	}
	return &llm.ChatResult{
		Text: parsed.Message.Content,
		Usage: llm.Usage{
			InputTokens:  parsed.PromptEvalCount,
			OutputTokens: parsed.EvalCount,
			TotalTokens:  parsed.PromptEvalCount + parsed.EvalCount,
		},
	}, nil
}

func (a *Adapter) ChatStream(ctx context.Context, model string, messages []llm.Message, params llm.Params) (<-chan llm.StreamChunk, error) {
	resp, err := a.doChat(ctx, model, messages, params, true)
	if err != nil {
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var usage llm.Usage
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var parsed chatResponse
			if err := json.Unmarshal([]byte(line), &parsed); err != nil {
				out <- llm.StreamChunk{Err: gatewayerr.NewProviderUnavailable(a.ProviderName(), err), Done: true}
				return
			}
			if parsed.Error != "" {
				out <- llm.StreamChunk{Err: gatewayerr.NewProviderUnavailable(a.ProviderName(), fmt.Errorf("%s", parsed.Error)), Done: true}
				return
			}
			if parsed.Message.Content != "" {
				out <- llm.StreamChunk{Text: parsed.Message.Content}
			}
			if parsed.Done {
				usage = llm.Usage{
					InputTokens:  parsed.PromptEvalCount,
					OutputTokens: parsed.EvalCount,
					TotalTokens:  parsed.PromptEvalCount + parsed.EvalCount,
				}
				break
			}
		}
		out <- llm.StreamChunk{Done: true, Usage: &usage}
	}()
	return out, nil
}

func (a *Adapter) doChat(ctx context.Context, model string, messages []llm.Message, params llm.Params, stream bool) (*http.Response, error) {
	if !a.IsEnabled() {
		return nil, gatewayerr.NewProviderDisabled(a.ProviderName())
	}
	payload := chatRequest{Model: model, Stream: stream}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	if params.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": params.MaxTokens}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, gatewayerr.NewProviderUnavailable(a.ProviderName(), fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))))
	}
	return resp, nil
}

func (a *Adapter) CountTokens(text, model string) (int, error) {
	return llm.EstimateTokens(text), nil
}

func (a *Adapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	if !a.IsEnabled() {
		return llm.HealthStatus{Healthy: false, Detail: "disabled"}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return llm.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return llm.HealthStatus{Healthy: false, Detail: err.Error()}
	}
	resp.Body.Close()
	return llm.HealthStatus{Healthy: resp.StatusCode < 400}
}
