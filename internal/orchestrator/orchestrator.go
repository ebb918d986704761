// Package orchestrator implements C12, the two-phase chat orchestrator:
// Prepare performs every durable write (new user message, reserved
// assistant-message id, tool list resolution) and hands back an opaque
// session token; Stream consumes that token exactly once, drives C7's
// streaming chat, detects tool-call markers incrementally, and enqueues
// the assistant message's persistence asynchronously so the stream itself
// never blocks on — or fails because of — a database write.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/mcp"
	"github.com/ragchat/gateway/internal/sessionstore"
	"github.com/ragchat/gateway/internal/store"
)

// Config carries the orchestrator's tunables, sourced from C1 settings.
type Config struct {
	ContextMessageLimit int           // default 20
	DefaultSystemPrompt string
	EnableThinkingMode  bool
	ApprovalTimeout     time.Duration // default 300s
	SessionTTL          time.Duration // default 300s
}

// Orchestrator is C12. It composes C4 (conversation store), C5 (session
// store), C7 (model registry) and C11 (MCP client).
type Orchestrator struct {
	store    *store.Store
	sessions sessionstore.Store
	models   *llm.Registry
	mcp      *mcp.Client
	cfg      Config
	logger   hclog.Logger
}

// New constructs an Orchestrator.
func New(st *store.Store, sessions sessionstore.Store, models *llm.Registry, mcpClient *mcp.Client, cfg Config, logger hclog.Logger) *Orchestrator {
	if cfg.ContextMessageLimit <= 0 {
		cfg.ContextMessageLimit = 20
	}
	if cfg.ApprovalTimeout <= 0 {
		cfg.ApprovalTimeout = 300 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = sessionstore.DefaultTTL
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Orchestrator{store: st, sessions: sessions, models: models, mcp: mcpClient, cfg: cfg, logger: logger}
}

// PrepareInput is the request body of both prepare-stream and
// prepare-mcp-stream, after auth middleware has resolved UserID (C2+C3).
type PrepareInput struct {
	UserID           string
	ConversationID   string
	Message          string
	Model            string
	Temperature      float64
	MaxTokens        int
	ToolsEnabled     bool
	AutoApproveTools bool
}

// PrepareResult is returned to the client so it can open the stream.
type PrepareResult struct {
	StreamToken        string
	StreamURL          string
	UserMessageID      string
	AssistantMessageID string
}

// Prepare implements SPEC_FULL.md §4.12's nine-step prepare phase.
func (o *Orchestrator) Prepare(ctx context.Context, in PrepareInput) (*PrepareResult, error) {
	if in.Message == "" {
		return nil, gatewayerr.NewValidation("message must not be empty")
	}

	conv, err := o.store.GetConversation(ctx, in.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, gatewayerr.NewNotFound("conversation %q", in.ConversationID)
	}
	if conv.OwnerUserID != in.UserID {
		return nil, gatewayerr.NewAuthForbidden("conversation %q is not owned by the caller", in.ConversationID)
	}

	userMsg, err := o.store.AddMessage(ctx, conv.ID, string(store.RoleUser), in.Message, in.Message, llm.EstimateTokens(in.Message))
	if err != nil {
		return nil, err
	}

	history, err := o.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	if len(history) > o.cfg.ContextMessageLimit {
		history = history[len(history)-o.cfg.ContextMessageLimit:]
	}

	if desc, ok := o.models.Describe(in.Model); ok && desc.ContextLength > 0 {
		total := 0
		for _, m := range history {
			total += llm.EstimateTokens(m.Content)
		}
		if total > desc.ContextLength {
			return nil, gatewayerr.NewContextLimit(in.Model, total, desc.ContextLength)
		}
	}

	systemPrompt := conv.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = o.cfg.DefaultSystemPrompt
	}

	messages := make([]sessionstore.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, sessionstore.Message{ID: m.ID, Role: m.Role, Content: m.Content})
	}

	provider := o.models.GetProviderFor(in.Model)
	tools := sessionstore.ToolConfig{Enabled: in.ToolsEnabled, AutoApprove: in.AutoApproveTools}
	if in.ToolsEnabled {
		formatted := make([]map[string]any, 0)
		for _, t := range o.mcp.Tools().List() {
			formatted = append(formatted, mcp.FormatForProvider(t, providerToolStyle(provider)))
		}
		tools.Tools = formatted
	}

	assistantMessageID := uuid.NewString()

	session := &sessionstore.StreamSession{
		UserID:             in.UserID,
		ConversationID:     conv.ID,
		Provider:           provider,
		Model:              in.Model,
		SystemPrompt:       systemPrompt,
		Messages:           messages,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMessageID,
		Temperature:        in.Temperature,
		MaxTokens:          in.MaxTokens,
		Tools:              tools,
		CreatedAt:          time.Now().UTC(),
	}

	token, err := o.sessions.Create(ctx, session, o.cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	return &PrepareResult{
		StreamToken:        token,
		StreamURL:          "/stream/" + token,
		UserMessageID:      userMsg.ID,
		AssistantMessageID: assistantMessageID,
	}, nil
}

// providerToolStyle maps a provider name to the wire-format style
// mcp.FormatForProvider expects. Unknown providers get the generic shape.
func providerToolStyle(provider string) string {
	switch provider {
	case "openai":
		return "openai-style"
	case "anthropic":
		return "anthropic-style"
	case "ollama":
		return "ollama-style"
	default:
		return "generic"
	}
}

// toolCallMarker is the body of a `<tool_call>...</tool_call>` block: a
// JSON object naming the qualified tool and its arguments.
type toolCallMarker struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Stream implements SPEC_FULL.md §4.12's stream phase. The returned
// channel is closed after the `done` event (or an `error` event). Callers
// must drain it even after ctx is cancelled, since the assistant message's
// persistence continues in the background regardless of client disconnect.
func (o *Orchestrator) Stream(ctx context.Context, token string) (<-chan Event, error) {
	session, err := o.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, gatewayerr.NewNotFound("stream session %q", token)
	}

	events := make(chan Event, 16)
	go o.runStream(ctx, token, session, events)
	return events, nil
}

func (o *Orchestrator) runStream(ctx context.Context, token string, session *sessionstore.StreamSession, events chan<- Event) {
	defer close(events)
	defer func() {
		if err := o.sessions.Delete(context.Background(), token); err != nil {
			o.logger.Warn("failed deleting consumed stream session", "token", token, "error", err)
		}
	}()

	truncated := false
	send := func(e Event) {
		if truncated {
			return
		}
		select {
		case events <- e:
		case <-ctx.Done():
			truncated = true
		}
	}

	send(Event{Type: EventStreamStart, ConversationID: session.ConversationID})

	var userMessage *sessionstore.Message
	for i := range session.Messages {
		if session.Messages[i].ID == session.UserMessageID {
			userMessage = &session.Messages[i]
			break
		}
	}
	if userMessage != nil {
		send(Event{Type: EventUserMessage, Message: &MessagePayload{
			ID: userMessage.ID, Role: userMessage.Role, Content: userMessage.Content, CreatedAt: session.CreatedAt,
		}})
	}
	send(Event{Type: EventAssistantMessageStart, MessageID: session.AssistantMessageID})

	llmMessages := make([]llm.Message, 0, len(session.Messages)+1)
	if session.SystemPrompt != "" {
		llmMessages = append(llmMessages, llm.Message{Role: "system", Content: session.SystemPrompt})
	}
	for _, m := range session.Messages {
		llmMessages = append(llmMessages, llm.Message{Role: m.Role, Content: m.Content})
	}

	params := llm.Params{Temperature: session.Temperature, MaxTokens: session.MaxTokens}
	if session.Tools.Enabled {
		params.Tools = session.Tools.Tools
	}

	chunks, err := o.models.ChatStream(ctx, session.Model, llmMessages, params)
	if err != nil {
		send(Event{Type: EventError, ErrorMessage: err.Error()})
		return
	}

	aggregator := NewAggregator(o.cfg.EnableThinkingMode)
	var usage *llm.Usage

	for chunk := range chunks {
		if chunk.Err != nil {
			send(Event{Type: EventError, ErrorMessage: chunk.Err.Error()})
			if ctx.Err() == nil {
				truncated = true
			}
			continue
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Text != "" {
			send(Event{Type: EventContentChunk, MessageID: session.AssistantMessageID, Content: chunk.Text})
		}

		for _, body := range aggregator.ProcessTextDelta(chunk.Text) {
			send(Event{Type: EventToolCallDetected, ToolCall: body})
			o.handleToolCall(ctx, session, body, send)
		}
	}

	result := aggregator.Close()

	tokenCount := llm.EstimateTokens(result.VisibleText)
	if usage != nil && usage.OutputTokens > 0 {
		tokenCount = usage.OutputTokens
	}

	completedAt := time.Now().UTC()
	send(Event{Type: EventAssistantMessageComplete, Message: &MessagePayload{
		ID: session.AssistantMessageID, Role: string(store.RoleAssistant), Content: result.VisibleText,
		TokenCount: tokenCount, CreatedAt: completedAt,
	}})
	send(Event{Type: EventDone})

	go o.persistAssistantMessage(session, result, tokenCount, truncated)
}

// handleToolCall parses a completed `<tool_call>` body and either executes
// it immediately (auto-approve) or leaves it pending for out-of-band
// resolution via the MCP approvals API, per SPEC_FULL.md §4.11.
func (o *Orchestrator) handleToolCall(ctx context.Context, session *sessionstore.StreamSession, body string, send func(Event)) {
	var marker toolCallMarker
	if err := json.Unmarshal([]byte(body), &marker); err != nil {
		send(Event{Type: EventError, ErrorMessage: fmt.Sprintf("malformed tool call marker: %v", err)})
		return
	}

	caller := mcp.CallerContext{
		UserID:         session.UserID,
		ConversationID: session.ConversationID,
		AutoApprove:    session.Tools.AutoApprove,
	}

	if session.Tools.AutoApprove {
		send(Event{Type: EventToolExecuting, ToolName: marker.Name})
		result, err := o.mcp.Execute(ctx, marker.Name, marker.Arguments, caller, o.cfg.ApprovalTimeout)
		if err != nil {
			send(Event{Type: EventError, ErrorMessage: err.Error()})
			return
		}
		send(Event{Type: EventToolResult, Result: result.Result})
		return
	}

	send(Event{Type: EventToolApprovalRequired, ToolName: marker.Name})
	if _, err := o.mcp.Execute(ctx, marker.Name, marker.Arguments, caller, o.cfg.ApprovalTimeout); err != nil {
		o.logger.Warn("failed recording pending tool approval", "tool", marker.Name, "error", err)
	}
}

// persistAssistantMessage is the asynchronous persistence job of step 6:
// the stream endpoint itself never writes to the conversation store.
func (o *Orchestrator) persistAssistantMessage(session *sessionstore.StreamSession, result *Result, tokenCount int, truncated bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rawContent := result.RawText
	if result.ThinkingText != "" {
		rawContent = "<thinking>" + result.ThinkingText + "</thinking>" + rawContent
	}

	if _, err := o.store.AddMessage(ctx, session.ConversationID, string(store.RoleAssistant), result.VisibleText, rawContent, tokenCount); err != nil {
		o.logger.Error("failed persisting assistant message", "conversation_id", session.ConversationID, "error", err)
		return
	}
	if truncated {
		o.logger.Warn("assistant message persisted after client disconnect", "conversation_id", session.ConversationID)
	}
}
