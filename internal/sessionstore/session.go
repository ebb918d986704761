// Package sessionstore implements C5, the ephemeral keyed storage of
// prepared streaming sessions between the prepare and stream phases of the
// chat orchestrator (C12).
package sessionstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultTTL is the lifetime of a stream session absent an override.
const DefaultTTL = 300 * time.Second

// ToolConfig carries the tool list and auto-approve decision resolved
// during prepare, formatted for the model's provider.
type ToolConfig struct {
	Enabled     bool           `json:"enabled"`
	AutoApprove bool           `json:"auto_approve"`
	Tools       []map[string]any `json:"tools,omitempty"`
}

// Message is the minimal shape the orchestrator needs on the wire between
// prepare and stream; it mirrors store.Message without importing it, since
// sessions are serialized opaquely and must not leak driver-level types.
type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamSession is everything the stream phase needs, computed once during
// prepare so the stream endpoint performs no database writes.
type StreamSession struct {
	Token               string     `json:"token"`
	UserID              string     `json:"user_id"`
	ConversationID      string     `json:"conversation_id"`
	Provider            string     `json:"provider"`
	Model               string     `json:"model"`
	SystemPrompt        string     `json:"system_prompt,omitempty"`
	Messages            []Message  `json:"messages"`
	UserMessageID       string     `json:"user_message_id"`
	AssistantMessageID  string     `json:"assistant_message_id"`
	Temperature         float64    `json:"temperature,omitempty"`
	MaxTokens           int        `json:"max_tokens,omitempty"`
	Tools               ToolConfig `json:"tools"`
	CreatedAt           time.Time  `json:"created_at"`
}

// Store is the C5 contract: create/get/delete over opaque tokens.
type Store interface {
	Create(ctx context.Context, session *StreamSession, ttl time.Duration) (string, error)
	Get(ctx context.Context, token string) (*StreamSession, error)
	Delete(ctx context.Context, token string) error
}

// newToken generates a ≥128-bit token, hex-encoded.
func newToken() (string, error) {
	buf := make([]byte, 18) // 144 bits
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func key(token string) string { return "stream:" + token }

func marshal(s *StreamSession) ([]byte, error) { return json.Marshal(s) }

func unmarshal(data []byte) (*StreamSession, error) {
	var s StreamSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
