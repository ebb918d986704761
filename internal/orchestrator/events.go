package orchestrator

import "time"

// EventType names one of the SSE event kinds from SPEC_FULL.md §6.1's event
// envelope table. C13 frames each Event as a `data: <json>\n\n` line.
type EventType string

const (
	EventStreamStart             EventType = "stream_start"
	EventUserMessage              EventType = "user_message"
	EventAssistantMessageStart    EventType = "assistant_message_start"
	EventContentChunk             EventType = "content_chunk"
	EventToolCallDetected         EventType = "tool_call_detected"
	EventToolApprovalRequired     EventType = "tool_approval_required"
	EventToolExecuting            EventType = "tool_executing"
	EventToolResult               EventType = "tool_result"
	EventAssistantMessageComplete EventType = "assistant_message_complete"
	EventError                    EventType = "error"
	EventDone                     EventType = "done"
)

// MessagePayload is the `message` field carried by user_message and
// assistant_message_complete events.
type MessagePayload struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Event is one SSE event. Only the fields relevant to Type are populated;
// the rest are left zero and omitted by C13's JSON encoding.
type Event struct {
	Type           EventType       `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Message        *MessagePayload `json:"message,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	Content        string          `json:"content,omitempty"`
	ToolCall       string          `json:"tool_call,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	Result         any             `json:"result,omitempty"`
	ErrorMessage   string          `json:"message,omitempty"`
}
