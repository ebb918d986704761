// Package store implements the durable conversation store (C4) and the
// persistence half of user auto-provisioning (C3), over database/sql with
// dialect-aware query building grounded on the teacher's session store.
package store

import "time"

// User is the gateway's local identity record, keyed by ExternalID (the
// identity-provider's subject claim). Owned by C3. ID is a client-generated
// uuid, not a driver auto-increment value, so creation never depends on
// driver-specific last-insert-id support (absent from lib/pq).
type User struct {
	ID          string
	ExternalID  string
	Email       string
	Username    string
	DisplayName string
	Role        string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ConversationStatus is always returned as one of these plain strings, never
// an enum instance, per invariant 3.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
	StatusDeleted  ConversationStatus = "deleted"
)

// Conversation is a thread of messages owned by one user.
type Conversation struct {
	ID           string
	OwnerUserID  string
	Title        string
	Status       ConversationStatus
	ModelName    string
	SystemPrompt string
	Data         map[string]any
	TotalTokens  int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Messages     []*Message // eagerly loaded by Get; nil from list operations
}

// MessageRole is returned as a plain string, never an enum instance.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool"
)

// Message is one entry in a conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           string // role ∈ {user, assistant, system, tool} as a plain string
	Content        string
	RawContent     string
	TokenCount     int
	Data           map[string]any
	CreatedAt      time.Time
}

// ListOptions bounds ListByUser; ListMessages and Search do not take it.
type ListOptions struct {
	Limit  int
	Offset int
	Status ConversationStatus // empty means "any non-deleted"
}

// ApprovalStatus is the lifecycle state of one Approval, returned as a plain
// string, never an enum instance.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalExpired  ApprovalStatus = "expired"
	ApprovalExecuted ApprovalStatus = "executed"
)

// Approval is a pending or resolved authorisation for one tool invocation,
// durable like the other three entities (§3's User, Conversation, Message).
type Approval struct {
	ID             string
	ToolName       string
	Arguments      map[string]any
	RequestingUser string
	ConversationID string
	Status         ApprovalStatus
	RequestedAt    time.Time
	ExpiresAt      time.Time
	ReviewerID     string
	ReviewedAt     time.Time
	ReviewReason   string
	Result         string
	ExecutionError string
	Duration       time.Duration
}
