package store

// Every table keys its primary and foreign identifiers as VARCHAR ids
// generated client-side with uuid.NewString(), the same way across all
// three supported dialects. This sidesteps driver-specific auto-increment
// reflection entirely (lib/pq in particular never populates
// sql.Result.LastInsertId), so none of the DDL below needs per-dialect
// branching the way store.go's q()/isUniqueViolation() do for queries.

const createUsersSchemaSQL = `
CREATE TABLE IF NOT EXISTS users (
    id VARCHAR(255) PRIMARY KEY,
    external_id VARCHAR(255) NOT NULL,
    email VARCHAR(255),
    username VARCHAR(255),
    display_name VARCHAR(255),
    role VARCHAR(50) NOT NULL DEFAULT 'user',
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createUsersExternalIDIndexSQL = `
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_external_id ON users(external_id)`

const createConversationsSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    id VARCHAR(255) PRIMARY KEY,
    owner_user_id VARCHAR(255) NOT NULL,
    title VARCHAR(500) NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'active',
    model_name VARCHAR(255),
    system_prompt TEXT,
    data_json TEXT,
    total_tokens INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
)`

const createConversationsOwnerIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner_user_id, status, updated_at)`

const createMessagesSchemaSQL = `
CREATE TABLE IF NOT EXISTS messages (
    id VARCHAR(255) PRIMARY KEY,
    conversation_id VARCHAR(255) NOT NULL,
    role VARCHAR(20) NOT NULL,
    content TEXT NOT NULL,
    raw_content TEXT,
    token_count INTEGER NOT NULL DEFAULT 0,
    data_json TEXT,
    created_at TIMESTAMP NOT NULL
)`

const createMessagesConversationIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`

const createApprovalsSchemaSQL = `
CREATE TABLE IF NOT EXISTS approvals (
    id VARCHAR(255) PRIMARY KEY,
    tool_name VARCHAR(255) NOT NULL,
    arguments_json TEXT NOT NULL,
    requesting_user VARCHAR(255) NOT NULL,
    conversation_id VARCHAR(255),
    status VARCHAR(20) NOT NULL DEFAULT 'pending',
    reviewer_id VARCHAR(255),
    reviewed_at TIMESTAMP,
    review_reason TEXT,
    result TEXT,
    execution_error TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    requested_at TIMESTAMP NOT NULL,
    expires_at TIMESTAMP NOT NULL
)`

const createApprovalsStatusIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_approvals_status ON approvals(status, requested_at)`

// schemaStatements are applied idempotently by initSchema, in dependency
// order (referenced tables before their foreign-keying children).
var schemaStatements = []string{
	createUsersSchemaSQL,
	createUsersExternalIDIndexSQL,
	createConversationsSchemaSQL,
	createConversationsOwnerIndexSQL,
	createMessagesSchemaSQL,
	createMessagesConversationIndexSQL,
	createApprovalsSchemaSQL,
	createApprovalsStatusIndexSQL,
}
