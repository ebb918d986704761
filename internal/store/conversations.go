package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ragchat/gateway/internal/gatewayerr"
)

// CreateConversation creates a new conversation owned by ownerUserID.
// Fails with not_found if the owner does not exist.
func (s *Store) CreateConversation(ctx context.Context, ownerUserID string, title, modelName, systemPrompt string) (*Conversation, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), ownerUserID).Scan(&exists); err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	if !exists {
		return nil, gatewayerr.NewNotFound("owner user %s not found", ownerUserID)
	}

	now := time.Now().UTC()
	conv := &Conversation{
		ID:           uuid.NewString(),
		OwnerUserID:  ownerUserID,
		Title:        title,
		Status:       StatusActive,
		ModelName:    modelName,
		SystemPrompt: systemPrompt,
		Data:         map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := withRetry(ctx, func() error {
		dataJSON, err := json.Marshal(conv.Data)
		if err != nil {
			return err
		}
		_, err = s.db.ExecContext(ctx, s.q(`
			INSERT INTO conversations (id, owner_user_id, title, status, model_name, system_prompt, data_json, total_tokens, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`),
			conv.ID, conv.OwnerUserID, conv.Title, string(conv.Status), conv.ModelName, conv.SystemPrompt, string(dataJSON), conv.CreatedAt, conv.UpdatedAt)
		return err
	})
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return conv, nil
}

// GetConversation fetches a conversation with its messages eagerly loaded in
// creation order. Returns (nil, nil) if no such conversation exists.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	conv, err := s.getConversationRow(ctx, id)
	if err != nil || conv == nil {
		return conv, err
	}
	msgs, err := s.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (s *Store) getConversationRow(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, owner_user_id, title, status, model_name, system_prompt, data_json, total_tokens, created_at, updated_at
		FROM conversations WHERE id = ?`), id)

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return conv, nil
}

// ListByUser returns the caller's non-deleted conversations (unless opts
// overrides Status), newest-updated first.
func (s *Store) ListByUser(ctx context.Context, ownerUserID string, opts ListOptions) ([]*Conversation, error) {
	query := `
		SELECT id, owner_user_id, title, status, model_name, system_prompt, data_json, total_tokens, created_at, updated_at
		FROM conversations WHERE owner_user_id = ?`
	args := []any{ownerUserID}

	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	} else {
		query += ` AND status != ?`
		args = append(args, string(StatusDeleted))
	}
	query += ` ORDER BY updated_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
		if opts.Offset > 0 {
			query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		conv, err := scanConversationRows(rows)
		if err != nil {
			return nil, gatewayerr.NewStoreUnavailable(err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// UpdateConversation replaces the conversation's mutable fields — title,
// status, model, system prompt, and the free-form data bag — per spec
// §4.4's documented update surface. Fails with not_found if the
// conversation does not exist.
func (s *Store) UpdateConversation(ctx context.Context, id string, title, modelName string, status ConversationStatus, systemPrompt string, data map[string]any) (*Conversation, error) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE conversations SET title = ?, model_name = ?, status = ?, system_prompt = ?, data_json = ?, updated_at = ?
		WHERE id = ?`), title, modelName, string(status), systemPrompt, string(dataJSON), now, id)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	if n == 0 {
		return nil, gatewayerr.NewNotFound("conversation %s not found", id)
	}
	return s.getConversationRow(ctx, id)
}

// DeleteConversation removes a conversation. Soft delete (status flip)
// unless hard is true, in which case messages cascade. Returns whether the
// conversation existed.
func (s *Store) DeleteConversation(ctx context.Context, id string, hard bool) (bool, error) {
	if !hard {
		res, err := s.db.ExecContext(ctx, s.q(`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`),
			string(StatusDeleted), time.Now().UTC(), id)
		if err != nil {
			return false, gatewayerr.NewStoreUnavailable(err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, gatewayerr.NewStoreUnavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
		return false, gatewayerr.NewStoreUnavailable(err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return false, gatewayerr.NewStoreUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, gatewayerr.NewStoreUnavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return false, gatewayerr.NewStoreUnavailable(err)
	}
	return n > 0, nil
}

// AddMessage appends a message and atomically bumps the conversation's
// total_tokens and updated_at. Fails with not_found if the conversation does
// not exist.
func (s *Store) AddMessage(ctx context.Context, conversationID, role, content, rawContent string, tokenCount int) (*Message, error) {
	msg := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		RawContent:     rawContent,
		TokenCount:     tokenCount,
		Data:           map[string]any{},
		CreatedAt:      time.Now().UTC(),
	}

	err := withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var exists bool
		if err := tx.QueryRowContext(ctx, s.q(`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ?)`), conversationID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return gatewayerr.NewNotFound("conversation %s not found", conversationID)
		}

		dataJSON, err := json.Marshal(msg.Data)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO messages (id, conversation_id, role, content, raw_content, token_count, data_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.RawContent, msg.TokenCount, string(dataJSON), msg.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q(`
			UPDATE conversations SET total_tokens = total_tokens + ?, updated_at = ? WHERE id = ?`),
			tokenCount, msg.CreatedAt, conversationID); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		var gerr *gatewayerr.Error
		if errors.As(err, &gerr) {
			return nil, gerr
		}
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return msg, nil
}

// ListMessages returns a conversation's messages in creation order.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, conversation_id, role, content, raw_content, token_count, data_json, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC`), conversationID)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		var dataJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.RawContent, &m.TokenCount, &dataJSON, &m.CreatedAt); err != nil {
			return nil, gatewayerr.NewStoreUnavailable(err)
		}
		m.Data = decodeDataJSON(dataJSON)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Search finds conversations owned by ownerUserID whose title or message
// content contains query (case-insensitive), scoped to non-deleted
// conversations.
func (s *Store) Search(ctx context.Context, ownerUserID string, query string, limit int) ([]*Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.QueryContext(ctx, s.q(fmt.Sprintf(`
		SELECT DISTINCT c.id, c.owner_user_id, c.title, c.status, c.model_name, c.system_prompt, c.data_json, c.total_tokens, c.created_at, c.updated_at
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.owner_user_id = ? AND c.status != ?
		AND (LOWER(c.title) LIKE ? OR LOWER(m.content) LIKE ?)
		ORDER BY c.updated_at DESC LIMIT %d`, limit)),
		ownerUserID, string(StatusDeleted), like, like)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		conv, err := scanConversationRows(rows)
		if err != nil {
			return nil, gatewayerr.NewStoreUnavailable(err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var status string
	var dataJSON sql.NullString
	if err := row.Scan(&c.ID, &c.OwnerUserID, &c.Title, &status, &c.ModelName, &c.SystemPrompt, &dataJSON, &c.TotalTokens, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = ConversationStatus(status)
	c.Data = decodeDataJSON(dataJSON)
	return &c, nil
}

func scanConversationRows(rows *sql.Rows) (*Conversation, error) {
	var c Conversation
	var status string
	var dataJSON sql.NullString
	if err := rows.Scan(&c.ID, &c.OwnerUserID, &c.Title, &status, &c.ModelName, &c.SystemPrompt, &dataJSON, &c.TotalTokens, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = ConversationStatus(status)
	c.Data = decodeDataJSON(dataJSON)
	return &c, nil
}

func decodeDataJSON(raw sql.NullString) map[string]any {
	if !raw.Valid || raw.String == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw.String), &m); err != nil {
		return map[string]any{}
	}
	return m
}
