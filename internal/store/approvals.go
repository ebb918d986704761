package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ragchat/gateway/internal/gatewayerr"
)

// CreateApproval records a new pending approval for one tool invocation,
// the durable half of C10's approval gate.
func (s *Store) CreateApproval(ctx context.Context, toolName string, arguments map[string]any, requestingUser, conversationID string, ttl time.Duration) (*Approval, error) {
	argsJSON, err := json.Marshal(arguments)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}

	now := time.Now().UTC()
	a := &Approval{
		ID:             uuid.NewString(),
		ToolName:       toolName,
		Arguments:      arguments,
		RequestingUser: requestingUser,
		ConversationID: conversationID,
		Status:         ApprovalPending,
		RequestedAt:    now,
		ExpiresAt:      now.Add(ttl),
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO approvals (id, tool_name, arguments_json, requesting_user, conversation_id, status, requested_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.ToolName, string(argsJSON), a.RequestingUser, a.ConversationID, string(a.Status), a.RequestedAt, a.ExpiresAt)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return a, nil
}

// GetApproval returns one approval by id, applying lazy expiry: a pending
// approval past its expires_at is flipped to expired on read, the same
// lazy-expiry contract the in-memory predecessor implemented in-process.
// Returns (nil, nil) if no such approval exists.
func (s *Store) GetApproval(ctx context.Context, id string) (*Approval, error) {
	if err := s.expirePendingLocked(ctx, id); err != nil {
		return nil, err
	}
	a, err := s.scanApprovalByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return a, nil
}

// ListPendingApprovals returns every approval still pending, oldest first,
// applying lazy expiry across the whole set before reading.
func (s *Store) ListPendingApprovals(ctx context.Context) ([]*Approval, error) {
	if _, err := s.db.ExecContext(ctx, s.q(`
		UPDATE approvals SET status = 'expired' WHERE status = 'pending' AND expires_at < ?`), time.Now().UTC()); err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, tool_name, arguments_json, requesting_user, conversation_id, status, reviewer_id, reviewed_at,
		       review_reason, result, execution_error, duration_ms, requested_at, expires_at
		FROM approvals WHERE status = 'pending' ORDER BY requested_at ASC`))
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	defer rows.Close()

	var out []*Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, gatewayerr.NewStoreUnavailable(err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	return out, nil
}

// DecideApproval atomically transitions a pending approval to approved or
// rejected. Deciding twice, or after expiry, fails with conflict.
func (s *Store) DecideApproval(ctx context.Context, id, reviewerID string, approved bool, reason string) (*Approval, error) {
	if err := s.expirePendingLocked(ctx, id); err != nil {
		return nil, err
	}

	status := ApprovalRejected
	if approved {
		status = ApprovalApproved
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE approvals SET status = ?, reviewer_id = ?, reviewed_at = ?, review_reason = ?
		WHERE id = ? AND status = 'pending'`), string(status), reviewerID, now, reason, id)
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, gatewayerr.NewStoreUnavailable(err)
	}
	if n == 0 {
		existing, err := s.scanApprovalByID(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gatewayerr.NewNotFound("approval %s not found", id)
		}
		if err != nil {
			return nil, gatewayerr.NewStoreUnavailable(err)
		}
		return nil, gatewayerr.NewConflict("approval %s is no longer pending (status=%s)", id, existing.Status)
	}
	return s.scanApprovalByID(ctx, id)
}

// RecordApprovalExecution writes the outcome of a gated tool call back onto
// the approval row, transitioning it to executed.
func (s *Store) RecordApprovalExecution(ctx context.Context, id, result, execErr string, duration time.Duration) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE approvals SET status = 'executed', result = ?, execution_error = ?, duration_ms = ?
		WHERE id = ?`), result, execErr, duration.Milliseconds(), id)
	if err != nil {
		return gatewayerr.NewStoreUnavailable(err)
	}
	return nil
}

// expirePendingLocked flips a single pending-but-expired approval to
// expired, if it is currently pending and past expires_at.
func (s *Store) expirePendingLocked(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE approvals SET status = 'expired' WHERE id = ? AND status = 'pending' AND expires_at < ?`),
		id, time.Now().UTC())
	if err != nil {
		return gatewayerr.NewStoreUnavailable(err)
	}
	return nil
}

func (s *Store) scanApprovalByID(ctx context.Context, id string) (*Approval, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, tool_name, arguments_json, requesting_user, conversation_id, status, reviewer_id, reviewed_at,
		       review_reason, result, execution_error, duration_ms, requested_at, expires_at
		FROM approvals WHERE id = ?`), id)
	return scanApprovalRow(row)
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanApproval(rows *sql.Rows) (*Approval, error) { return scanApprovalRow(rows) }

func scanApprovalRow(row rowScanner) (*Approval, error) {
	var a Approval
	var argsJSON string
	var conversationID, reviewerID, reviewReason, result, executionError sql.NullString
	var reviewedAt sql.NullTime
	var durationMS int64
	var status string

	if err := row.Scan(&a.ID, &a.ToolName, &argsJSON, &a.RequestingUser, &conversationID, &status, &reviewerID,
		&reviewedAt, &reviewReason, &result, &executionError, &durationMS, &a.RequestedAt, &a.ExpiresAt); err != nil {
		return nil, err
	}

	a.Status = ApprovalStatus(status)
	a.ConversationID = conversationID.String
	a.ReviewerID = reviewerID.String
	a.ReviewReason = reviewReason.String
	a.Result = result.String
	a.ExecutionError = executionError.String
	a.Duration = time.Duration(durationMS) * time.Millisecond
	if reviewedAt.Valid {
		a.ReviewedAt = reviewedAt.Time
	}

	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &a.Arguments); err != nil {
			return nil, err
		}
	}
	return &a, nil
}
