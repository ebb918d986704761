package mcp

import (
	"context"
	"sync"
	"time"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/store"
)

// Approval and ApprovalStatus are aliased from the durable store so every
// caller that already spells mcp.Approval / mcp.ApprovalApproved keeps
// working unchanged now that C10's approvals persist in the store (§6.3)
// rather than in an in-process map.
type Approval = store.Approval
type ApprovalStatus = store.ApprovalStatus

const (
	ApprovalPending  = store.ApprovalPending
	ApprovalApproved = store.ApprovalApproved
	ApprovalRejected = store.ApprovalRejected
	ApprovalExpired  = store.ApprovalExpired
	ApprovalExecuted = store.ApprovalExecuted
)

// decision carries the outcome delivered to a waiter.
type decision struct {
	approved bool
}

// ApprovalService is C10: persists approvals durably in the store and gates
// tool execution on a human decision. `wait` is grounded on an in-process
// channel-per-approval "awaiter", the same pattern as the teacher's
// task.Awaiter — never a tight poll loop. The awaiter channels are a
// latency optimization layered on top of the durable row, which remains the
// source of truth and survives process restarts; a lost channel (restart,
// multi-instance deployment) just falls back to Wait's expiry timer.
type ApprovalService struct {
	store *store.Store

	mu      sync.Mutex
	waiters map[string]chan decision
}

// NewApprovalService constructs a store-backed approval service.
func NewApprovalService(st *store.Store) *ApprovalService {
	return &ApprovalService{
		store:   st,
		waiters: make(map[string]chan decision),
	}
}

// Request records a pending approval and registers its awaiter channel.
func (s *ApprovalService) Request(ctx context.Context, toolName string, args map[string]any, userID, conversationID string, ttl time.Duration) (string, error) {
	a, err := s.store.CreateApproval(ctx, toolName, args, userID, conversationID, ttl)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.waiters[a.ID] = make(chan decision, 1)
	s.mu.Unlock()
	return a.ID, nil
}

// Decide atomically transitions a pending approval to approved or rejected.
// Deciding twice, or after expiry, fails with conflict.
func (s *ApprovalService) Decide(ctx context.Context, approvalID, reviewerID string, approved bool, reason string) error {
	if _, err := s.store.DecideApproval(ctx, approvalID, reviewerID, approved, reason); err != nil {
		return err
	}

	s.mu.Lock()
	ch, hasWaiter := s.waiters[approvalID]
	s.mu.Unlock()

	if hasWaiter {
		select {
		case ch <- decision{approved: approved}:
		default:
		}
	}
	return nil
}

// Get returns one approval by id, for the HTTP surface's approve/execute
// handlers.
func (s *ApprovalService) Get(ctx context.Context, approvalID string) (*Approval, error) {
	a, err := s.store.GetApproval(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, gatewayerr.NewNotFound("approval %s not found", approvalID)
	}
	return a, nil
}

// ListPending returns every approval still in pending status, oldest first,
// for GET /api/mcp/approvals/pending.
func (s *ApprovalService) ListPending(ctx context.Context) ([]*Approval, error) {
	return s.store.ListPendingApprovals(ctx)
}

// Check returns true (approved), false (rejected/expired), or nil (still
// pending). Expiry is enforced lazily on read by the store layer.
func (s *ApprovalService) Check(ctx context.Context, approvalID string) (*bool, error) {
	a, err := s.Get(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case ApprovalApproved, ApprovalExecuted:
		v := true
		return &v, nil
	case ApprovalRejected, ApprovalExpired:
		v := false
		return &v, nil
	default:
		return nil, nil
	}
}

// Wait blocks until the approval is decided, expires, or the context is
// cancelled, whichever happens first.
func (s *ApprovalService) Wait(ctx context.Context, approvalID string, timeout time.Duration) (ApprovalStatus, error) {
	a, err := s.Get(ctx, approvalID)
	if err != nil {
		return "", err
	}
	if a.Status != ApprovalPending {
		return a.Status, nil
	}

	s.mu.Lock()
	ch, hasWaiter := s.waiters[approvalID]
	if !hasWaiter {
		ch = make(chan decision, 1)
		s.waiters[approvalID] = ch
	}
	s.mu.Unlock()

	if timeout <= 0 || time.Until(a.ExpiresAt) < timeout {
		timeout = time.Until(a.ExpiresAt)
	}
	if timeout < 0 {
		timeout = 0
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(timeout):
		final, err := s.Get(ctx, approvalID)
		if err != nil {
			return "", err
		}
		return final.Status, nil
	case d := <-ch:
		if d.approved {
			return ApprovalApproved, nil
		}
		return ApprovalRejected, nil
	}
}

// RecordExecution writes the outcome of a gated call back to the approval.
func (s *ApprovalService) RecordExecution(ctx context.Context, approvalID, result, execErr string, duration time.Duration) error {
	return s.store.RecordApprovalExecution(ctx, approvalID, result, execErr, duration)
}
