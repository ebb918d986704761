package mcp

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ragchat/gateway/internal/store"
)

func newTestApprovalStore(t *testing.T) *store.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, "sqlite3", nil)
	require.NoError(t, err)
	return st
}

func TestApprovalService_RequestDecideWait(t *testing.T) {
	ctx := context.Background()
	s := NewApprovalService(newTestApprovalStore(t))
	id, err := s.Request(ctx, "search.web_search", map[string]any{"q": "go"}, "user-1", "conv-1", time.Minute)
	require.NoError(t, err)

	done := make(chan ApprovalStatus, 1)
	go func() {
		status, err := s.Wait(context.Background(), id, 5*time.Second)
		require.NoError(t, err)
		done <- status
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, s.Decide(ctx, id, "user-2", true, "looks fine"))

	status := <-done
	require.Equal(t, ApprovalApproved, status)
}

func TestApprovalService_DecideTwiceFails(t *testing.T) {
	ctx := context.Background()
	s := NewApprovalService(newTestApprovalStore(t))
	id, err := s.Request(ctx, "t", nil, "user-1", "c", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Decide(ctx, id, "user-1", true, ""))
	require.Error(t, s.Decide(ctx, id, "user-1", false, ""))
}

func TestApprovalService_CheckReflectsExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewApprovalService(newTestApprovalStore(t))
	id, err := s.Request(ctx, "t", nil, "user-1", "c", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	approved, err := s.Check(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, approved)
	require.False(t, *approved)
}

func TestApprovalService_CheckPendingReturnsNil(t *testing.T) {
	ctx := context.Background()
	s := NewApprovalService(newTestApprovalStore(t))
	id, err := s.Request(ctx, "t", nil, "user-1", "c", time.Minute)
	require.NoError(t, err)

	approved, err := s.Check(ctx, id)
	require.NoError(t, err)
	require.Nil(t, approved)
}

func TestApprovalService_WaitCancelledByContext(t *testing.T) {
	ctx := context.Background()
	s := NewApprovalService(newTestApprovalStore(t))
	id, err := s.Request(ctx, "t", nil, "user-1", "c", time.Minute)
	require.NoError(t, err)

	waitCtx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Wait(waitCtx, id, time.Second)
	require.Error(t, err)
}

func TestApprovalService_RecordExecutionMarksExecuted(t *testing.T) {
	ctx := context.Background()
	s := NewApprovalService(newTestApprovalStore(t))
	id, err := s.Request(ctx, "t", nil, "user-1", "c", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Decide(ctx, id, "user-2", true, ""))
	require.NoError(t, s.RecordExecution(ctx, id, "42", "", time.Millisecond))

	a, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, ApprovalExecuted, a.Status)
	require.Equal(t, "42", a.Result)
}
