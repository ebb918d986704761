package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db, "sqlite3", nil)
	require.NoError(t, err)
	return s
}

func TestConvertToPostgresPlaceholders(t *testing.T) {
	require.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", convertToPostgresPlaceholders("SELECT * FROM t WHERE a = ? AND b = ?"))
}

func TestResolveUser_CreatesOnFirstSight(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.ResolveUser(ctx, "kc-sub-1", "a@b.com", "alice", "Alice")
	require.NoError(t, err)
	require.Equal(t, "kc-sub-1", u.ExternalID)
	require.Equal(t, "user", u.Role)
	require.True(t, u.Active)

	again, err := s.ResolveUser(ctx, "kc-sub-1", "a@b.com", "alice", "Alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)
}

func TestCreateConversation_UnknownOwnerFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateConversation(context.Background(), "no-such-user", "t", "gpt-4", "")
	require.Error(t, err)
}

func TestConversationLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.ResolveUser(ctx, "kc-sub-2", "", "bob", "Bob")
	require.NoError(t, err)

	conv, err := s.CreateConversation(ctx, u.ID, "My chat", "gpt-4", "be helpful")
	require.NoError(t, err)
	require.Equal(t, StatusActive, conv.Status)

	msg, err := s.AddMessage(ctx, conv.ID, "user", "hello", "hello", 3)
	require.NoError(t, err)
	require.Equal(t, "user", msg.Role)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	require.Equal(t, 3, got.TotalTokens)

	list, err := s.ListByUser(ctx, u.ID, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	updated, err := s.UpdateConversation(ctx, conv.ID, "renamed", "gpt-4", StatusArchived, "be terse", nil)
	require.NoError(t, err)
	require.Equal(t, StatusArchived, updated.Status)
	require.Equal(t, "renamed", updated.Title)

	existed, err := s.DeleteConversation(ctx, conv.ID, false)
	require.NoError(t, err)
	require.True(t, existed)

	after, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDeleted, after.Status)
}

func TestGetConversation_MissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	conv, err := s.GetConversation(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, conv)
}

func TestSearch_MatchesTitleAndContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.ResolveUser(ctx, "kc-sub-3", "", "carol", "Carol")
	require.NoError(t, err)

	conv, err := s.CreateConversation(ctx, u.ID, "Kubernetes tips", "gpt-4", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, "user", "how do I scale a deployment", "", 5)
	require.NoError(t, err)

	results, err := s.Search(ctx, u.ID, "kubernetes", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = s.Search(ctx, u.ID, "deployment", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = s.Search(ctx, u.ID, "nonexistent", 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestDeleteConversation_Hard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.ResolveUser(ctx, "kc-sub-4", "", "dave", "Dave")
	require.NoError(t, err)
	conv, err := s.CreateConversation(ctx, u.ID, "t", "gpt-4", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, "user", "hi", "", 1)
	require.NoError(t, err)

	existed, err := s.DeleteConversation(ctx, conv.ID, true)
	require.NoError(t, err)
	require.True(t, existed)

	got, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Nil(t, got)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)
}
