package orchestrator

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/mcp"
	"github.com/ragchat/gateway/internal/sessionstore"
	"github.com/ragchat/gateway/internal/store"
)

type fakeAdapter struct{}

func (fakeAdapter) ProviderName() string          { return "fake" }
func (fakeAdapter) ProviderType() llm.ProviderType { return llm.ProviderTypeAPI }
func (fakeAdapter) IsEnabled() bool                { return true }

func (fakeAdapter) ListModels(ctx context.Context) ([]llm.ModelDescriptor, error) {
	return []llm.ModelDescriptor{{Name: "fake-model", Provider: "fake", Type: llm.ProviderTypeAPI}}, nil
}

func (fakeAdapter) Chat(ctx context.Context, model string, messages []llm.Message, params llm.Params) (*llm.ChatResult, error) {
	return &llm.ChatResult{Text: "hello"}, nil
}

func (fakeAdapter) ChatStream(ctx context.Context, model string, messages []llm.Message, params llm.Params) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 4)
	go func() {
		defer close(ch)
		ch <- llm.StreamChunk{Text: "he"}
		ch <- llm.StreamChunk{Text: "llo"}
		ch <- llm.StreamChunk{Done: true, Usage: &llm.Usage{OutputTokens: 2}}
	}()
	return ch, nil
}

func (fakeAdapter) CountTokens(text, model string) (int, error) { return llm.EstimateTokens(text), nil }

func (fakeAdapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	return llm.HealthStatus{Healthy: true}
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *store.Store, string, string) {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, "sqlite3", nil)
	require.NoError(t, err)

	user, err := st.ResolveUser(ctx, "ext-1", "a@b.com", "alice", "Alice")
	require.NoError(t, err)

	conv, err := st.CreateConversation(ctx, user.ID, "T1", "fake-model", "")
	require.NoError(t, err)

	models := llm.NewRegistry(nil)
	require.NoError(t, models.Register("fake", fakeAdapter{}))
	require.NoError(t, models.Refresh(ctx))

	mcpClient := mcp.NewClient(mcp.NewTransport(nil), mcp.NewRegistry(), mcp.NewApprovalService(st), nil)
	sessions := sessionstore.NewMemoryStore()

	orch := New(st, sessions, models, mcpClient, Config{}, nil)
	return orch, st, user.ID, conv.ID
}

func TestOrchestrator_PrepareAndStream_HappyPath(t *testing.T) {
	orch, st, userID, convID := newTestOrchestrator(t)
	ctx := context.Background()

	prep, err := orch.Prepare(ctx, PrepareInput{UserID: userID, ConversationID: convID, Message: "hi", Model: "fake-model"})
	require.NoError(t, err)
	require.NotEmpty(t, prep.StreamToken)
	require.NotEmpty(t, prep.UserMessageID)
	require.NotEmpty(t, prep.AssistantMessageID)

	events, err := orch.Stream(ctx, prep.StreamToken)
	require.NoError(t, err)

	var seen []EventType
	var contentChunks []string
	var complete *MessagePayload
	for ev := range events {
		seen = append(seen, ev.Type)
		if ev.Type == EventContentChunk {
			contentChunks = append(contentChunks, ev.Content)
		}
		if ev.Type == EventAssistantMessageComplete {
			complete = ev.Message
		}
	}

	require.Equal(t, []EventType{
		EventStreamStart,
		EventUserMessage,
		EventAssistantMessageStart,
		EventContentChunk,
		EventContentChunk,
		EventAssistantMessageComplete,
		EventDone,
	}, seen)
	require.Equal(t, []string{"he", "llo"}, contentChunks)
	require.Equal(t, "hello", complete.Content)

	require.Eventually(t, func() bool {
		conv, err := st.GetConversation(ctx, convID)
		require.NoError(t, err)
		return len(conv.Messages) == 2
	}, time.Second, 10*time.Millisecond)

	conv, err := st.GetConversation(ctx, convID)
	require.NoError(t, err)
	require.Equal(t, "hi", conv.Messages[0].Content)
	require.Equal(t, "hello", conv.Messages[1].Content)
	require.Equal(t, "assistant", conv.Messages[1].Role)
}

func TestOrchestrator_Prepare_UnownedConversationForbidden(t *testing.T) {
	orch, st, _, convID := newTestOrchestrator(t)
	ctx := context.Background()

	other, err := st.ResolveUser(ctx, "ext-2", "c@d.com", "bob", "Bob")
	require.NoError(t, err)

	_, err = orch.Prepare(ctx, PrepareInput{UserID: other.ID, ConversationID: convID, Message: "hi", Model: "fake-model"})
	require.Error(t, err)
}

func TestOrchestrator_Stream_UnknownTokenNotFound(t *testing.T) {
	orch, _, _, _ := newTestOrchestrator(t)
	_, err := orch.Stream(context.Background(), "nope")
	require.Error(t, err)
}
