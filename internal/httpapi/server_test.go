package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/mcp"
	"github.com/ragchat/gateway/internal/orchestrator"
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
	ch := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(ch)
		ch <- llm.StreamChunk{Text: "hi"}
		ch <- llm.StreamChunk{Done: true, Usage: &llm.Usage{OutputTokens: 1}}
	}()
	return ch, nil
}

func (fakeAdapter) CountTokens(text, model string) (int, error) { return llm.EstimateTokens(text), nil }

func (fakeAdapter) HealthCheck(ctx context.Context) llm.HealthStatus {
	return llm.HealthStatus{Healthy: true}
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, "sqlite3", nil)
	require.NoError(t, err)

	models := llm.NewRegistry(nil)
	require.NoError(t, models.Register("fake", fakeAdapter{}))
	require.NoError(t, models.Refresh(ctx))

	mcpClient := mcp.NewClient(mcp.NewTransport(nil), mcp.NewRegistry(), mcp.NewApprovalService(st), nil)
	sessions := sessionstore.NewMemoryStore()
	orch := orchestrator.New(st, sessions, models, mcpClient, orchestrator.Config{}, nil)

	srv := New(Config{}, nil, nil, st, models, mcpClient, orch, nil)
	return srv, st
}

func TestServer_HealthAndConversationLifecycle(t *testing.T) {
	srv, st := newTestServer(t)
	handler := srv.router()
	ctx := context.Background()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := json.Marshal(createConversationRequest{Title: "T1", ModelName: "fake-model"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/conversations/", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created conversationDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/conversations/"+created.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	user, err := st.GetUserByExternalID(ctx, store.DemoUserExternalID)
	require.NoError(t, err)
	require.NotNil(t, user)
}

func TestServer_PrepareAndConsumeStream(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.router()

	body, _ := json.Marshal(createConversationRequest{Title: "T1", ModelName: "fake-model"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/conversations/", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	var conv conversationDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))

	prepBody, _ := json.Marshal(prepareRequest{Message: "hi", Model: "fake-model"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/conversations/"+conv.ID+"/prepare-stream", bytes.NewReader(prepBody)))
	require.Equal(t, http.StatusOK, rec.Code)
	var prep prepareResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prep))
	require.NotEmpty(t, prep.StreamToken)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream/"+prep.StreamToken, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rec.Body)
	var events []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			events = append(events, strings.TrimPrefix(line, "data: "))
		}
	}
	require.NotEmpty(t, events)
	require.Contains(t, events[len(events)-1], `"done"`)
}

func TestServer_DirectChat(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.router()

	body, _ := json.Marshal(directChatRequest{Model: "fake-model", Message: "hi"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/chat/direct", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp directChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "hello", resp.Text)
}

func TestServer_UnknownConversationNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.router()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chat/conversations/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
