package mcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newMCPTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var result any
		switch req.Method {
		case "tools/list":
			result = map[string]any{
				"tools": []map[string]any{
					{
						"name":        "echo",
						"description": "echoes its input back to the caller",
						"inputSchema": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"text": map[string]any{"type": "string"},
							},
						},
					},
				},
			}
		case "tools/call":
			result = map[string]any{"ok": true}
		}

		resultJSON, _ := json.Marshal(result)
		resp := Response{JSONRPC: "2.0", ID: req.ID, Result: resultJSON}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestClient_DiscoverAndExecuteAutoApproved(t *testing.T) {
	server := newMCPTestServer(t)
	defer server.Close()

	transport := NewTransport(nil)
	tools := NewRegistry()
	approvals := NewApprovalService(newTestApprovalStore(t))
	client := NewClient(transport, tools, approvals, nil)

	err := client.DiscoverAll(t.Context(), []ServerConfig{{Name: "demo", URL: server.URL, AutoApprove: true}})
	require.NoError(t, err)

	_, ok := tools.Get("demo.echo")
	require.True(t, ok)

	result, err := client.Execute(t.Context(), "demo.echo", map[string]any{"text": "hi"}, CallerContext{UserID: "1"}, time.Minute)
	require.NoError(t, err)
	require.False(t, result.Pending)
	require.Contains(t, result.Result, "ok")
}

func TestClient_ExecuteRequiresApproval(t *testing.T) {
	server := newMCPTestServer(t)
	defer server.Close()

	transport := NewTransport(nil)
	tools := NewRegistry()
	approvals := NewApprovalService(newTestApprovalStore(t))
	client := NewClient(transport, tools, approvals, nil)

	require.NoError(t, client.DiscoverAll(t.Context(), []ServerConfig{{Name: "demo", URL: server.URL}}))

	result, err := client.Execute(t.Context(), "demo.echo", map[string]any{"text": "hi"}, CallerContext{UserID: "1"}, time.Minute)
	require.NoError(t, err)
	require.True(t, result.Pending)
	require.NotEmpty(t, result.ApprovalID)
}

func TestClient_UnknownToolNotFound(t *testing.T) {
	transport := NewTransport(nil)
	tools := NewRegistry()
	approvals := NewApprovalService(newTestApprovalStore(t))
	client := NewClient(transport, tools, approvals, nil)

	_, err := client.Execute(t.Context(), "nope.tool", nil, CallerContext{}, time.Minute)
	require.Error(t, err)
}
