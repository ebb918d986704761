// Package mcp implements C8 (JSON-RPC transport to MCP tool servers), C9
// (tool registry), C10 (approval service) and C11 (the client composing
// them), grounded on the teacher's own pkg/tools/mcp.go JSON-RPC client.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/transport"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Transport is C8: a JSON-RPC 2.0 client over HTTP with retry and pooling,
// shared across every MCP server this process talks to.
type Transport struct {
	client  *transport.Client
	nextID  int64
	logger  hclog.Logger
}

// NewTransport constructs a transport backed by one pooled HTTP client.
func NewTransport(logger hclog.Logger) *Transport {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Transport{
		client: transport.New(transport.WithLogger(logger.Named("mcp.transport"))),
		logger: logger.Named("mcp.transport"),
	}
}

// Execute issues one JSON-RPC call against serverURL and returns its
// `result` field, or a tool_error built from the JSON-RPC error object.
func (t *Transport) Execute(ctx context.Context, serverURL, method string, params any, auth string) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	rpcReq := Request{JSONRPC: "2.0", ID: id, Method: method, Params: params}

	body, err := json.Marshal(rpcReq)
	if err != nil {
		return nil, fmt.Errorf("marshal JSON-RPC request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build MCP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if auth != "" {
		httpReq.Header.Set("Authorization", auth)
	}

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, gatewayerr.NewToolUnavailable(serverURL)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 8<<10))
		t.logger.Warn("MCP server returned non-200", "url", serverURL, "status", httpResp.StatusCode, "body", string(respBody))
		return nil, gatewayerr.NewToolUnavailable(serverURL)
	}

	var rpcResp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode MCP response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, gatewayerr.NewToolError(fmt.Sprintf("%d", rpcResp.Error.Code), rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}
