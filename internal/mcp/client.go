package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/ragchat/gateway/internal/gatewayerr"
)

// ServerConfig is one configured MCP server.
type ServerConfig struct {
	Name        string `json:"name"`
	URL         string `json:"base_url"`
	Auth        string `json:"auth_token"`
	AutoApprove bool   `json:"auto_approve"`
}

// CallerContext carries the per-call auto-approve decision, set by server
// configuration or an admin-role heuristic.
type CallerContext struct {
	UserID         string
	ConversationID string
	AutoApprove    bool
}

// ExecuteResult is the outcome of a (possibly approval-gated) tool call.
type ExecuteResult struct {
	ApprovalID string // set when the call required approval
	Pending    bool   // true if execution is gated on an out-of-band decision
	Result     string
}

// Client is C11: composes C8 (transport), C9 (tool registry) and C10
// (approvals) into discovery, dispatch and approval-gated execution.
type Client struct {
	transport *Transport
	tools     *Registry
	approvals *ApprovalService
	servers   map[string]ServerConfig
	logger    hclog.Logger
}

// NewClient wires C8-C10 together.
func NewClient(transport *Transport, tools *Registry, approvals *ApprovalService, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{
		transport: transport,
		tools:     tools,
		approvals: approvals,
		servers:   make(map[string]ServerConfig),
		logger:    logger.Named("mcp.client"),
	}
}

// Tools exposes the underlying tool registry (C9) so callers composing C11
// with the chat orchestrator can list and format tools without reaching
// into the client's internals.
func (c *Client) Tools() *Registry {
	return c.tools
}

// Approvals exposes the underlying approval service (C10) so the HTTP
// surface can list pending approvals and record reviewer decisions without
// reaching into the client's internals.
func (c *Client) Approvals() *ApprovalService {
	return c.approvals
}

// DiscoverAll calls tools/list on every configured server and registers the
// results in the tool registry. One server's failure does not abort
// discovery of the others.
func (c *Client) DiscoverAll(ctx context.Context, servers []ServerConfig) error {
	for _, srv := range servers {
		c.servers[srv.Name] = srv
		if err := c.discoverOne(ctx, srv); err != nil {
			c.logger.Warn("tool discovery failed for server", "server", srv.Name, "error", err)
		}
	}
	return nil
}

func (c *Client) discoverOne(ctx context.Context, srv ServerConfig) error {
	result, err := c.transport.Execute(ctx, srv.URL, "tools/list", map[string]any{}, srv.Auth)
	if err != nil {
		return err
	}

	var parsed struct {
		Tools []struct {
			Name        string         `json:"name"`
			Description string         `json:"description"`
			InputSchema map[string]any `json:"inputSchema"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return err
	}

	tools := make([]Tool, 0, len(parsed.Tools))
	for _, t := range parsed.Tools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	_, err = c.tools.Register(srv.Name, tools)
	return err
}

// Execute runs a tool call, gating on approval unless the caller context
// marks it auto-approved.
func (c *Client) Execute(ctx context.Context, qualifiedName string, arguments map[string]any, caller CallerContext, approvalTTL time.Duration) (*ExecuteResult, error) {
	t, ok := c.tools.Get(qualifiedName)
	if !ok {
		return nil, gatewayerr.NewToolNotFound(qualifiedName)
	}
	srv, ok := c.servers[t.ServerName]
	if !ok {
		return nil, gatewayerr.NewToolUnavailable(qualifiedName)
	}

	autoApprove := caller.AutoApprove || srv.AutoApprove
	if !autoApprove {
		approvalID, err := c.approvals.Request(ctx, qualifiedName, arguments, caller.UserID, caller.ConversationID, approvalTTL)
		if err != nil {
			return nil, err
		}
		return &ExecuteResult{ApprovalID: approvalID, Pending: true}, nil
	}

	return c.executeNow(ctx, srv, t, arguments, "")
}

// ExecuteApproved runs the gated call for an already-approved approval id,
// writing the outcome back to the Approval row.
func (c *Client) ExecuteApproved(ctx context.Context, approvalID string, qualifiedName string, arguments map[string]any) (*ExecuteResult, error) {
	t, ok := c.tools.Get(qualifiedName)
	if !ok {
		return nil, gatewayerr.NewToolNotFound(qualifiedName)
	}
	srv, ok := c.servers[t.ServerName]
	if !ok {
		return nil, gatewayerr.NewToolUnavailable(qualifiedName)
	}
	return c.executeNow(ctx, srv, t, arguments, approvalID)
}

func (c *Client) executeNow(ctx context.Context, srv ServerConfig, t *Tool, arguments map[string]any, approvalID string) (*ExecuteResult, error) {
	start := time.Now()
	result, err := c.transport.Execute(ctx, srv.URL, "tools/call", map[string]any{
		"name":      t.Name,
		"arguments": arguments,
	}, srv.Auth)
	duration := time.Since(start)

	if approvalID != "" {
		execErr := ""
		if err != nil {
			execErr = err.Error()
		}
		if recErr := c.approvals.RecordExecution(ctx, approvalID, string(result), execErr, duration); recErr != nil {
			c.logger.Warn("failed recording approval execution", "approval_id", approvalID, "error", recErr)
		}
	}
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Result: string(result)}, nil
}
