package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/mcp"
)

type toolDTO struct {
	QualifiedName string         `json:"qualified_name"`
	ServerName    string         `json:"server_name"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Parameters    map[string]any `json:"parameters"`
	Category      string         `json:"category,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
}

// handleListTools implements GET /api/mcp/tools?provider=, optionally
// narrowing to one server's tools.
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	provider := r.URL.Query().Get("provider")
	var dtos []toolDTO
	for _, t := range s.mcp.Tools().List() {
		if provider != "" && t.ServerName != provider {
			continue
		}
		dtos = append(dtos, toolDTO{
			QualifiedName: t.QualifiedName, ServerName: t.ServerName, Name: t.Name,
			Description: t.Description, Parameters: t.Parameters, Category: t.Category, Tags: t.Tags,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": dtos})
}

type executeToolRequest struct {
	Name             string         `json:"tool_name"`
	Arguments        map[string]any `json:"arguments"`
	ConversationID   string         `json:"conversation_id"`
	AutoApproveTools bool           `json:"auto_approve_tools"`
	ApprovalTimeoutS int            `json:"approval_timeout_seconds"`
}

type executeToolResponse struct {
	Success    bool   `json:"success"`
	ApprovalID string `json:"approval_id,omitempty"`
	Pending    bool   `json:"pending"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
}

// handleExecuteTool implements POST /api/mcp/execute: runs a tool
// immediately if auto-approved (explicitly, or via the caller's admin
// role), otherwise records a pending approval for out-of-band resolution.
func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req executeToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}

	timeout := time.Duration(req.ApprovalTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 300 * time.Second
	}

	caller := mcp.CallerContext{
		UserID:         user.ID,
		ConversationID: req.ConversationID,
		AutoApprove:    autoApproveForCaller(r.Context(), req.AutoApproveTools),
	}

	result, err := s.mcp.Execute(r.Context(), req.Name, req.Arguments, caller, timeout)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, executeToolResponse{
		Success: !result.Pending, ApprovalID: result.ApprovalID, Pending: result.Pending, Result: result.Result,
	})
}

type approvalDTO struct {
	ID             string         `json:"id"`
	ToolName       string         `json:"tool_name"`
	Arguments      map[string]any `json:"arguments"`
	ConversationID string         `json:"conversation_id"`
	Status         string         `json:"status"`
	RequestedAt    time.Time      `json:"requested_at"`
	ExpiresAt      time.Time      `json:"expires_at"`
}

func toApprovalDTO(a *mcp.Approval) approvalDTO {
	return approvalDTO{
		ID: a.ID, ToolName: a.ToolName, Arguments: a.Arguments, ConversationID: a.ConversationID,
		Status: string(a.Status), RequestedAt: a.RequestedAt, ExpiresAt: a.ExpiresAt,
	}
}

// handleListPendingApprovals implements GET /api/mcp/approvals/pending.
func (s *Server) handleListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := s.mcp.Approvals().ListPending(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	dtos := make([]approvalDTO, 0, len(pending))
	for _, a := range pending {
		dtos = append(dtos, toApprovalDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"approvals": dtos})
}

type approveRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// handleApproveApproval implements POST /api/mcp/approvals/{id}/approve: a
// reviewer's decision, recorded under the calling user's id. No role check
// is made on the caller.
func (s *Server) handleApproveApproval(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.mcp.Approvals().Decide(r.Context(), id, user.ID, req.Approved, req.Reason); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if s.metrics != nil {
		state := "rejected"
		if req.Approved {
			state = "approved"
		}
		s.metrics.ApprovalsByState.WithLabelValues(state).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"approval_id": id, "approved": req.Approved, "reason": req.Reason})
}

// handleExecuteApproval implements POST /api/mcp/approvals/{id}/execute:
// runs a tool call that was previously approved, recording the outcome
// back onto the approval row.
func (s *Server) handleExecuteApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	approval, err := s.mcp.Approvals().Get(r.Context(), id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	// Re-executing an already-executed approval replays the stored outcome
	// rather than erroring: execution is gated exactly once, so the HTTP
	// surface must be safe to retry (dropped response, client timeout, ...).
	if approval.Status == mcp.ApprovalExecuted {
		writeJSON(w, http.StatusOK, executeToolResponse{
			Success: approval.ExecutionError == "", Result: approval.Result, Error: approval.ExecutionError,
		})
		return
	}
	if approval.Status != mcp.ApprovalApproved {
		writeError(w, s.logger, gatewayerr.NewConflict("approval %s is not approved (status=%s)", id, approval.Status))
		return
	}

	qualifiedName := approval.ToolName
	if !strings.Contains(qualifiedName, ".") {
		writeError(w, s.logger, gatewayerr.NewToolNotFound(qualifiedName))
		return
	}

	result, err := s.mcp.ExecuteApproved(r.Context(), id, qualifiedName, approval.Arguments)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ApprovalsByState.WithLabelValues("executed").Inc()
	}
	writeJSON(w, http.StatusOK, executeToolResponse{Success: true, Result: result.Result})
}
