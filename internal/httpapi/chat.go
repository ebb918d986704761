package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/orchestrator"
)

type prepareRequest struct {
	Message          string  `json:"message"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	MaxTokens        int     `json:"max_tokens"`
	ToolsEnabled     bool    `json:"tools_enabled"`
	AutoApproveTools bool    `json:"auto_approve_tools"`
}

type prepareResponse struct {
	StreamToken        string `json:"stream_token"`
	StreamURL          string `json:"stream_url"`
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`
}

func (s *Server) prepare(w http.ResponseWriter, r *http.Request, forceTools bool, mcpPath bool) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	var req prepareRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}

	in := orchestrator.PrepareInput{
		UserID:           user.ID,
		ConversationID:   chi.URLParam(r, "id"),
		Message:          req.Message,
		Model:            req.Model,
		Temperature:      req.Temperature,
		MaxTokens:        req.MaxTokens,
		ToolsEnabled:     req.ToolsEnabled || forceTools,
		AutoApproveTools: autoApproveForCaller(r.Context(), req.AutoApproveTools),
	}

	result, err := s.orch.Prepare(r.Context(), in)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	streamURL := result.StreamURL
	if mcpPath {
		streamURL = "/stream/mcp/" + result.StreamToken
	}
	writeJSON(w, http.StatusOK, prepareResponse{
		StreamToken:        result.StreamToken,
		StreamURL:          streamURL,
		UserMessageID:      result.UserMessageID,
		AssistantMessageID: result.AssistantMessageID,
	})
}

// handlePrepareStream implements POST .../prepare-stream (SPEC_FULL.md
// §4.12's prepare phase, no forced tool resolution).
func (s *Server) handlePrepareStream(w http.ResponseWriter, r *http.Request) {
	s.prepare(w, r, false, false)
}

// handlePrepareMCPStream is prepare-stream with tool resolution forced on,
// for clients that always want the MCP-aware variant.
func (s *Server) handlePrepareMCPStream(w http.ResponseWriter, r *http.Request) {
	s.prepare(w, r, true, true)
}

// handleStream implements GET /stream/{token} and /stream/mcp/{token}. The
// token is the sole credential: no Authorization header is required or
// consulted here, since prepare already authenticated and authorized the
// caller before minting it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	events, err := s.orch.Stream(r.Context(), token)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if s.metrics != nil {
		s.metrics.StreamsOpened.Inc()
	}
	last := writeSSE(w, s.logger, events)
	if s.metrics != nil {
		if last == orchestrator.EventDone {
			s.metrics.StreamsCompleted.Inc()
		} else {
			s.metrics.StreamsErrored.Inc()
		}
	}
}

type directChatRequest struct {
	Message     string  `json:"message"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type directChatResponse struct {
	Text           string `json:"text"`
	Model          string `json:"model"`
	ResponseTimeMS int64  `json:"response_time_ms"`
}

// handleChatDirect implements POST /api/chat/direct: a single-turn
// pass-through to C7, with no conversation persistence (C4), no
// stream-session bookkeeping (C5), and no caller-supplied history — for
// callers that just want one blocking completion for one message.
func (s *Server) handleChatDirect(w http.ResponseWriter, r *http.Request) {
	var req directChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}

	start := time.Now()
	result, err := s.models.Chat(r.Context(), req.Model, []llm.Message{{Role: "user", Content: req.Message}}, llm.Params{
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, directChatResponse{
		Text: result.Text, Model: req.Model, ResponseTimeMS: time.Since(start).Milliseconds(),
	})
}
