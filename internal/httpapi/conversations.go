package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ragchat/gateway/internal/gatewayerr"
	"github.com/ragchat/gateway/internal/llm"
	"github.com/ragchat/gateway/internal/store"
)

type messageDTO struct {
	ID         string    `json:"id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

type conversationDTO struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Status       string         `json:"status"`
	ModelName    string         `json:"model_name"`
	SystemPrompt string         `json:"system_prompt,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
	TotalTokens  int            `json:"total_tokens"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Messages     []messageDTO   `json:"messages,omitempty"`
}

func toConversationDTO(c *store.Conversation) conversationDTO {
	dto := conversationDTO{
		ID: c.ID, Title: c.Title, Status: string(c.Status), ModelName: c.ModelName,
		SystemPrompt: c.SystemPrompt, Data: c.Data, TotalTokens: c.TotalTokens, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
	for _, m := range c.Messages {
		dto.Messages = append(dto.Messages, toMessageDTO(m))
	}
	return dto
}

func toMessageDTO(m *store.Message) messageDTO {
	return messageDTO{ID: m.ID, Role: m.Role, Content: m.Content, TokenCount: m.TokenCount, CreatedAt: m.CreatedAt}
}

// ownedConversation loads a conversation and verifies the caller owns it,
// the same check C12's Prepare applies before it will touch one.
func (s *Server) ownedConversation(r *http.Request, userID string, id string) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, gatewayerr.NewNotFound("conversation %q", id)
	}
	if conv.OwnerUserID != userID {
		return nil, gatewayerr.NewAuthForbidden("conversation %q is not owned by the caller", id)
	}
	return conv, nil
}

type createConversationRequest struct {
	Title        string `json:"title"`
	ModelName    string `json:"model_name"`
	SystemPrompt string `json:"system_prompt"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	conv, err := s.store.CreateConversation(r.Context(), user.ID, req.Title, req.ModelName, req.SystemPrompt)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toConversationDTO(conv))
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	opts := store.ListOptions{
		Limit:  intQuery(r, "limit", 0),
		Offset: intQuery(r, "offset", 0),
		Status: store.ConversationStatus(r.URL.Query().Get("status")),
	}
	convs, err := s.store.ListByUser(r.Context(), user.ID, opts)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	dtos := make([]conversationDTO, 0, len(convs))
	for _, c := range convs {
		dtos = append(dtos, toConversationDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": dtos})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	conv, err := s.ownedConversation(r, user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationDTO(conv))
}

type updateConversationRequest struct {
	Title        string         `json:"title"`
	Status       string         `json:"status"`
	ModelName    string         `json:"model_name"`
	SystemPrompt string         `json:"system_prompt"`
	Data         map[string]any `json:"data"`
}

func (s *Server) handleUpdateConversation(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	existing, err := s.ownedConversation(r, user.ID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req updateConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	title := req.Title
	if title == "" {
		title = existing.Title
	}
	status := store.ConversationStatus(req.Status)
	if status == "" {
		status = existing.Status
	}
	modelName := req.ModelName
	if modelName == "" {
		modelName = existing.ModelName
	}
	systemPrompt := req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = existing.SystemPrompt
	}
	data := req.Data
	if data == nil {
		data = existing.Data
	}
	conv, err := s.store.UpdateConversation(r.Context(), id, title, modelName, status, systemPrompt, data)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationDTO(conv))
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.ownedConversation(r, user.ID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	hard := r.URL.Query().Get("hard") == "true"
	if _, err := s.store.DeleteConversation(r.Context(), id, hard); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	conv, err := s.ownedConversation(r, user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	dtos := make([]messageDTO, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		dtos = append(dtos, toMessageDTO(m))
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": dtos})
}

type addMessageRequest struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	RawContent string `json:"raw_content"`
}

// handleAddMessage implements POST /api/chat/conversations/{id}/messages:
// appends a message to a conversation directly, with no model call and no
// stream-session bookkeeping, unlike prepare-stream.
func (s *Server) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.ownedConversation(r, user.ID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	var req addMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if req.Role == "" {
		req.Role = string(store.RoleUser)
	}
	rawContent := req.RawContent
	if rawContent == "" {
		rawContent = req.Content
	}
	msg, err := s.store.AddMessage(r.Context(), id, req.Role, req.Content, rawContent, llm.EstimateTokens(req.Content))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageDTO(msg))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	user, err := s.resolveUser(r.Context())
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	q := r.URL.Query().Get("q")
	convs, err := s.store.Search(r.Context(), user.ID, q, intQuery(r, "limit", 20))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	dtos := make([]conversationDTO, 0, len(convs))
	for _, c := range convs {
		dtos = append(dtos, toConversationDTO(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": dtos})
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
