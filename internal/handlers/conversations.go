package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"botup-realtime/internal/models"
	"botup-realtime/internal/services"
	"botup-realtime/internal/store"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// ConversationHandler exposes the REST actions that mutate routing state
// (transfer/accept/end) plus the conversation and message CRUD the agent
// dashboard uses.
type ConversationHandler struct {
	store         *store.Store
	conversations *services.ConversationService
}

// NewConversationHandler creates a new ConversationHandler.
func NewConversationHandler(st *store.Store, conversations *services.ConversationService) (*ConversationHandler, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if conversations == nil {
		return nil, fmt.Errorf("conversation service cannot be nil")
	}
	return &ConversationHandler{store: st, conversations: conversations}, nil
}

func pathID(r *http.Request, name string) (uint, error) {
	raw := mux.Vars(r)[name]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", store.ErrValidation, name)
	}
	return uint(id), nil
}

// Create handles POST /api/conversations.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	clientID, ok := ClientIDFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "No token provided"})
		return
	}

	var body struct {
		ChatbotID uint    `json:"chatbotId"`
		VisitorID *string `json:"visitorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}
	if body.ChatbotID == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Chatbot ID is required"})
		return
	}

	// The chatbot must belong to the calling client.
	bot, err := h.store.GetChatbot(body.ChatbotID)
	if err != nil || bot.ClientID != clientID {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "Chatbot not found"})
		return
	}

	conv, err := h.store.CreateConversation(body.ChatbotID, body.VisitorID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, conv)
}

// Get handles GET /api/conversations/{id}, returning the conversation with
// its messages in timestamp order.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	clientID, ok := ClientIDFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "No token provided"})
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	conv, err := h.store.GetConversationForClient(id, clientID)
	if err != nil {
		respondError(w, err)
		return
	}
	messages, err := h.store.ListMessages(id)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		*models.Conversation
		Messages []models.Message `json:"messages"`
	}{conv, messages})
}

// Transfer handles POST /api/conversations/{id}/transfer.
func (h *ConversationHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	clientID, ok := ClientIDFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "No token provided"})
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var body struct {
		AgentID      *uint `json:"agentId"`
		DepartmentID *uint `json:"departmentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	if _, err := h.conversations.Transfer(id, clientID, body.AgentID, body.DepartmentID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Accept handles POST /api/conversations/{id}/accept.
func (h *ConversationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var body struct {
		AgentID uint `json:"agentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AgentID == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Agent ID is required"})
		return
	}

	if _, err := h.conversations.Accept(id, body.AgentID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// End handles POST /api/conversations/{id}/end.
func (h *ConversationHandler) End(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var body struct {
		AgentID uint `json:"agentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AgentID == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Agent ID is required"})
		return
	}

	if _, err := h.conversations.End(id, body.AgentID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AgentQueues handles GET /api/conversations/agent/{agentId}, returning the
// agent's active conversations and the pending handover queue for its client.
func (h *ConversationHandler) AgentQueues(w http.ResponseWriter, r *http.Request) {
	agentID, err := pathID(r, "agentId")
	if err != nil {
		respondError(w, err)
		return
	}

	agent, err := h.store.GetAgent(agentID)
	if err != nil {
		respondError(w, err)
		return
	}

	active, pending, err := h.store.AgentQueues(agent)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string][]models.Conversation{
		"active":  active,
		"pending": pending,
	})
}

// ListMessages handles GET /api/conversations/{id}/messages.
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	messages, err := h.store.ListMessages(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// MarkMessagesRead handles PUT /api/conversations/{id}/messages/read.
func (h *ConversationHandler) MarkMessagesRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var body struct {
		AgentID uint `json:"agentId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AgentID == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Agent ID is required"})
		return
	}

	if err := h.store.MarkMessagesRead(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// AppendMessage handles POST /api/conversations/{id}/messages, the
// webhook/integration append path. Only user and bot senders are accepted.
func (h *ConversationHandler) AppendMessage(w http.ResponseWriter, r *http.Request) {
	clientID, ok := ClientIDFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "No token provided"})
		return
	}

	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}

	var body struct {
		Sender  string `json:"sender"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}
	if body.Content == "" || (body.Sender != models.SenderUser && body.Sender != models.SenderBot) {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid message data"})
		return
	}

	if _, err := h.store.GetConversationForClient(id, clientID); err != nil {
		respondError(w, err)
		return
	}

	msg, err := h.store.AppendMessage(id, body.Sender, body.Content, nil)
	if err != nil {
		respondError(w, err)
		return
	}

	log.Debug().Uint("conversationID", id).Str("sender", body.Sender).Msg("Message appended via REST")
	respondJSON(w, http.StatusCreated, msg)
}
