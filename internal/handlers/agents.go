package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"botup-realtime/internal/store"
)

// AgentHandler exposes the agent-side actions that feed routing state.
type AgentHandler struct {
	store *store.Store
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(st *store.Store) (*AgentHandler, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	return &AgentHandler{store: st}, nil
}

// UpdateStatus handles PUT /api/agents/status for the authenticated agent.
// Status affects which agents present themselves as available; routing
// fan-out itself only reaches connected sockets.
func (h *AgentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	agentID, ok := AgentIDFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "No token provided"})
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Status == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid status"})
		return
	}

	if err := h.store.UpdateAgentStatus(agentID, body.Status); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": body.Status})
}

// Profile handles GET /api/agents/profile for the authenticated agent.
func (h *AgentHandler) Profile(w http.ResponseWriter, r *http.Request) {
	agentID, ok := AgentIDFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "No token provided"})
		return
	}

	agent, err := h.store.GetAgent(agentID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, agent)
}
