package realtime

import (
	"fmt"

	"botup-realtime/internal/models"

	"github.com/rs/zerolog/log"
)

// PresenceStore is the slice of persistence the router needs for its
// best-effort presence side effects.
type PresenceStore interface {
	UpdateVisitorPresence(visitorID string, online bool) error
	UpdateAgentStatus(agentID uint, status string) error
}

// Router maps physical connections onto the logical rooms they should receive
// broadcasts for. It is a thin policy layer over the hub's room primitive:
// membership is additive per explicit join, nothing survives a disconnect,
// and callers must re-issue joins on every new connection.
type Router struct {
	hub   *Hub
	store PresenceStore
}

// NewRouter creates a new presence Router.
func NewRouter(hub *Hub, store PresenceStore) (*Router, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("presence store cannot be nil")
	}
	return &Router{hub: hub, store: store}, nil
}

// JoinConversation adds the connection to the conversation's room. When a
// visitor id is supplied the visitor is marked online in persistence; that
// side effect is best-effort and a failure is logged, not fatal.
func (r *Router) JoinConversation(client *Client, conversationID uint, visitorID string) {
	r.hub.Join(client, ConversationRoom(conversationID))
	log.Info().
		Str("connectionID", client.ID).
		Uint("conversationID", conversationID).
		Str("visitorID", visitorID).
		Msg("Visitor joined conversation")

	if visitorID != "" {
		if err := r.store.UpdateVisitorPresence(visitorID, true); err != nil {
			log.Error().Err(err).Str("visitorID", visitorID).Msg("Error updating visitor status")
		}
	}
}

// JoinAgent adds the connection to the agent's private room and to the
// client-wide room, and marks the agent online in persistence.
func (r *Router) JoinAgent(client *Client, agentID, clientID uint) {
	r.hub.Join(client, AgentRoom(agentID))
	r.hub.Join(client, ClientRoom(clientID))
	log.Info().
		Str("connectionID", client.ID).
		Uint("agentID", agentID).
		Uint("clientID", clientID).
		Msg("Agent logged in")

	if err := r.store.UpdateAgentStatus(agentID, models.AgentStatusOnline); err != nil {
		log.Error().Err(err).Uint("agentID", agentID).Msg("Error updating agent status")
	}
}

// Leave removes all room memberships for the connection. No persistence side
// effect is made: socket presence is ephemeral and last-seen data may go
// stale until the next explicit join.
func (r *Router) Leave(client *Client) {
	r.hub.Unregister <- client
}
