package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"botup-realtime/internal/realtime"
	"botup-realtime/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Inbound socket event names, shared with the widget and agent dashboard.
const (
	evJoinConversation = "join_conversation"
	evAgentLogin       = "agent_login"
	evClientMessage    = "client_message"
	evAgentMessage     = "agent_message"
	evVisitorTyping    = "visitor_typing"
	evAgentTyping      = "agent_typing"
)

type joinConversationPayload struct {
	ConversationID uint   `json:"conversationId"`
	BotID          uint   `json:"botId"`
	VisitorID      string `json:"visitorId"`
}

type agentLoginPayload struct {
	AgentID  uint `json:"agentId"`
	ClientID uint `json:"clientId"`
}

type clientMessagePayload struct {
	ConversationID uint   `json:"conversationId"`
	Message        string `json:"message"`
}

type agentMessagePayload struct {
	ConversationID uint   `json:"conversationId"`
	Message        string `json:"message"`
	AgentID        uint   `json:"agentId"`
	AgentName      string `json:"agentName"`
}

type typingEventPayload struct {
	ConversationID uint `json:"conversationId"`
	IsTyping       bool `json:"isTyping"`
}

// SocketHandler upgrades HTTP connections to websockets and translates
// inbound wire events into presence and dispatcher calls.
type SocketHandler struct {
	hub        *realtime.Hub
	presence   *realtime.Router
	dispatcher *services.Dispatcher
	upgrader   websocket.Upgrader
}

// NewSocketHandler creates a new SocketHandler.
func NewSocketHandler(hub *realtime.Hub, presence *realtime.Router, dispatcher *services.Dispatcher) (*SocketHandler, error) {
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	if presence == nil {
		return nil, fmt.Errorf("presence router cannot be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	return &SocketHandler{
		hub:        hub,
		presence:   presence,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The widget is embedded on arbitrary customer sites.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}, nil
}

// ServeWS handles GET /ws.
func (h *SocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := realtime.NewClient(h.hub, conn)
	log.Info().Str("connectionID", client.ID).Str("remoteAddr", r.RemoteAddr).Msg("New socket connection")
	client.Start(h.handleEvent)
}

// handleEvent runs on the connection's read goroutine, so events of one
// connection are processed strictly in order.
func (h *SocketHandler) handleEvent(client *realtime.Client, event string, data json.RawMessage) {
	switch event {
	case evJoinConversation:
		var p joinConversationPayload
		if !decode(client, event, data, &p) {
			return
		}
		h.presence.JoinConversation(client, p.ConversationID, p.VisitorID)

	case evAgentLogin:
		var p agentLoginPayload
		if !decode(client, event, data, &p) {
			return
		}
		h.presence.JoinAgent(client, p.AgentID, p.ClientID)

	case evClientMessage:
		var p clientMessagePayload
		if !decode(client, event, data, &p) {
			return
		}
		if err := h.dispatcher.HandleVisitorMessage(context.Background(), p.ConversationID, p.Message); err != nil {
			log.Error().Err(err).Uint("conversationID", p.ConversationID).Msg("Error processing client message")
		}

	case evAgentMessage:
		var p agentMessagePayload
		if !decode(client, event, data, &p) {
			return
		}
		if err := h.dispatcher.HandleAgentMessage(p.ConversationID, p.AgentID, p.AgentName, p.Message); err != nil {
			log.Error().Err(err).Uint("conversationID", p.ConversationID).Msg("Error sending agent message")
		}

	case evVisitorTyping:
		var p typingEventPayload
		if !decode(client, event, data, &p) {
			return
		}
		if err := h.dispatcher.HandleTypingIndicator(p.ConversationID, "visitor", p.IsTyping); err != nil {
			log.Error().Err(err).Uint("conversationID", p.ConversationID).Msg("Error forwarding typing indicator")
		}

	case evAgentTyping:
		var p typingEventPayload
		if !decode(client, event, data, &p) {
			return
		}
		if err := h.dispatcher.HandleTypingIndicator(p.ConversationID, "agent", p.IsTyping); err != nil {
			log.Error().Err(err).Uint("conversationID", p.ConversationID).Msg("Error forwarding typing indicator")
		}

	default:
		log.Warn().Str("event", event).Str("connectionID", client.ID).Msg("Unknown inbound event, ignoring")
	}
}

func decode(client *realtime.Client, event string, data json.RawMessage, dst interface{}) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		log.Warn().Err(err).Str("event", event).Str("connectionID", client.ID).Msg("Failed to decode inbound event payload")
		return false
	}
	return true
}
