package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64 KB, chat payloads are small
)

// InboundEvent is the envelope visitors and agents send over the socket.
type InboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EventHandler is invoked for every decoded inbound event of a connection.
type EventHandler func(client *Client, event string, data json.RawMessage)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan Event
}

// NewClient creates a new Client for an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan Event, 64),
	}
}

// Start registers the client with the hub and begins reading and writing.
// Inbound events are dispatched through the handler.
func (c *Client) Start(handler EventHandler) {
	c.hub.Register <- c
	go c.writePump()
	go c.readPump(handler)
}

// readPump pumps decoded events from the websocket connection to the handler.
// The handler runs on this goroutine, so events of one connection are
// processed strictly in arrival order.
func (c *Client) readPump(handler EventHandler) {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close() // Best-effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Error().Err(err).Str("connectionID", c.ID).Msg("Failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg InboundEvent
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connectionID", c.ID).Msg("Unexpected websocket close")
			}
			break
		}
		if msg.Event == "" {
			log.Warn().Str("connectionID", c.ID).Msg("Inbound event without event name, ignoring")
			continue
		}
		handler(c, msg.Event, msg.Data)
	}
}

// writePump pumps events from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Best-effort cleanup
	}()

	for {
		select {
		case event, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("connectionID", c.ID).Msg("Failed to set write deadline")
				return
			}
			if !ok {
				// The hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				log.Error().Err(err).Str("connectionID", c.ID).Msg("Failed to write event")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
