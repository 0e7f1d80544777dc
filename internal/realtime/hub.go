package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Event is one outbound wire event: a name plus a JSON-serializable payload.
type Event struct {
	Type string      `json:"event"`
	Data interface{} `json:"data"`
}

type roomEvent struct {
	room  RoomKey
	event Event
}

// Hub maintains the set of active connections and their room memberships, and
// fans events out to the members of a room. Delivery is at-most-once: emitting
// to an empty room is silently accepted, and a client whose send buffer is
// full is dropped rather than blocking the hub.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	rooms       map[RoomKey]map[*Client]bool
	memberships map[*Client]map[RoomKey]bool

	Register   chan *Client
	Unregister chan *Client
	emit       chan roomEvent
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		rooms:       make(map[RoomKey]map[*Client]bool),
		memberships: make(map[*Client]map[RoomKey]bool),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		emit:        make(chan roomEvent, 256),
	}
}

// Run starts the hub loop with context support for graceful shutdown.
// When the context is canceled all connected clients are closed and the
// method returns ctx.Err().
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			log.Info().Str("component", "realtime-hub").Msg("Hub stopped")
			return ctx.Err()

		case client := <-h.Register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Info().Str("connectionID", client.ID).Int("totalClients", total).Msg("Connection registered")

		case client := <-h.Unregister:
			h.removeClient(client)

		case ev := <-h.emit:
			h.deliver(ev.room, ev.event)
		}
	}
}

// Join adds the connection to a room. Membership is purely additive per
// explicit join call; a reconnect must re-issue its joins.
func (h *Hub) Join(client *Client, room RoomKey) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client] {
		// Late join after disconnect, ignore.
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][client] = true
	if h.memberships[client] == nil {
		h.memberships[client] = make(map[RoomKey]bool)
	}
	h.memberships[client][room] = true

	log.Debug().Str("connectionID", client.ID).Str("room", room.String()).Msg("Connection joined room")
}

// EmitToRoom queues an event for delivery to every member of the room.
// A full hub queue drops the event with a warning rather than blocking.
func (h *Hub) EmitToRoom(room RoomKey, eventType string, data interface{}) {
	select {
	case h.emit <- roomEvent{room: room, event: Event{Type: eventType, Data: data}}:
	default:
		log.Warn().Str("event", eventType).Str("room", room.String()).Msg("Emit queue full, dropping event")
	}
}

// RoomSize returns the number of connections currently in the room.
func (h *Hub) RoomSize(room RoomKey) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) deliver(room RoomKey, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var toRemove []*Client
	for client := range h.rooms[room] {
		select {
		case client.send <- event:
		default:
			// Send buffer full or closed, drop the client.
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		h.removeClientLocked(client)
		log.Warn().Str("connectionID", client.ID).Msg("Connection send buffer full, dropped")
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		h.removeClientLocked(client)
		log.Info().Str("connectionID", client.ID).Int("totalClients", len(h.clients)).Msg("Connection unregistered")
	}
}

// removeClientLocked removes the client from all rooms it joined and closes
// its send channel. Caller holds h.mu.
func (h *Hub) removeClientLocked(client *Client) {
	for room := range h.memberships[client] {
		delete(h.rooms[room], client)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(h.memberships, client)
	if h.clients[client] {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeClientLocked(client)
	}
	log.Info().Msg("Closed all connections during shutdown")
}
