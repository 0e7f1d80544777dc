package events

import (
	"fmt"

	"botup-realtime/internal/realtime"
)

// RoomEmitter is the hub-side half of the notifier.
type RoomEmitter interface {
	EmitToRoom(room realtime.RoomKey, eventType string, data interface{})
}

// Notifier delivers each outbound event to the room's connected sockets and,
// when a publisher is configured, mirrors it to RabbitMQ. Services emit
// through the Notifier so both channels stay in lockstep.
type Notifier struct {
	rooms     RoomEmitter
	publisher *Publisher
}

// NewNotifier creates a Notifier. The publisher may be nil or disabled.
func NewNotifier(rooms RoomEmitter, publisher *Publisher) (*Notifier, error) {
	if rooms == nil {
		return nil, fmt.Errorf("room emitter cannot be nil")
	}
	return &Notifier{rooms: rooms, publisher: publisher}, nil
}

// EmitToRoom sends the event to the room and mirrors it to the queue.
func (n *Notifier) EmitToRoom(room realtime.RoomKey, eventType string, data interface{}) {
	n.rooms.EmitToRoom(room, eventType, data)
	if n.publisher != nil {
		n.publisher.Publish(eventType, data)
	}
}
