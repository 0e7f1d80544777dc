package events

import (
	"io"
	"os"
	"testing"

	"botup-realtime/internal/realtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestMain(m *testing.M) {
	log.Logger = zerolog.New(io.Discard)
	os.Exit(m.Run())
}

type recordingRooms struct {
	rooms  []realtime.RoomKey
	events []string
}

func (r *recordingRooms) EmitToRoom(room realtime.RoomKey, eventType string, data interface{}) {
	r.rooms = append(r.rooms, room)
	r.events = append(r.events, eventType)
}

func TestNotifierForwardsToRooms(t *testing.T) {
	rooms := &recordingRooms{}
	notifier, err := NewNotifier(rooms, nil)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	notifier.EmitToRoom(realtime.ConversationRoom(7), BotResponse, BotResponsePayload{Message: "hi"})

	if len(rooms.events) != 1 || rooms.events[0] != BotResponse {
		t.Errorf("events = %v, want [%s]", rooms.events, BotResponse)
	}
	if rooms.rooms[0] != realtime.ConversationRoom(7) {
		t.Errorf("room = %v, want conversation room 7", rooms.rooms[0])
	}
}

func TestNotifierWithDisabledPublisher(t *testing.T) {
	rooms := &recordingRooms{}
	publisher := NewPublisher("", "botup")
	if publisher.Enabled() {
		t.Fatal("publisher enabled without a URL")
	}

	notifier, err := NewNotifier(rooms, publisher)
	if err != nil {
		t.Fatalf("NewNotifier: %v", err)
	}

	// Must not panic or block on the disabled mirror.
	notifier.EmitToRoom(realtime.AgentRoom(3), NewMessage, NewMessagePayload{ConversationID: 1})
	if len(rooms.events) != 1 {
		t.Errorf("events = %v", rooms.events)
	}
}

func TestNotifierRequiresRoomEmitter(t *testing.T) {
	if _, err := NewNotifier(nil, nil); err == nil {
		t.Error("expected error for nil room emitter")
	}
}

func TestDisabledPublisherPublishIsNoop(t *testing.T) {
	publisher := NewPublisher("", "")
	publisher.Publish(BotResponse, BotResponsePayload{Message: "hi"})
	publisher.Close()
}

func TestQueueNameDerivation(t *testing.T) {
	publisher := NewPublisher("", "acme")
	if got := publisher.queueName(ConversationEnded); got != "acme_conversation_ended" {
		t.Errorf("queueName = %q, want acme_conversation_ended", got)
	}

	// Empty prefix falls back to the default.
	publisher = NewPublisher("", "")
	if got := publisher.queueName(BotResponse); got != "botup_bot_response" {
		t.Errorf("queueName = %q, want botup_bot_response", got)
	}
}
