package realtime

import "strconv"

// RoomKind tags the kind of broadcast group a connection can join.
type RoomKind string

const (
	// RoomKindConversation is the visitor-facing room for one conversation.
	RoomKindConversation RoomKind = "conv"
	// RoomKindAgent is one agent's private room.
	RoomKindAgent RoomKind = "agent"
	// RoomKindClient is the client-wide broadcast room every agent of a
	// tenant joins on login.
	RoomKindClient RoomKind = "client"
)

// RoomKey identifies a broadcast room. Using a typed key instead of
// concatenated strings rules out typos and collisions between room kinds.
type RoomKey struct {
	Kind RoomKind
	ID   string
}

func (k RoomKey) String() string {
	return string(k.Kind) + ":" + k.ID
}

// ConversationRoom returns the room key for a conversation's visitor-facing room.
func ConversationRoom(conversationID uint) RoomKey {
	return RoomKey{Kind: RoomKindConversation, ID: strconv.FormatUint(uint64(conversationID), 10)}
}

// AgentRoom returns the room key for an agent's private room.
func AgentRoom(agentID uint) RoomKey {
	return RoomKey{Kind: RoomKindAgent, ID: strconv.FormatUint(uint64(agentID), 10)}
}

// ClientRoom returns the room key for a tenant's client-wide room.
func ClientRoom(clientID uint) RoomKey {
	return RoomKey{Kind: RoomKindClient, ID: strconv.FormatUint(uint64(clientID), 10)}
}
