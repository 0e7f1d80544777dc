package events

import "time"

// Outbound event names. The receiving side (widget, agent dashboard, queue
// consumers) switches on these.
const (
	BotResponse          = "bot_response"
	AgentResponse        = "agent_response"
	AgentJoined          = "agent_joined"
	ConversationEnded    = "conversation_ended"
	TypingIndicator      = "typing_indicator"
	NewMessage           = "new_message"
	ConversationAssigned = "conversation_assigned"
	NewConversation      = "new_conversation"
)

// BotResponsePayload is sent to the conversation room when the AI replies.
type BotResponsePayload struct {
	MessageID uint      `json:"messageId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentResponsePayload is sent to the conversation room when a human replies.
type AgentResponsePayload struct {
	MessageID uint      `json:"messageId"`
	Message   string    `json:"message"`
	AgentName string    `json:"agentName"`
	Timestamp time.Time `json:"timestamp"`
}

// AgentJoinedPayload is sent to the conversation room on accept.
type AgentJoinedPayload struct {
	AgentName string `json:"agentName"`
	AgentID   uint   `json:"agentId"`
}

// ConversationEndedPayload is sent to the conversation room on end.
type ConversationEndedPayload struct {
	AgentName string `json:"agentName"`
	AgentID   uint   `json:"agentId"`
}

// TypingPayload is the stateless typing pass-through. ConversationID is only
// set on the agent-facing copy; the widget knows its own conversation.
type TypingPayload struct {
	ConversationID uint   `json:"conversationId,omitempty"`
	IsTyping       bool   `json:"isTyping"`
	Sender         string `json:"sender"`
}

// NewMessagePayload forwards a visitor message to the assigned agent's room.
type NewMessagePayload struct {
	ConversationID uint      `json:"conversationId"`
	Message        string    `json:"message"`
	Sender         string    `json:"sender"`
	MessageID      uint      `json:"messageId"`
	Timestamp      time.Time `json:"timestamp"`
}

// ConversationAssignedPayload notifies an agent of a direct transfer.
type ConversationAssignedPayload struct {
	ConversationID uint `json:"conversationId"`
	BotID          uint `json:"botId"`
}

// NewConversationPayload notifies the client-wide room that a conversation is
// queued for any agent to pick up.
type NewConversationPayload struct {
	ConversationID uint      `json:"conversationId"`
	BotID          uint      `json:"botId"`
	LastMessage    string    `json:"lastMessage,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
