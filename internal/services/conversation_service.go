package services

import (
	"fmt"
	"time"

	"botup-realtime/internal/events"
	"botup-realtime/internal/models"
	"botup-realtime/internal/realtime"

	"github.com/rs/zerolog/log"
)

// Emitter fans an event out to a room. Satisfied by the realtime hub and by
// the events notifier that also mirrors to the queue.
type Emitter interface {
	EmitToRoom(room realtime.RoomKey, eventType string, data interface{})
}

// TransitionStore is the persistence slice the state machine needs. The
// Transfer/Accept/End operations are transactional and conditional; zero
// matched rows surfaces as a domain error, never a silent overwrite.
type TransitionStore interface {
	GetConversationForClient(id, clientID uint) (*models.Conversation, error)
	GetAgent(id uint) (*models.Agent, error)
	GetAgentForClient(id, clientID uint) (*models.Agent, error)
	ChatbotClientID(chatbotID uint) (uint, error)
	Transfer(conversationID uint, agentID, departmentID *uint, systemText string) (*models.Conversation, error)
	Accept(conversationID, agentID uint, systemText string) (*models.Conversation, error)
	End(conversationID, agentID uint, systemText string) (*models.Conversation, error)
}

// System message texts appended alongside transitions.
const (
	msgTransferredToAgent = "Conversation transferred to agent"
	msgQueuedForAgent     = "Conversation queued for agent assistance"
	msgEndedByAgent       = "Conversation ended by agent"
)

// ConversationService governs a conversation's handling mode and the valid
// transitions between bot, transferred and agent ownership. Conversations
// only move forward or end; there is no transition back to bot.
type ConversationService struct {
	store   TransitionStore
	emitter Emitter
}

// NewConversationService creates a new ConversationService.
func NewConversationService(store TransitionStore, emitter Emitter) (*ConversationService, error) {
	if store == nil {
		return nil, fmt.Errorf("transition store cannot be nil")
	}
	if emitter == nil {
		return nil, fmt.Errorf("emitter cannot be nil")
	}
	return &ConversationService{store: store, emitter: emitter}, nil
}

// Transfer moves a conversation out of bot handling on behalf of a client.
// With an agent id it is a direct assignment; without one the conversation is
// queued for any agent of the client.
func (s *ConversationService) Transfer(conversationID, clientID uint, agentID, departmentID *uint) (*models.Conversation, error) {
	conv, err := s.store.GetConversationForClient(conversationID, clientID)
	if err != nil {
		return nil, err
	}

	systemText := msgQueuedForAgent
	if agentID != nil {
		if _, err := s.store.GetAgentForClient(*agentID, clientID); err != nil {
			return nil, err
		}
		systemText = msgTransferredToAgent
	}

	updated, err := s.store.Transfer(conversationID, agentID, departmentID, systemText)
	if err != nil {
		return nil, err
	}

	if agentID != nil {
		s.emitter.EmitToRoom(realtime.AgentRoom(*agentID), events.ConversationAssigned, events.ConversationAssignedPayload{
			ConversationID: conversationID,
			BotID:          conv.ChatbotID,
		})
	} else {
		s.emitter.EmitToRoom(realtime.ClientRoom(clientID), events.NewConversation, events.NewConversationPayload{
			ConversationID: conversationID,
			BotID:          conv.ChatbotID,
			Timestamp:      time.Now(),
		})
	}

	log.Info().
		Uint("conversationID", conversationID).
		Uint("clientID", clientID).
		Str("handlingType", updated.HandlingType).
		Msg("Conversation transferred")
	return updated, nil
}

// QueueForAnyAgent is the implicit AI-initiated transfer: the responder
// signaled a handover, so the conversation is queued unassigned and every
// agent of the owning client is notified.
func (s *ConversationService) QueueForAnyAgent(conv *models.Conversation, lastMessage string) error {
	if conv == nil {
		return fmt.Errorf("conversation cannot be nil")
	}

	clientID, err := s.store.ChatbotClientID(conv.ChatbotID)
	if err != nil {
		return err
	}

	if _, err := s.store.Transfer(conv.ID, nil, nil, msgQueuedForAgent); err != nil {
		return err
	}

	s.emitter.EmitToRoom(realtime.ClientRoom(clientID), events.NewConversation, events.NewConversationPayload{
		ConversationID: conv.ID,
		BotID:          conv.ChatbotID,
		LastMessage:    lastMessage,
		Timestamp:      time.Now(),
	})

	log.Info().Uint("conversationID", conv.ID).Uint("clientID", clientID).Msg("Conversation queued for human handover")
	return nil
}

// Accept binds an unassigned transferred conversation to the agent. Exactly
// one concurrent accept succeeds; the losers get ErrAlreadyAssigned.
func (s *ConversationService) Accept(conversationID, agentID uint) (*models.Conversation, error) {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}

	// Scope check: the conversation must be visible to the agent's client.
	if _, err := s.store.GetConversationForClient(conversationID, agent.ClientID); err != nil {
		return nil, err
	}

	updated, err := s.store.Accept(conversationID, agentID, fmt.Sprintf("%s has joined the conversation", agent.Name))
	if err != nil {
		return nil, err
	}

	s.emitter.EmitToRoom(realtime.ConversationRoom(conversationID), events.AgentJoined, events.AgentJoinedPayload{
		AgentName: agent.Name,
		AgentID:   agent.ID,
	})

	log.Info().Uint("conversationID", conversationID).Uint("agentID", agentID).Msg("Conversation accepted")
	return updated, nil
}

// End marks the conversation terminal. Only the owning agent may end it.
func (s *ConversationService) End(conversationID, agentID uint) (*models.Conversation, error) {
	agent, err := s.store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.End(conversationID, agentID, msgEndedByAgent)
	if err != nil {
		return nil, err
	}

	s.emitter.EmitToRoom(realtime.ConversationRoom(conversationID), events.ConversationEnded, events.ConversationEndedPayload{
		AgentName: agent.Name,
		AgentID:   agent.ID,
	})

	log.Info().Uint("conversationID", conversationID).Uint("agentID", agentID).Msg("Conversation ended")
	return updated, nil
}
