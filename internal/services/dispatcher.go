package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"botup-realtime/internal/events"
	"botup-realtime/internal/models"
	"botup-realtime/internal/realtime"
	"botup-realtime/internal/store"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// DispatchStore is the persistence slice the dispatcher needs.
type DispatchStore interface {
	GetConversation(id uint) (*models.Conversation, error)
	GetChatbot(id uint) (*models.Chatbot, error)
	AppendMessage(conversationID uint, sender, content string, agentID *uint) (*models.Message, error)
	RecentMessages(conversationID uint, limit int) ([]models.Message, error)
}

// apologyMessage is persisted as the bot reply when the AI responder fails.
// An infrastructure failure is not a handover judgement, so the conversation
// stays in bot handling.
const apologyMessage = "I'm sorry, I'm having trouble responding right now. Please try again in a moment."

const (
	aiCallTimeout = 10 * time.Second
	botCacheTTL   = 5 * time.Minute
	botCacheSweep = 10 * time.Minute
	typingVisitor = "visitor"
	typingAgent   = "agent"
	senderVisitor = "visitor"
)

// Dispatcher is the single entry point for inbound chat messages. It
// persists first, then routes: to the assigned agent's room when a human owns
// the conversation, otherwise through the AI responder.
type Dispatcher struct {
	store         DispatchStore
	conversations *ConversationService
	responder     Responder
	emitter       Emitter
	botCache      *cache.Cache

	// Per-conversation locks serialize dispatch so message_count updates and
	// handling_type reads cannot interleave for the same conversation.
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(st DispatchStore, conversations *ConversationService, responder Responder, emitter Emitter) (*Dispatcher, error) {
	if st == nil {
		return nil, fmt.Errorf("dispatch store cannot be nil")
	}
	if conversations == nil {
		return nil, fmt.Errorf("conversation service cannot be nil")
	}
	if responder == nil {
		return nil, fmt.Errorf("responder cannot be nil")
	}
	if emitter == nil {
		return nil, fmt.Errorf("emitter cannot be nil")
	}
	return &Dispatcher{
		store:         st,
		conversations: conversations,
		responder:     responder,
		emitter:       emitter,
		botCache:      cache.New(botCacheTTL, botCacheSweep),
		locks:         make(map[uint]*sync.Mutex),
	}, nil
}

// lockConversation returns the mutex serializing one conversation's dispatch.
func (d *Dispatcher) lockConversation(conversationID uint) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[conversationID] = l
	}
	return l
}

// chatbot fetches a bot configuration through the TTL cache.
func (d *Dispatcher) chatbot(chatbotID uint) (*models.Chatbot, error) {
	key := strconv.FormatUint(uint64(chatbotID), 10)
	if cached, found := d.botCache.Get(key); found {
		return cached.(*models.Chatbot), nil
	}
	bot, err := d.store.GetChatbot(chatbotID)
	if err != nil {
		return nil, err
	}
	d.botCache.Set(key, bot, cache.DefaultExpiration)
	return bot, nil
}

// HandleVisitorMessage persists an inbound visitor message and routes it:
// forwarded to the assigned agent when one owns the conversation, otherwise
// answered by the AI responder. A responder handover signal queues the
// conversation for any agent of the owning client.
func (d *Dispatcher) HandleVisitorMessage(ctx context.Context, conversationID uint, content string) error {
	if content == "" {
		return fmt.Errorf("%w: message content cannot be empty", store.ErrValidation)
	}

	l := d.lockConversation(conversationID)
	l.Lock()
	defer l.Unlock()

	conv, err := d.store.GetConversation(conversationID)
	if err != nil {
		return err
	}

	msg, err := d.store.AppendMessage(conversationID, models.SenderUser, content, nil)
	if err != nil {
		return err
	}

	// Terminal conversations keep the audit trail but are no longer routed.
	if conv.Ended() {
		log.Debug().Uint("conversationID", conversationID).Msg("Message appended to ended conversation, not routed")
		return nil
	}

	if conv.HandlingType == models.HandlingAgent && conv.AgentID != nil {
		d.emitter.EmitToRoom(realtime.AgentRoom(*conv.AgentID), events.NewMessage, events.NewMessagePayload{
			ConversationID: conversationID,
			Message:        content,
			Sender:         senderVisitor,
			MessageID:      msg.ID,
			Timestamp:      msg.Timestamp,
		})
		return nil
	}

	return d.respondWithAI(ctx, conv, content)
}

// respondWithAI runs the AI responder and delivers its reply. Responder
// failure substitutes the fixed apology and leaves the handling state alone.
func (d *Dispatcher) respondWithAI(ctx context.Context, conv *models.Conversation, content string) error {
	reply := &Reply{Text: apologyMessage}

	bot, err := d.chatbot(conv.ChatbotID)
	if err != nil {
		log.Error().Err(err).Uint("chatbotID", conv.ChatbotID).Msg("Failed to load chatbot configuration")
	} else {
		history, err := d.store.RecentMessages(conv.ID, historyLimit)
		if err != nil {
			log.Error().Err(err).Uint("conversationID", conv.ID).Msg("Failed to load conversation history")
			history = nil
		}

		aiCtx, cancel := context.WithTimeout(ctx, aiCallTimeout)
		generated, err := d.responder.Respond(aiCtx, bot, history, content)
		cancel()
		if err != nil {
			log.Error().Err(err).Uint("conversationID", conv.ID).Msg("AI responder failed, substituting apology")
		} else {
			reply = generated
		}
	}

	botMsg, err := d.store.AppendMessage(conv.ID, models.SenderBot, reply.Text, nil)
	if err != nil {
		return err
	}

	d.emitter.EmitToRoom(realtime.ConversationRoom(conv.ID), events.BotResponse, events.BotResponsePayload{
		MessageID: botMsg.ID,
		Message:   reply.Text,
		Timestamp: botMsg.Timestamp,
	})

	if reply.NeedsHuman {
		if err := d.conversations.QueueForAnyAgent(conv, reply.Text); err != nil {
			log.Error().Err(err).Uint("conversationID", conv.ID).Msg("Failed to queue conversation for handover")
		}
	}
	return nil
}

// HandleAgentMessage persists an agent message and broadcasts it to the
// conversation room. No AI involvement.
func (d *Dispatcher) HandleAgentMessage(conversationID, agentID uint, agentName, content string) error {
	if content == "" {
		return fmt.Errorf("%w: message content cannot be empty", store.ErrValidation)
	}
	if agentID == 0 {
		return fmt.Errorf("%w: agent ID is required", store.ErrValidation)
	}

	l := d.lockConversation(conversationID)
	l.Lock()
	defer l.Unlock()

	msg, err := d.store.AppendMessage(conversationID, models.SenderAgent, content, &agentID)
	if err != nil {
		return err
	}

	d.emitter.EmitToRoom(realtime.ConversationRoom(conversationID), events.AgentResponse, events.AgentResponsePayload{
		MessageID: msg.ID,
		Message:   content,
		AgentName: agentName,
		Timestamp: msg.Timestamp,
	})
	return nil
}

// HandleTypingIndicator forwards typing state without tracking it.
// Visitor typing goes to the assigned agent's room (only if one is assigned);
// agent typing goes to the conversation room. Receivers are responsible for
// clearing stale indicators.
func (d *Dispatcher) HandleTypingIndicator(conversationID uint, sender string, isTyping bool) error {
	switch sender {
	case typingVisitor:
		conv, err := d.store.GetConversation(conversationID)
		if err != nil {
			return err
		}
		if conv.AgentID == nil {
			return nil
		}
		d.emitter.EmitToRoom(realtime.AgentRoom(*conv.AgentID), events.TypingIndicator, events.TypingPayload{
			ConversationID: conversationID,
			IsTyping:       isTyping,
			Sender:         typingVisitor,
		})
	case typingAgent:
		d.emitter.EmitToRoom(realtime.ConversationRoom(conversationID), events.TypingIndicator, events.TypingPayload{
			IsTyping: isTyping,
			Sender:   typingAgent,
		})
	default:
		return fmt.Errorf("%w: unknown typing sender %q", store.ErrValidation, sender)
	}
	return nil
}
