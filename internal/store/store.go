package store

import (
	"errors"
	"fmt"
	"time"

	"botup-realtime/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Store is the persistence collaborator for the routing core. It owns every
// query the presence router, state machine and dispatcher issue, including the
// conditional transition updates that make accept/end race-safe.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(conn *gorm.DB) (*Store, error) {
	if conn == nil {
		return nil, fmt.Errorf("database instance (gorm.DB) cannot be nil")
	}
	return &Store{db: conn}, nil
}

// CreateConversation creates a new conversation in the initial bot handling state.
func (s *Store) CreateConversation(chatbotID uint, visitorID *string) (*models.Conversation, error) {
	if chatbotID == 0 {
		return nil, fmt.Errorf("%w: chatbot ID is required", ErrValidation)
	}

	var bot models.Chatbot
	if err := s.db.First(&bot, chatbotID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chatbot %d: %w", chatbotID, ErrNotFound)
		}
		return nil, fmt.Errorf("error querying chatbot: %w", err)
	}

	conv := models.Conversation{
		ChatbotID:    chatbotID,
		VisitorID:    visitorID,
		HandlingType: models.HandlingBot,
	}
	if err := s.db.Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	log.Info().Uint("conversationID", conv.ID).Uint("chatbotID", chatbotID).Msg("Conversation created")
	return &conv, nil
}

// GetConversation loads a conversation by id without any scope check.
func (s *Store) GetConversation(id uint) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.First(&conv, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return &conv, nil
}

// GetConversationForClient loads a conversation only if it belongs to one of
// the client's chatbots.
func (s *Store) GetConversationForClient(id, clientID uint) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.
		Joins("JOIN chatbots ON chatbots.id = conversations.chatbot_id").
		Where("conversations.id = ? AND chatbots.client_id = ?", id, clientID).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error querying conversation: %w", err)
	}
	return &conv, nil
}

// GetChatbot loads a chatbot configuration by id.
func (s *Store) GetChatbot(id uint) (*models.Chatbot, error) {
	var bot models.Chatbot
	if err := s.db.First(&bot, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chatbot %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error querying chatbot: %w", err)
	}
	return &bot, nil
}

// ChatbotClientID resolves the owning client of a chatbot.
func (s *Store) ChatbotClientID(chatbotID uint) (uint, error) {
	bot, err := s.GetChatbot(chatbotID)
	if err != nil {
		return 0, err
	}
	return bot.ClientID, nil
}

// GetAgent loads an agent by id.
func (s *Store) GetAgent(id uint) (*models.Agent, error) {
	var agent models.Agent
	if err := s.db.First(&agent, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agent %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error querying agent: %w", err)
	}
	return &agent, nil
}

// GetAgentForClient loads an agent only if it belongs to the given client.
func (s *Store) GetAgentForClient(id, clientID uint) (*models.Agent, error) {
	var agent models.Agent
	err := s.db.Where("id = ? AND client_id = ?", id, clientID).First(&agent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("agent %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("error querying agent: %w", err)
	}
	return &agent, nil
}

// appendMessageTx inserts a message and bumps the conversation counters inside
// an existing transaction. Every message insert in the repo goes through here
// so message_count always matches the persisted message rows.
func appendMessageTx(tx *gorm.DB, conversationID uint, sender, content string, agentID *uint) (*models.Message, error) {
	msg := models.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		AgentID:        agentID,
	}
	if err := tx.Create(&msg).Error; err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	err := tx.Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"message_count": gorm.Expr("message_count + 1"),
			"updated_at":    time.Now(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation counters: %w", err)
	}
	return &msg, nil
}

// AppendMessage persists one message and increments the conversation's
// message_count in a single transaction.
func (s *Store) AppendMessage(conversationID uint, sender, content string, agentID *uint) (*models.Message, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", ErrValidation)
	}

	var msg *models.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.First(&conv, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
			}
			return fmt.Errorf("error querying conversation: %w", err)
		}

		var err error
		msg, err = appendMessageTx(tx, conversationID, sender, content, agentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentMessages returns the last limit messages for the conversation in
// timestamp order. This is the history slice handed to the AI responder.
func (s *Store) RecentMessages(conversationID uint, limit int) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	// Fetched newest-first, hand out oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListMessages returns all messages for the conversation in timestamp order.
func (s *Store) ListMessages(conversationID uint) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.
		Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("error querying messages: %w", err)
	}
	return messages, nil
}

// MarkMessagesRead marks all unread visitor messages in the conversation as read.
func (s *Store) MarkMessagesRead(conversationID uint) error {
	now := time.Now()
	err := s.db.Model(&models.Message{}).
		Where("conversation_id = ? AND sender = ? AND is_read = ?", conversationID, models.SenderUser, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": now}).Error
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}

// classifyTransitionFailure reloads the conversation after a conditional
// update matched zero rows and maps the actual row state onto a domain error.
func classifyTransitionFailure(tx *gorm.DB, conversationID uint, forAgent *uint) error {
	var conv models.Conversation
	if err := tx.First(&conv, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
		}
		return fmt.Errorf("error querying conversation: %w", err)
	}
	if conv.Ended() {
		return fmt.Errorf("conversation %d: %w", conversationID, ErrConversationEnded)
	}
	if forAgent != nil {
		// End path: the row exists and is live, so it must belong to someone else.
		return fmt.Errorf("conversation %d: %w", conversationID, ErrNotAssigned)
	}
	if conv.AgentID != nil {
		return fmt.Errorf("conversation %d: %w", conversationID, ErrAlreadyAssigned)
	}
	// Live, unassigned, but not in a state the transition allows.
	return fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
}

// Transfer moves a bot-handled conversation to the transferred queue, or
// assigns it directly to an agent when agentID is given. The update is
// conditional: ended conversations and already agent-owned conversations are
// rejected. The system message is written in the same transaction.
func (s *Store) Transfer(conversationID uint, agentID, departmentID *uint, systemText string) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]interface{}{
			"handling_type": models.HandlingTransferred,
			"agent_id":      nil,
			"department_id": departmentID,
			"transfer_time": now,
			"updated_at":    now,
		}
		if agentID != nil {
			updates["handling_type"] = models.HandlingAgent
			updates["agent_id"] = *agentID
		}

		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND ended_at IS NULL AND handling_type <> ?", conversationID, models.HandlingAgent).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to transfer conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return classifyTransitionFailure(tx, conversationID, nil)
		}

		if _, err := appendMessageTx(tx, conversationID, models.SenderSystem, systemText, agentID); err != nil {
			return err
		}

		var reloaded models.Conversation
		if err := tx.First(&reloaded, conversationID).Error; err != nil {
			return fmt.Errorf("error reloading conversation: %w", err)
		}
		conv = &reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// Accept binds an unassigned transferred conversation to the agent. Exactly
// one concurrent accept can win: the update is conditioned on the conversation
// still being transferred and unassigned.
func (s *Store) Accept(conversationID, agentID uint, systemText string) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND handling_type = ? AND agent_id IS NULL AND ended_at IS NULL",
				conversationID, models.HandlingTransferred).
			Updates(map[string]interface{}{
				"handling_type": models.HandlingAgent,
				"agent_id":      agentID,
				"updated_at":    time.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to accept conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return classifyTransitionFailure(tx, conversationID, nil)
		}

		if _, err := appendMessageTx(tx, conversationID, models.SenderSystem, systemText, &agentID); err != nil {
			return err
		}

		var reloaded models.Conversation
		if err := tx.First(&reloaded, conversationID).Error; err != nil {
			return fmt.Errorf("error reloading conversation: %w", err)
		}
		conv = &reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// End marks a conversation terminal. Only the owning agent may end it, and
// ending twice is rejected.
func (s *Store) End(conversationID, agentID uint, systemText string) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Conversation{}).
			Where("id = ? AND agent_id = ? AND ended_at IS NULL", conversationID, agentID).
			Updates(map[string]interface{}{
				"ended_at":   now,
				"ended_by":   models.SenderAgent,
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to end conversation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return classifyTransitionFailure(tx, conversationID, &agentID)
		}

		if _, err := appendMessageTx(tx, conversationID, models.SenderSystem, systemText, &agentID); err != nil {
			return err
		}

		var reloaded models.Conversation
		if err := tx.First(&reloaded, conversationID).Error; err != nil {
			return fmt.Errorf("error reloading conversation: %w", err)
		}
		conv = &reloaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// UpdateVisitorPresence marks a visitor online or offline and bumps last_seen.
// Creates the visitor row if the widget has not registered it yet.
func (s *Store) UpdateVisitorPresence(visitorID string, online bool) error {
	if visitorID == "" {
		return fmt.Errorf("%w: visitor ID is required", ErrValidation)
	}

	now := time.Now()
	res := s.db.Model(&models.Visitor{}).
		Where("id = ?", visitorID).
		Updates(map[string]interface{}{"is_online": online, "last_seen": now})
	if res.Error != nil {
		return fmt.Errorf("failed to update visitor presence: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		visitor := models.Visitor{ID: visitorID, IsOnline: online, LastSeen: now}
		if err := s.db.Create(&visitor).Error; err != nil {
			return fmt.Errorf("failed to create visitor: %w", err)
		}
	}
	return nil
}

// UpdateAgentStatus sets the agent's availability status and bumps last_active.
func (s *Store) UpdateAgentStatus(agentID uint, status string) error {
	switch status {
	case models.AgentStatusOnline, models.AgentStatusAway, models.AgentStatusOffline:
	default:
		return fmt.Errorf("%w: invalid agent status %q", ErrValidation, status)
	}

	res := s.db.Model(&models.Agent{}).
		Where("id = ?", agentID).
		Updates(map[string]interface{}{"status": status, "last_active": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update agent status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("agent %d: %w", agentID, ErrNotFound)
	}
	return nil
}

// AgentQueues returns the agent's active conversations and the unassigned
// transferred conversations pending for the agent's client.
func (s *Store) AgentQueues(agent *models.Agent) (active, pending []models.Conversation, err error) {
	if agent == nil {
		return nil, nil, fmt.Errorf("%w: agent cannot be nil", ErrValidation)
	}

	err = s.db.
		Where("agent_id = ? AND ended_at IS NULL", agent.ID).
		Order("updated_at DESC").
		Find(&active).Error
	if err != nil {
		return nil, nil, fmt.Errorf("error querying active conversations: %w", err)
	}

	err = s.db.
		Joins("JOIN chatbots ON chatbots.id = conversations.chatbot_id").
		Where("chatbots.client_id = ? AND conversations.handling_type = ? AND conversations.agent_id IS NULL AND conversations.ended_at IS NULL",
			agent.ClientID, models.HandlingTransferred).
		Order("conversations.transfer_time ASC").
		Find(&pending).Error
	if err != nil {
		return nil, nil, fmt.Errorf("error querying pending conversations: %w", err)
	}

	return active, pending, nil
}
