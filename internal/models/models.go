package models

import (
	"time"
)

// Handling types describe which party currently owns response duty for a conversation.
const (
	HandlingBot         = "bot"
	HandlingTransferred = "transferred"
	HandlingAgent       = "agent"
)

// Message senders.
const (
	SenderUser   = "user"
	SenderBot    = "bot"
	SenderAgent  = "agent"
	SenderSystem = "system"
)

// Agent availability statuses.
const (
	AgentStatusOnline  = "online"
	AgentStatusAway    = "away"
	AgentStatusOffline = "offline"
)

// Client is a tenant account that owns chatbots and agents.
type Client struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CompanyName string    `gorm:"comment:Display name of the tenant" json:"companyName"`
	Email       string    `gorm:"uniqueIndex" json:"email"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Chatbot holds the bot configuration used when building AI context.
type Chatbot struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClientID  uint      `gorm:"index;comment:Owning tenant" json:"clientId"`
	Name      string    `json:"name"`
	Prompt    string    `gorm:"type:text;comment:System prompt prepended to AI context" json:"prompt"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Agent is a human operator belonging to a client.
type Agent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ClientID   uint      `gorm:"index" json:"clientId"`
	Name       string    `json:"name"`
	Email      string    `gorm:"uniqueIndex" json:"email"`
	Role       string    `gorm:"default:agent" json:"role"`
	Status     string    `gorm:"default:offline;comment:online, away or offline" json:"status"`
	LastActive time.Time `json:"lastActive"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Visitor is an end user of the embeddable widget. Presence fields are a
// best-effort mirror of the ephemeral socket presence.
type Visitor struct {
	ID         string    `gorm:"primaryKey;comment:Opaque visitor identifier issued by the widget" json:"id"`
	ChatbotID  uint      `gorm:"index" json:"chatbotId"`
	IsOnline   bool      `gorm:"default:false" json:"isOnline"`
	LastSeen   time.Time `json:"lastSeen"`
	CurrentURL string    `json:"currentUrl"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// Conversation is a single visitor-to-bot-or-agent chat session.
//
// Invariants maintained by the store layer:
//   - HandlingType == "agent" exactly when AgentID is set.
//   - EndedAt set means the conversation is terminal; transitions are rejected,
//     messages may still be appended for audit.
type Conversation struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	ChatbotID    uint       `gorm:"index" json:"chatbotId"`
	VisitorID    *string    `gorm:"index" json:"visitorId"`
	AgentID      *uint      `gorm:"index" json:"agentId"`
	DepartmentID *uint      `json:"departmentId"`
	HandlingType string     `gorm:"default:bot;index;comment:bot, transferred or agent" json:"handlingType"`
	MessageCount int        `gorm:"default:0" json:"messageCount"`
	TransferTime *time.Time `json:"transferTime"`
	EndedAt      *time.Time `json:"endedAt"`
	EndedBy      *string    `json:"endedBy"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Ended reports whether the conversation reached its terminal state.
func (c *Conversation) Ended() bool {
	return c.EndedAt != nil
}

// Message is one chat message within a conversation. Append-only from the
// routing core's perspective; ordered by Timestamp within a conversation.
type Message struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ConversationID uint       `gorm:"index" json:"conversationId"`
	Sender         string     `gorm:"comment:user, bot, agent or system" json:"sender"`
	Content        string     `gorm:"type:text" json:"content"`
	AgentID        *uint      `gorm:"index;comment:Set when sender is agent, or system with attribution" json:"agentId"`
	IsRead         bool       `gorm:"default:false" json:"isRead"`
	ReadAt         *time.Time `json:"readAt"`
	Timestamp      time.Time  `gorm:"autoCreateTime;index" json:"timestamp"`
}

// All returns every model that needs migration, in dependency order.
func All() []interface{} {
	return []interface{}{
		&Client{},
		&Chatbot{},
		&Agent{},
		&Visitor{},
		&Conversation{},
		&Message{},
	}
}
