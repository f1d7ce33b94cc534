package model

import (
	"time"

	"gorm.io/gorm"
)

// Conversation is a private chat between two users (typically a student
// and a course instructor)
type Conversation struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	UserAID   uint           `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"user_a_id"`
	UserBID   uint           `gorm:"not null;uniqueIndex:idx_conversation_pair" json:"user_b_id"`

	// Relationships
	UserA    User          `gorm:"foreignKey:UserAID" json:"user_a,omitempty"`
	UserB    User          `gorm:"foreignKey:UserBID" json:"user_b,omitempty"`
	Messages []ChatMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// OtherParty returns the participant that is not userID
func (c *Conversation) OtherParty(userID uint) uint {
	if c.UserAID == userID {
		return c.UserBID
	}
	return c.UserAID
}

// HasParticipant reports whether userID belongs to this conversation
func (c *Conversation) HasParticipant(userID uint) bool {
	return c.UserAID == userID || c.UserBID == userID
}

// ChatMessage is a single message within a conversation
type ChatMessage struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	CreatedAt      time.Time      `json:"created_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
	ConversationID uint           `gorm:"not null;index" json:"conversation_id"`
	SenderID       uint           `gorm:"not null;index" json:"sender_id"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	Seen           bool           `gorm:"default:false" json:"seen"`

	// Relationships
	Sender User `gorm:"foreignKey:SenderID" json:"-"`
}
