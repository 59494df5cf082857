package domain

import (
	"time"

	"github.com/weiawesome/wes-io-chat/pkg/database"
)

// ConversationModel is the GORM row for a conversation.
type ConversationModel struct {
	ID              string               `gorm:"primaryKey;type:varchar(36)"`
	PairKey         string               `gorm:"type:varchar(255);uniqueIndex;not null"`
	Participants    database.StringArray `gorm:"not null"`
	LastMessage     string               `gorm:"type:text"`
	LastMessageTime *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ConversationModel) TableName() string {
	return "conversations"
}

func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:              m.ID,
		Participants:    append([]string(nil), m.Participants...),
		LastMessage:     m.LastMessage,
		LastMessageTime: m.LastMessageTime,
		CreatedAt:       m.CreatedAt,
	}
}

// ConversationMemberModel indexes conversations by participant.
type ConversationMemberModel struct {
	ConversationID string `gorm:"primaryKey;type:varchar(36)"`
	UserID         string `gorm:"primaryKey;type:varchar(64);index"`
}

func (ConversationMemberModel) TableName() string {
	return "conversation_members"
}

type MessageModel struct {
	ID             string    `gorm:"primaryKey;type:varchar(26)"`
	ConversationID string    `gorm:"type:varchar(36);not null;index:idx_messages_conversation_created,priority:1"`
	SenderID       string    `gorm:"type:varchar(64);not null"`
	Content        string    `gorm:"type:text;not null"`
	UUID           string    `gorm:"column:uuid;type:varchar(128)"`
	CreatedAt      time.Time `gorm:"not null;index:idx_messages_conversation_created,priority:2"`
}

func (MessageModel) TableName() string {
	return "messages"
}

func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		UUID:           m.UUID,
		CreatedAt:      m.CreatedAt,
	}
}

func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		UUID:           msg.UUID,
		CreatedAt:      msg.CreatedAt,
	}
}

// UserModel maps the columns of the account table that the gateway reads
// or maintains. The account service owns the rest of the record.
type UserModel struct {
	ID            string               `gorm:"primaryKey;type:varchar(64)"`
	FirstName     string               `gorm:"column:first_name"`
	LastName      string               `gorm:"column:last_name"`
	ConnectionIDs database.StringArray `gorm:"column:connection_ids"`
	LastSeen      *time.Time           `gorm:"column:last_seen"`
	LastLogin     *time.Time           `gorm:"column:last_login"`
}

func (UserModel) TableName() string {
	return "users"
}
