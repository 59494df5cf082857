package domain

import (
	"sort"
	"strings"
	"time"
)

// TimeFormat is used for every timestamp on the wire.
const TimeFormat = time.RFC3339Nano

type Conversation struct {
	ID              string     `json:"id"`
	Participants    []string   `json:"participants"`
	LastMessage     string     `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Others returns every participant except userID.
func (c *Conversation) Others(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// Participants returns the sorted, de-duplicated participant set for a pair.
func Participants(userA, userB string) []string {
	p := []string{userA, userB}
	sort.Strings(p)
	if p[0] == p[1] {
		return p[:1]
	}
	return p
}

// PairKey identifies the conversation between two users independently of
// argument order.
func PairKey(userA, userB string) string {
	return strings.Join(Participants(userA, userB), ":")
}

// MaxContentBytes bounds a message body. It stays well under the WebSocket
// read limit so oversized content is rejected in-band.
const MaxContentBytes = 16 * 1024

// ValidateContent rejects blank or oversized message content.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxContentBytes {
		return ErrContentTooLong
	}
	return nil
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	UUID           string    `json:"uuid,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Sender is the display identity of a message author.
type Sender struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}

// MessageView is a message enriched for display.
type MessageView struct {
	*Message
	Sender Sender `json:"sender"`
}

// PresenceStatus is the presence state of one user.
type PresenceStatus struct {
	UserID      string     `json:"userId"`
	Online      bool       `json:"online"`
	Connections int        `json:"connections"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// MessageEvent is emitted downstream for every persisted message.
type MessageEvent struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Recipients     []string  `json:"recipients"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}
