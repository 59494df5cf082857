package repository

import (
	"context"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

var (
	ErrConversationNotFound = domain.ErrConversationNotFound
	ErrNotAParticipant      = domain.ErrNotAParticipant
	ErrEmptyContent         = domain.ErrEmptyContent
	ErrContentTooLong       = domain.ErrContentTooLong
	ErrInvalidParticipants  = domain.NewError(domain.CodeMissingFields, "a conversation needs two distinct participants")
	ErrInvalidCursor        = domain.NewError(domain.CodeMalformedPayload, "unknown message cursor")
)

// AppendMessageInput describes a message to persist. The store assigns the
// id and creation time.
type AppendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	UUID           string
}

// MessageQuery pages through a conversation newest first. A zero Limit
// returns everything older than Before, or the whole history when Before is
// empty.
type MessageQuery struct {
	Limit  int
	Before string
}

// ConversationRepository is the system of record for conversations and
// messages.
type ConversationRepository interface {
	// FindOrCreate returns the conversation between two users, creating it
	// on first use. Argument order does not matter and concurrent callers
	// for the same pair observe the same conversation.
	FindOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error)
	GetByID(ctx context.Context, id string) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Conversation, error)
	// AppendMessage persists a message and advances the conversation summary
	// as one step, returning the message and the updated conversation.
	AppendMessage(ctx context.Context, in AppendMessageInput) (*domain.Message, *domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]*domain.Message, error)
}

func cloneConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	if c.LastMessageTime != nil {
		t := *c.LastMessageTime
		cp.LastMessageTime = &t
	}
	return &cp
}

func validPair(userA, userB string) bool {
	return userA != "" && userB != "" && userA != userB
}
