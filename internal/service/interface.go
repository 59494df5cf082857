package service

import (
	"context"

	"github.com/weiawesome/wes-io-chat/internal/dispatcher"
	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// ChatService implements the gateway actions. The frame-facing methods share
// the dispatcher.Handler signature; the query methods back the HTTP API.
type ChatService interface {
	Connect(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error)
	Disconnect(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error)
	CreateConversation(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error)
	GetConversations(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error)
	GetMessages(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error)
	SendMessage(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error)
	Ping(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error)

	ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error)
	ListMessages(ctx context.Context, userID string, q domain.GetMessagesRequest) (*domain.MessagesData, error)
	UserStatus(ctx context.Context, userID string) (*domain.PresenceStatus, error)
}

// Notifier fans an event out to the other participants of a conversation.
type Notifier interface {
	Notify(ctx context.Context, conv *domain.Conversation, excludeUserID string, event *domain.OutboundFrame) error
}

// Presence records connection lifecycle events.
type Presence interface {
	OnConnect(ctx context.Context, userID, connectionID string) error
	OnDisconnect(ctx context.Context, userID, connectionID string) error
	Status(ctx context.Context, userID string) (*domain.PresenceStatus, error)
}

// Routes binds svc to the dispatcher's action table.
func Routes(svc ChatService) dispatcher.Routes {
	return dispatcher.Routes{
		Connect:            svc.Connect,
		Disconnect:         svc.Disconnect,
		CreateConversation: svc.CreateConversation,
		GetConversations:   svc.GetConversations,
		GetMessages:        svc.GetMessages,
		SendMessage:        svc.SendMessage,
		Ping:               svc.Ping,
	}
}
