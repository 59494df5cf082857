package domain

import "encoding/json"

// Actions accepted by the dispatcher. Lifecycle actions are raised by the
// gateway itself and are rejected when they arrive in a client frame.
const (
	ActionConnect            = "$connect"
	ActionDisconnect         = "$disconnect"
	ActionCreateConversation = "createConversation"
	ActionGetConversations   = "getConversations"
	ActionGetMessages        = "getMessages"
	ActionSendMessage        = "sendMessage"
	ActionPing               = "ping"
)

// Outbound-only actions.
const (
	ActionConnected   = "connected"
	ActionMessageSent = "messageSent"
	ActionNewMessage  = "NEW_MESSAGE"
	ActionError       = "error"
	ActionPong        = "pong"
)

// IsLifecycle reports whether action is raised internally on connect or
// disconnect.
func IsLifecycle(action string) bool {
	return action == ActionConnect || action == ActionDisconnect
}

// Frame is a decoded inbound frame.
type Frame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// OutboundFrame mirrors the inbound shape for everything the gateway sends.
type OutboundFrame struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data"`
}

func NewFrame(action string, data interface{}) *OutboundFrame {
	if data == nil {
		data = struct{}{}
	}
	return &OutboundFrame{Action: action, Data: data}
}

// Inbound payloads. Pointer fields distinguish an absent field from an
// empty one.

type CreateConversationRequest struct {
	UUID        string `json:"uuid" validate:"required"`
	RecipientID string `json:"recipientId" validate:"required"`
}

type SendMessageRequest struct {
	UUID           string  `json:"uuid" validate:"required"`
	ConversationID string  `json:"conversationId" validate:"required"`
	Content        *string `json:"content" validate:"required"`
}

type GetMessagesRequest struct {
	UUID           string `json:"uuid,omitempty"`
	ConversationID string `json:"conversationId" validate:"required"`
	Limit          int    `json:"limit,omitempty" validate:"omitempty,min=1,max=100"`
	Before         string `json:"before,omitempty"`
}

type GetConversationsRequest struct {
	UUID string `json:"uuid,omitempty"`
}

// Outbound payloads.

type ConnectedData struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type ConversationCreatedData struct {
	UUID           string `json:"uuid"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message"`
}

type MessageSentData struct {
	UUID           string `json:"uuid"`
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	CreatedAt      string `json:"createdAt"`
}

type NewMessageData struct {
	MessageID      string `json:"messageId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	CreatedAt      string `json:"createdAt"`
}

type ConversationsData struct {
	UUID          string          `json:"uuid,omitempty"`
	Conversations []*Conversation `json:"conversations"`
}

type MessagesData struct {
	UUID           string         `json:"uuid,omitempty"`
	ConversationID string         `json:"conversationId"`
	Messages       []*MessageView `json:"messages"`
	NextCursor     string         `json:"nextCursor,omitempty"`
	HasMore        bool           `json:"hasMore"`
}
