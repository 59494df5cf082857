package service

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/audit"
	"github.com/weiawesome/wes-io-chat/internal/cache"
	"github.com/weiawesome/wes-io-chat/internal/codec"
	"github.com/weiawesome/wes-io-chat/internal/directory"
	"github.com/weiawesome/wes-io-chat/internal/dispatcher"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/kafka"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Deps are the collaborators of the chat service. Cache, Directory and
// Producer are optional.
type Deps struct {
	Repo      repository.ConversationRepository
	Cache     cache.ParticipantCache
	Notifier  Notifier
	Presence  Presence
	Directory directory.Directory
	Producer  kafka.MessageProducer
}

type chatService struct {
	repo      repository.ConversationRepository
	cache     cache.ParticipantCache
	notifier  Notifier
	presence  Presence
	directory directory.Directory
	producer  kafka.MessageProducer
}

func NewChatService(deps Deps) ChatService {
	s := &chatService{
		repo:      deps.Repo,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		presence:  deps.Presence,
		directory: deps.Directory,
		producer:  deps.Producer,
	}
	if s.cache == nil {
		s.cache = cache.NoopCache{}
	}
	if s.producer == nil {
		s.producer = kafka.NoopProducer{}
	}
	return s
}

func (s *chatService) Connect(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error) {
	// The tracker logs its own failures; presence never blocks a connection.
	_ = s.presence.OnConnect(ctx, req.UserID, req.ConnectionID)

	audit.Log(ctx, audit.ActionConnect, req.UserID, req.ConnectionID, "connection opened")
	return domain.NewFrame(domain.ActionConnected, domain.ConnectedData{
		ConnectionID: req.ConnectionID,
		UserID:       req.UserID,
	}), nil
}

func (s *chatService) Disconnect(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error) {
	_ = s.presence.OnDisconnect(ctx, req.UserID, req.ConnectionID)

	audit.Log(ctx, audit.ActionDisconnect, req.UserID, req.ConnectionID, "connection closed")
	return nil, nil
}

func (s *chatService) CreateConversation(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error) {
	var in domain.CreateConversationRequest
	if err := codec.DecodeData(req.Data, &in); err != nil {
		return nil, err
	}
	if in.RecipientID == req.UserID {
		return nil, domain.NewError(domain.CodeMissingFields, "recipientId must name another user")
	}

	conv, err := s.repo.FindOrCreate(ctx, req.UserID, in.RecipientID)
	if err != nil {
		return nil, err
	}
	s.rememberParticipants(ctx, conv)

	audit.Log(ctx, audit.ActionCreateConversation, req.UserID, conv.ID, "conversation opened")
	return domain.NewFrame(domain.ActionCreateConversation, domain.ConversationCreatedData{
		UUID:           in.UUID,
		ConversationID: conv.ID,
		Message:        "Ok",
	}), nil
}

func (s *chatService) GetConversations(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error) {
	var in domain.GetConversationsRequest
	if err := codec.DecodeData(req.Data, &in); err != nil {
		return nil, err
	}

	convs, err := s.ListConversations(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return domain.NewFrame(domain.ActionGetConversations, domain.ConversationsData{
		UUID:          in.UUID,
		Conversations: convs,
	}), nil
}

func (s *chatService) GetMessages(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error) {
	var in domain.GetMessagesRequest
	if err := codec.DecodeData(req.Data, &in); err != nil {
		return nil, err
	}

	data, err := s.ListMessages(ctx, req.UserID, in)
	if err != nil {
		return nil, err
	}
	data.UUID = in.UUID
	return domain.NewFrame(domain.ActionGetMessages, data), nil
}

// SendMessage persists the message, pushes it to the other participants and
// acknowledges the sender, in that order. Delivery and event publishing are
// best effort once the message is stored.
func (s *chatService) SendMessage(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error) {
	var in domain.SendMessageRequest
	if err := codec.DecodeData(req.Data, &in); err != nil {
		return nil, err
	}

	msg, conv, err := s.repo.AppendMessage(ctx, repository.AppendMessageInput{
		ConversationID: in.ConversationID,
		SenderID:       req.UserID,
		Content:        *in.Content,
		UUID:           in.UUID,
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotAParticipant) {
			audit.Log(ctx, audit.ActionAccessDenied, req.UserID, in.ConversationID, "send to foreign conversation")
		}
		return nil, err
	}

	ctx = log.With(ctx,
		log.FieldConversationID, conv.ID,
		log.FieldMessageID, msg.ID,
	)
	createdAt := msg.CreatedAt.UTC().Format(domain.TimeFormat)

	event := domain.NewFrame(domain.ActionNewMessage, domain.NewMessageData{
		MessageID:      msg.ID,
		Content:        msg.Content,
		ConversationID: conv.ID,
		SenderID:       msg.SenderID,
		CreatedAt:      createdAt,
	})
	if err := s.notifier.Notify(ctx, conv, req.UserID, event); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to notify participants")
	}

	if err := s.producer.ProduceMessage(ctx, &domain.MessageEvent{
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		SenderID:       msg.SenderID,
		Recipients:     conv.Others(req.UserID),
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	}); err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Msg("failed to publish message event")
	}

	audit.Log(ctx, audit.ActionSendMessage, req.UserID, conv.ID, "message sent")
	return domain.NewFrame(domain.ActionMessageSent, domain.MessageSentData{
		UUID:           in.UUID,
		MessageID:      msg.ID,
		ConversationID: conv.ID,
		CreatedAt:      createdAt,
	}), nil
}

func (s *chatService) Ping(ctx context.Context, req *dispatcher.Request) (*domain.OutboundFrame, error) {
	return domain.NewFrame(domain.ActionPong, nil), nil
}

func (s *chatService) ListConversations(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListMessages returns a newest-first page of a conversation userID takes
// part in. A zero Limit returns the whole history.
func (s *chatService) ListMessages(ctx context.Context, userID string, q domain.GetMessagesRequest) (*domain.MessagesData, error) {
	participants, err := s.participants(ctx, q.ConversationID)
	if err != nil {
		return nil, err
	}
	if !contains(participants, userID) {
		audit.Log(ctx, audit.ActionAccessDenied, userID, q.ConversationID, "read of foreign conversation")
		return nil, domain.ErrNotAParticipant
	}

	query := repository.MessageQuery{Before: q.Before}
	if q.Limit > 0 {
		// One extra row tells whether another page exists.
		query.Limit = q.Limit + 1
	}
	msgs, err := s.repo.ListMessages(ctx, q.ConversationID, query)
	if err != nil {
		return nil, err
	}

	data := &domain.MessagesData{ConversationID: q.ConversationID}
	if q.Limit > 0 && len(msgs) > q.Limit {
		msgs = msgs[:q.Limit]
		data.HasMore = true
		data.NextCursor = msgs[len(msgs)-1].ID
	}
	data.Messages = s.enrich(ctx, msgs)
	return data, nil
}

func (s *chatService) UserStatus(ctx context.Context, userID string) (*domain.PresenceStatus, error) {
	return s.presence.Status(ctx, userID)
}

// participants reads the participant set through the cache.
func (s *chatService) participants(ctx context.Context, conversationID string) ([]string, error) {
	cached, err := s.cache.GetParticipants(ctx, conversationID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldConversationID, conversationID).Msg("participant cache unavailable")
	}

	conv, err := s.repo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	s.rememberParticipants(ctx, conv)
	return conv.Participants, nil
}

func (s *chatService) rememberParticipants(ctx context.Context, conv *domain.Conversation) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.cache.SetParticipants(ctx, conv.ID, conv.Participants); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldConversationID, conv.ID).Msg("failed to cache participants")
	}
}

// enrich attaches sender display names. Lookup failures leave senders with
// their id only.
func (s *chatService) enrich(ctx context.Context, msgs []*domain.Message) []*domain.MessageView {
	views := make([]*domain.MessageView, 0, len(msgs))

	var senders map[string]domain.Sender
	if s.directory != nil && len(msgs) > 0 {
		ids := make([]string, 0, len(msgs))
		seen := make(map[string]struct{}, len(msgs))
		for _, m := range msgs {
			if _, ok := seen[m.SenderID]; !ok {
				seen[m.SenderID] = struct{}{}
				ids = append(ids, m.SenderID)
			}
		}
		var err error
		senders, err = s.directory.Lookup(ctx, ids)
		if err != nil {
			l := log.Ctx(ctx)
			l.Warn().Err(err).Msg("sender lookup failed")
		}
	}

	for _, m := range msgs {
		sender, ok := senders[m.SenderID]
		if !ok {
			sender = domain.Sender{ID: m.SenderID}
		}
		views = append(views, &domain.MessageView{Message: m, Sender: sender})
	}
	return views
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
