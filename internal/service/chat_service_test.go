package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/dispatcher"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/repository"
)

type notification struct {
	conv    *domain.Conversation
	exclude string
	event   *domain.OutboundFrame
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (f *fakeNotifier) Notify(ctx context.Context, conv *domain.Conversation, excludeUserID string, event *domain.OutboundFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, notification{conv, excludeUserID, event})
	return nil
}

type fakePresence struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (f *fakePresence) OnConnect(ctx context.Context, userID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "connect:"+userID+":"+connectionID)
	return f.err
}

func (f *fakePresence) OnDisconnect(ctx context.Context, userID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "disconnect:"+userID+":"+connectionID)
	return f.err
}

func (f *fakePresence) Status(ctx context.Context, userID string) (*domain.PresenceStatus, error) {
	return &domain.PresenceStatus{UserID: userID}, nil
}

type fakeDirectory map[string]domain.Sender

func (d fakeDirectory) Lookup(ctx context.Context, ids []string) (map[string]domain.Sender, error) {
	out := map[string]domain.Sender{}
	for _, id := range ids {
		if s, ok := d[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

type fakeProducer struct {
	mu     sync.Mutex
	events []*domain.MessageEvent
	err    error
}

func (p *fakeProducer) ProduceMessage(ctx context.Context, e *domain.MessageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *fakeProducer) Close() error { return nil }

type fixture struct {
	svc      ChatService
	repo     *repository.MemoryConversationRepository
	notifier *fakeNotifier
	presence *fakePresence
	producer *fakeProducer
}

func newFixture() *fixture {
	f := &fixture{
		repo:     repository.NewMemoryConversationRepository(),
		notifier: &fakeNotifier{},
		presence: &fakePresence{},
		producer: &fakeProducer{},
	}
	f.svc = NewChatService(Deps{
		Repo:      f.repo,
		Notifier:  f.notifier,
		Presence:  f.presence,
		Producer:  f.producer,
		Directory: fakeDirectory{"alice": {ID: "alice", FirstName: "Alice", LastName: "Liddell"}},
	})
	return f
}

func request(action, userID, data string) *dispatcher.Request {
	return &dispatcher.Request{Action: action, ConnectionID: "conn-" + userID, UserID: userID, Data: json.RawMessage(data)}
}

func TestConnectGreetsAndTracksPresence(t *testing.T) {
	f := newFixture()
	f.presence.err = errors.New("store down")

	out, err := f.svc.Connect(context.Background(), request(domain.ActionConnect, "alice", `{}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionConnected, out.Action)
	assert.Equal(t, domain.ConnectedData{ConnectionID: "conn-alice", UserID: "alice"}, out.Data)

	out, err = f.svc.Disconnect(context.Background(), request(domain.ActionDisconnect, "alice", `{}`))
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Equal(t, []string{"connect:alice:conn-alice", "disconnect:alice:conn-alice"}, f.presence.events)
}

func TestCreateConversationIsOrderIndependent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	out, err := f.svc.CreateConversation(ctx, request(domain.ActionCreateConversation, "alice", `{"uuid":"u1","recipientId":"bob"}`))
	require.NoError(t, err)
	first := out.Data.(domain.ConversationCreatedData)
	assert.Equal(t, "u1", first.UUID)
	assert.Equal(t, "Ok", first.Message)

	out, err = f.svc.CreateConversation(ctx, request(domain.ActionCreateConversation, "bob", `{"uuid":"u2","recipientId":"alice"}`))
	require.NoError(t, err)
	assert.Equal(t, first.ConversationID, out.Data.(domain.ConversationCreatedData).ConversationID)
}

func TestCreateConversationValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateConversation(ctx, request(domain.ActionCreateConversation, "alice", `{"uuid":"u1"}`))
	assert.ErrorIs(t, err, domain.ErrMissingFields)

	_, err = f.svc.CreateConversation(ctx, request(domain.ActionCreateConversation, "alice", `{"uuid":"u1","recipientId":"alice"}`))
	assert.ErrorIs(t, err, domain.ErrMissingFields)

	_, err = f.svc.CreateConversation(ctx, request(domain.ActionCreateConversation, "alice", `{"uuid":"u1","recipientId":7}`))
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestSendMessagePipeline(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, err := f.repo.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	out, err := f.svc.SendMessage(ctx, request(domain.ActionSendMessage, "alice",
		`{"uuid":"m-1","conversationId":"`+conv.ID+`","content":"hello","userId":"mallory"}`))
	require.NoError(t, err)

	assert.Equal(t, domain.ActionMessageSent, out.Action)
	ack := out.Data.(domain.MessageSentData)
	assert.Equal(t, "m-1", ack.UUID)
	assert.Equal(t, conv.ID, ack.ConversationID)
	assert.NotEmpty(t, ack.MessageID)
	assert.NotEmpty(t, ack.CreatedAt)

	require.Len(t, f.notifier.sent, 1)
	n := f.notifier.sent[0]
	assert.Equal(t, "alice", n.exclude)
	assert.Equal(t, domain.ActionNewMessage, n.event.Action)
	push := n.event.Data.(domain.NewMessageData)
	assert.Equal(t, ack.MessageID, push.MessageID)
	assert.Equal(t, "alice", push.SenderID)
	assert.Equal(t, "hello", push.Content)

	require.Len(t, f.producer.events, 1)
	assert.Equal(t, []string{"bob"}, f.producer.events[0].Recipients)

	stored, err := f.repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.LastMessage)
}

func TestSendMessageSurvivesProducerFailure(t *testing.T) {
	f := newFixture()
	f.producer.err = errors.New("broker down")
	ctx := context.Background()
	conv, err := f.repo.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	out, err := f.svc.SendMessage(ctx, request(domain.ActionSendMessage, "alice",
		`{"uuid":"m-1","conversationId":"`+conv.ID+`","content":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionMessageSent, out.Action)
}

func TestSendMessageRejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, err := f.repo.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	tests := []struct {
		name   string
		userID string
		data   string
		want   error
	}{
		{"missing content", "alice", `{"uuid":"x","conversationId":"` + conv.ID + `"}`, domain.ErrMissingFields},
		{"blank content", "alice", `{"uuid":"x","conversationId":"` + conv.ID + `","content":"   "}`, domain.ErrEmptyContent},
		{"unknown conversation", "alice", `{"uuid":"x","conversationId":"nope","content":"hi"}`, domain.ErrConversationNotFound},
		{"outsider", "mallory", `{"uuid":"x","conversationId":"` + conv.ID + `","content":"hi"}`, domain.ErrNotAParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SendMessage(ctx, request(domain.ActionSendMessage, tt.userID, tt.data))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Empty(t, f.notifier.sent)
	msgs, err := f.repo.ListMessages(ctx, conv.ID, repository.MessageQuery{})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestGetMessagesPagesNewestFirstWithSenders(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, err := f.repo.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	for _, content := range []string{"one", "two", "three"} {
		_, err := f.svc.SendMessage(ctx, request(domain.ActionSendMessage, "alice",
			`{"uuid":"u","conversationId":"`+conv.ID+`","content":"`+content+`"}`))
		require.NoError(t, err)
	}

	out, err := f.svc.GetMessages(ctx, request(domain.ActionGetMessages, "bob",
		`{"uuid":"g-1","conversationId":"`+conv.ID+`","limit":2}`))
	require.NoError(t, err)
	page := out.Data.(*domain.MessagesData)
	assert.Equal(t, "g-1", page.UUID)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "three", page.Messages[0].Content)
	assert.Equal(t, "two", page.Messages[1].Content)
	assert.Equal(t, "Alice", page.Messages[0].Sender.FirstName)
	assert.True(t, page.HasMore)
	assert.Equal(t, page.Messages[1].ID, page.NextCursor)

	out, err = f.svc.GetMessages(ctx, request(domain.ActionGetMessages, "bob",
		`{"conversationId":"`+conv.ID+`","limit":2,"before":"`+page.NextCursor+`"}`))
	require.NoError(t, err)
	page = out.Data.(*domain.MessagesData)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "one", page.Messages[0].Content)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextCursor)
}

func TestGetMessagesWithoutLimitReturnsEverything(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, err := f.repo.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		_, _, err := f.repo.AppendMessage(ctx, repository.AppendMessageInput{ConversationID: conv.ID, SenderID: "bob", Content: "x"})
		require.NoError(t, err)
	}

	data, err := f.svc.ListMessages(ctx, "alice", domain.GetMessagesRequest{ConversationID: conv.ID})
	require.NoError(t, err)
	assert.Len(t, data.Messages, 25)
	assert.False(t, data.HasMore)
	assert.Equal(t, domain.Sender{ID: "bob"}, data.Messages[0].Sender)
}

func TestGetMessagesRequiresMembership(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	conv, err := f.repo.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.svc.GetMessages(ctx, request(domain.ActionGetMessages, "mallory", `{"conversationId":"`+conv.ID+`"}`))
	assert.ErrorIs(t, err, domain.ErrNotAParticipant)

	_, err = f.svc.GetMessages(ctx, request(domain.ActionGetMessages, "alice", `{"conversationId":"missing"}`))
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)

	_, err = f.svc.GetMessages(ctx, request(domain.ActionGetMessages, "alice", `{"conversationId":"`+conv.ID+`","limit":500}`))
	assert.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestGetConversationsListsOnlyOwn(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, err := f.repo.FindOrCreate(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.repo.FindOrCreate(ctx, "alice", "carol")
	require.NoError(t, err)
	_, err = f.repo.FindOrCreate(ctx, "bob", "carol")
	require.NoError(t, err)

	out, err := f.svc.GetConversations(ctx, request(domain.ActionGetConversations, "alice", `{"uuid":"c-1"}`))
	require.NoError(t, err)
	data := out.Data.(domain.ConversationsData)
	assert.Equal(t, "c-1", data.UUID)
	assert.Len(t, data.Conversations, 2)
	for _, c := range data.Conversations {
		assert.True(t, c.HasParticipant("alice"))
	}
}

func TestPing(t *testing.T) {
	out, err := newFixture().svc.Ping(context.Background(), request(domain.ActionPing, "alice", `{}`))
	require.NoError(t, err)
	assert.Equal(t, domain.ActionPong, out.Action)
}
