package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

type fakeRegistry struct {
	mu    sync.Mutex
	conns map[string][]string
	sent  map[string][][]byte
	fail  map[string]bool
}

func newFakeRegistry(conns map[string][]string) *fakeRegistry {
	return &fakeRegistry{conns: conns, sent: map[string][][]byte{}, fail: map[string]bool{}}
}

func (f *fakeRegistry) ConnectionsFor(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.conns[userID]...)
}

func (f *fakeRegistry) Send(connectionID string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[connectionID] {
		return errors.New("gone")
	}
	f.sent[connectionID] = append(f.sent[connectionID], payload)
	return nil
}

func (f *fakeRegistry) sentTo(connectionID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[connectionID]
}

type fakeBus struct {
	mu        sync.Mutex
	published []*pubsub.Event
	events    chan *pubsub.Event
}

func (b *fakeBus) Publish(ctx context.Context, channel string, event *pubsub.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, event)
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan *pubsub.Event, error) {
	return b.events, nil
}

func (b *fakeBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func conversation() *domain.Conversation {
	return &domain.Conversation{ID: "conv-1", Participants: []string{"alice", "bob", "carol"}}
}

func newMessageFrame() *domain.OutboundFrame {
	return domain.NewFrame(domain.ActionNewMessage, domain.NewMessageData{MessageID: "m1", Content: "hi"})
}

func TestNotifySkipsSenderAndOfflineParticipants(t *testing.T) {
	reg := newFakeRegistry(map[string][]string{
		"alice": {"a1"},
		"bob":   {"b1", "b2"},
		// carol is offline
	})
	n := New(reg)

	err := n.Notify(context.Background(), conversation(), "alice", newMessageFrame())
	require.NoError(t, err)

	assert.Empty(t, reg.sentTo("a1"), "sender must not be notified")
	require.Len(t, reg.sentTo("b1"), 1)
	require.Len(t, reg.sentTo("b2"), 1)
	assert.JSONEq(t, `{"action":"NEW_MESSAGE","data":{"messageId":"m1","content":"hi","conversationId":"","senderId":"","createdAt":""}}`,
		string(reg.sentTo("b1")[0]))
}

func TestNotifyToleratesFailedConnections(t *testing.T) {
	reg := newFakeRegistry(map[string][]string{"bob": {"b1", "b2"}})
	reg.fail["b1"] = true

	err := New(reg).Notify(context.Background(), conversation(), "alice", newMessageFrame())
	require.NoError(t, err)
	assert.Len(t, reg.sentTo("b2"), 1)
}

func TestNotifyWithEveryoneOffline(t *testing.T) {
	reg := newFakeRegistry(map[string][]string{})
	assert.NoError(t, New(reg).Notify(context.Background(), conversation(), "alice", newMessageFrame()))
}

func TestNotifyRelaysToOtherInstances(t *testing.T) {
	reg := newFakeRegistry(map[string][]string{})
	bus := &fakeBus{}
	n := New(reg).WithPublisher(bus, "instance-a")

	require.NoError(t, n.Notify(context.Background(), conversation(), "alice", newMessageFrame()))

	require.Len(t, bus.published, 1)
	evt := bus.published[0]
	assert.Equal(t, pubsub.EventDeliver, evt.Type)
	assert.Equal(t, "instance-a", evt.Origin)
	assert.Equal(t, "conv-1", evt.Key)

	var p pubsub.DeliverPayload
	require.NoError(t, evt.UnmarshalPayload(&p))
	assert.ElementsMatch(t, []string{"bob", "carol"}, p.Recipients)
}

func TestRunDeliversRelayedEventsFromOtherInstances(t *testing.T) {
	reg := newFakeRegistry(map[string][]string{"bob": {"b1"}})
	bus := &fakeBus{events: make(chan *pubsub.Event, 2)}
	n := New(reg).WithPublisher(bus, "instance-b")

	own, err := pubsub.NewEvent(pubsub.EventDeliver, "conv-1", "instance-b",
		pubsub.DeliverPayload{Recipients: []string{"bob"}, Frame: []byte(`{"action":"own"}`)})
	require.NoError(t, err)
	foreign, err := pubsub.NewEvent(pubsub.EventDeliver, "conv-1", "instance-a",
		pubsub.DeliverPayload{Recipients: []string{"bob"}, Frame: []byte(`{"action":"NEW_MESSAGE"}`)})
	require.NoError(t, err)
	bus.events <- own
	bus.events <- foreign

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx, bus)

	require.Eventually(t, func() bool { return len(reg.sentTo("b1")) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"action":"NEW_MESSAGE"}`, string(reg.sentTo("b1")[0]))
}
