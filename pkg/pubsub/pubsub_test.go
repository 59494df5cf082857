package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelToTopic(t *testing.T) {
	assert.Equal(t, "chat-gateway-delivery", channelToTopic(ChannelDelivery))
}

func TestGroupForIsPerInstance(t *testing.T) {
	assert.Equal(t, "chat-gateway", groupFor("", ""))
	assert.Equal(t, "chat-gateway-i-1", groupFor("", "i/1"))
	assert.NotEqual(t, groupFor("g", "a"), groupFor("g", "b"))
}

func TestForward(t *testing.T) {
	ctx := context.Background()
	out := make(chan *Event, 1)

	evt, err := NewEvent(EventDeliver, "conv-1", "instance-a", DeliverPayload{Recipients: []string{"bob"}})
	require.NoError(t, err)
	raw, err := json.Marshal(evt)
	require.NoError(t, err)

	assert.True(t, forward(ctx, ChannelDelivery, []byte("garbage"), out))
	assert.Empty(t, out)

	assert.True(t, forward(ctx, ChannelDelivery, raw, out))
	got := <-out
	assert.Equal(t, "instance-a", got.Origin)
	var p DeliverPayload
	require.NoError(t, got.UnmarshalPayload(&p))
	assert.Equal(t, []string{"bob"}, p.Recipients)

	// A full buffer drops rather than blocks.
	out <- got
	assert.True(t, forward(ctx, ChannelDelivery, raw, out))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.False(t, forward(cancelled, ChannelDelivery, raw, make(chan *Event)))
}
