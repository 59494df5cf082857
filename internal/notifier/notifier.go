// Package notifier fans events out to the live connections of conversation
// participants.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

// Registry is the view of the connection registry the notifier needs.
type Registry interface {
	ConnectionsFor(userID string) []string
	Send(connectionID string, payload []byte) error
}

// Notifier delivers to connections on this instance and, when a publisher is
// configured, relays the same delivery to every other instance.
type Notifier struct {
	registry   Registry
	publisher  pubsub.Publisher
	instanceID string
}

func New(registry Registry) *Notifier {
	return &Notifier{registry: registry}
}

// WithPublisher enables cross-instance relay.
func (n *Notifier) WithPublisher(p pubsub.Publisher, instanceID string) *Notifier {
	n.publisher = p
	n.instanceID = instanceID
	return n
}

// Notify sends event to every participant of conv except excludeUserID.
// Participants without live connections are skipped; delivery is best
// effort and an error is returned only if event cannot be encoded.
func (n *Notifier) Notify(ctx context.Context, conv *domain.Conversation, excludeUserID string, event *domain.OutboundFrame) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	recipients := conv.Others(excludeUserID)
	delivered := n.deliver(ctx, recipients, payload)

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldConversationID, conv.ID).
		Int("recipients", len(recipients)).
		Int("delivered", delivered).
		Msg("event fanned out")

	if n.publisher != nil && len(recipients) > 0 {
		n.relay(ctx, conv.ID, recipients, payload)
	}
	return nil
}

// deliver pushes payload to the local connections of each recipient and
// returns how many connections accepted it.
func (n *Notifier) deliver(ctx context.Context, recipients []string, payload []byte) int {
	l := log.Ctx(ctx)
	delivered := 0
	for _, userID := range recipients {
		for _, connID := range n.registry.ConnectionsFor(userID) {
			if err := n.registry.Send(connID, payload); err != nil {
				l.Debug().Err(err).Str(log.FieldConnectionID, connID).Msg("delivery skipped")
				continue
			}
			delivered++
		}
	}
	return delivered
}

func (n *Notifier) relay(ctx context.Context, key string, recipients []string, payload []byte) {
	l := log.Ctx(ctx)
	evt, err := pubsub.NewEvent(pubsub.EventDeliver, key, n.instanceID, pubsub.DeliverPayload{
		Recipients: recipients,
		Frame:      payload,
	})
	if err != nil {
		l.Error().Err(err).Msg("failed to build relay event")
		return
	}
	if err := n.publisher.Publish(ctx, pubsub.ChannelDelivery, evt); err != nil {
		l.Warn().Err(err).Str(log.FieldConversationID, key).Msg("failed to relay event to other instances")
	}
}

// Run delivers events relayed by other instances until ctx is done or the
// subscription ends.
func (n *Notifier) Run(ctx context.Context, sub pubsub.Subscriber) error {
	events, err := sub.Subscribe(ctx, pubsub.ChannelDelivery)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", pubsub.ChannelDelivery, err)
	}

	l := log.L()
	l.Info().Str("channel", pubsub.ChannelDelivery).Msg("relay subscriber started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			n.handleRelayed(ctx, evt)
		}
	}
}

func (n *Notifier) handleRelayed(ctx context.Context, evt *pubsub.Event) {
	if evt.Type != pubsub.EventDeliver || evt.Origin == n.instanceID {
		return
	}
	var p pubsub.DeliverPayload
	if err := evt.UnmarshalPayload(&p); err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("dropping undecodable relay event")
		return
	}
	n.deliver(ctx, p.Recipients, p.Frame)
}
