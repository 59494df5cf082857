package pubsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// Event is the envelope carried on every channel.
type Event struct {
	Type string `json:"type"`
	// Key groups related events; drivers that partition use it as the
	// partition key.
	Key string `json:"key"`
	// Origin names the publishing instance so it can skip its own events.
	Origin    string          `json:"origin"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent marshals payload into a new event stamped with the current time.
func NewEvent(eventType, key, origin string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Key:       key,
		Origin:    origin,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber delivers the events of a channel. The returned channel is
// closed when ctx ends or the subscription is removed.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, error)
	Unsubscribe(ctx context.Context, channel string) error
}

type PubSub interface {
	Publisher
	Subscriber
	Close() error
}

const subscriberBuffer = 100

// forward decodes one raw event and hands it to out without blocking. It
// returns false once ctx is done.
func forward(ctx context.Context, channel string, raw []byte, out chan<- *Event) bool {
	l := log.L()

	var event Event
	if err := json.Unmarshal(raw, &event); err != nil {
		l.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable pubsub event")
		return true
	}

	select {
	case out <- &event:
	case <-ctx.Done():
		return false
	default:
		l.Warn().Str("channel", channel).Str("type", event.Type).Msg("subscriber lagging, event dropped")
	}
	return true
}
