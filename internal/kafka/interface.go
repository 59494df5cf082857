package kafka

import (
	"context"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// MessageProducer publishes persisted messages for downstream consumers
// (search indexing, notifications, analytics).
type MessageProducer interface {
	ProduceMessage(ctx context.Context, event *domain.MessageEvent) error
	Close() error
}

// NoopProducer discards events. It is used when Kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) ProduceMessage(context.Context, *domain.MessageEvent) error { return nil }
func (NoopProducer) Close() error                                               { return nil }
