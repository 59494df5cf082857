package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

const (
	eventTypeHeader  = "event_type"
	eventMessageSent = "message_sent"

	flushTimeout = 5 * time.Second
)

// ConfluentProducer writes message events to one topic. Production is
// asynchronous; delivery failures are logged by the report loop.
type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	reports  chan struct{}
}

func NewConfluentProducer(cfg config.KafkaConfig) (*ConfluentProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    cfg.Topic,
		reports:  make(chan struct{}),
	}
	go cp.watchDeliveries()

	if err := cp.ensureTopic(cfg.Partitions); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", cfg.Topic).Msg("could not ensure topic, producing anyway")
	}
	return cp, nil
}

func (cp *ConfluentProducer) ensureTopic(partitions int) error {
	admin, err := kafka.NewAdminClientFromProducer(cp.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	if partitions <= 0 {
		partitions = 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             cp.topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

func (cp *ConfluentProducer) watchDeliveries() {
	defer close(cp.reports)
	l := log.L()
	for e := range cp.producer.Events() {
		switch ev := e.(type) {
		case *kafka.Message:
			if ev.TopicPartition.Error != nil {
				l.Error().Err(ev.TopicPartition.Error).
					Str(log.FieldConversationID, string(ev.Key)).
					Msg("message event not delivered")
			}
		case kafka.Error:
			l.Warn().Err(ev).Msg("kafka producer error")
		}
	}
}

// ProduceMessage keys events by conversation so one conversation's messages
// stay ordered within a partition. A full local queue is retried once after
// giving librdkafka a moment to drain.
func (cp *ConfluentProducer) ProduceMessage(ctx context.Context, event *domain.MessageEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := cp.record(event)
	if err != nil {
		return err
	}

	err = cp.producer.Produce(msg, nil)
	var kerr kafka.Error
	if errors.As(err, &kerr) && kerr.Code() == kafka.ErrQueueFull {
		cp.producer.Flush(100)
		err = cp.producer.Produce(msg, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to produce message event: %w", err)
	}
	return nil
}

func (cp *ConfluentProducer) record(event *domain.MessageEvent) (*kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &cp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.ConversationID),
		Value:          value,
		Timestamp:      event.CreatedAt,
		Headers:        []kafka.Header{{Key: eventTypeHeader, Value: []byte(eventMessageSent)}},
	}, nil
}

// Close flushes queued events and reports how many were lost.
func (cp *ConfluentProducer) Close() error {
	remaining := cp.producer.Flush(int(flushTimeout / time.Millisecond))
	cp.producer.Close()
	<-cp.reports
	if remaining > 0 {
		return fmt.Errorf("%d message events were not flushed", remaining)
	}
	return nil
}
