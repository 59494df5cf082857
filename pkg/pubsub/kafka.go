package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// channelToTopic maps a channel name onto a legal Kafka topic name, e.g.
// "chat:gateway:delivery" becomes "chat-gateway-delivery".
func channelToTopic(channel string) string {
	return strings.ReplaceAll(channel, ":", "-")
}

var groupIDRegexp = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// groupFor returns the consumer group of one instance. Each instance reads
// with its own group, so every instance sees every event.
func groupFor(prefix, instanceID string) string {
	if prefix == "" {
		prefix = "chat-gateway"
	}
	if instanceID == "" {
		return prefix
	}
	return groupIDRegexp.ReplaceAllString(prefix+"-"+instanceID, "-")
}

// kafkaSubscription is owned by its consume loop, which alone polls and
// closes the consumer.
type kafkaSubscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *kafkaSubscription) stop() {
	s.cancel()
	<-s.done
}

// KafkaPubSub broadcasts events over Kafka topics, one topic per channel.
// Unlike the Redis driver it survives short subscriber outages, bounded by
// topic retention.
type KafkaPubSub struct {
	producer   *kafka.Producer
	config     KafkaConfig
	instanceID string
	reports    chan struct{}

	mu            sync.Mutex
	subscriptions map[string]*kafkaSubscription
}

func NewKafkaPubSub(cfg KafkaConfig, instanceID string) (*KafkaPubSub, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"client.id":         groupFor("chat-gateway", instanceID),
		"acks":              "1",
		"linger.ms":         5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		producer:      p,
		config:        cfg,
		instanceID:    instanceID,
		reports:       make(chan struct{}),
		subscriptions: make(map[string]*kafkaSubscription),
	}
	go k.watchDeliveries()
	return k, nil
}

func (k *KafkaPubSub) watchDeliveries() {
	defer close(k.reports)
	l := log.L()
	for e := range k.producer.Events() {
		m, ok := e.(*kafka.Message)
		if !ok || m.TopicPartition.Error == nil {
			continue
		}
		topic := ""
		if m.TopicPartition.Topic != nil {
			topic = *m.TopicPartition.Topic
		}
		l.Error().Err(m.TopicPartition.Error).Str("topic", topic).Msg("pubsub event not delivered")
	}
}

// ensureTopic creates topic if it is missing, reusing the producer's
// connection.
func (k *KafkaPubSub) ensureTopic(ctx context.Context, topic string) error {
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("failed to create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.config.Partitions
	if partitions <= 0 {
		partitions = 4
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return fmt.Errorf("failed to create topic %s: %w", topic, err)
	}
	for _, r := range results {
		if code := r.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return fmt.Errorf("failed to create topic %s: %v", r.Topic, r.Error)
		}
	}
	return nil
}

func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := channelToTopic(channel)
	err = k.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.Key),
		Value:          data,
		Headers:        []kafka.Header{{Key: "type", Value: []byte(event.Type)}},
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts reading channel from the latest offset. A second
// Subscribe to the same channel replaces the first.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	topic := channelToTopic(channel)
	if err := k.ensureTopic(ctx, topic); err != nil {
		l := log.L()
		l.Warn().Err(err).Str("topic", topic).Msg("could not ensure topic, subscribing anyway")
	}

	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.config.Brokers,
		"group.id":           groupFor(k.config.GroupID, k.instanceID),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	if err := c.Subscribe(topic, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	s := &kafkaSubscription{cancel: cancel, done: make(chan struct{})}

	k.mu.Lock()
	prev := k.subscriptions[channel]
	k.subscriptions[channel] = s
	k.mu.Unlock()
	if prev != nil {
		prev.stop()
	}

	out := make(chan *Event, subscriberBuffer)
	go k.consume(subCtx, channel, c, out, s.done)
	return out, nil
}

func (k *KafkaPubSub) consume(ctx context.Context, channel string, c *kafka.Consumer, out chan<- *Event, done chan<- struct{}) {
	defer close(done)
	defer close(out)
	defer c.Close()

	l := log.L()
	for ctx.Err() == nil {
		switch e := c.Poll(500).(type) {
		case *kafka.Message:
			if !forward(ctx, channel, e.Value, out) {
				return
			}
		case kafka.Error:
			l.Error().Err(e).Bool("fatal", e.IsFatal()).Str("channel", channel).Msg("kafka consumer error")
			if e.IsFatal() {
				return
			}
		}
	}
}

func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	s, ok := k.subscriptions[channel]
	delete(k.subscriptions, channel)
	k.mu.Unlock()

	if ok {
		s.stop()
	}
	return nil
}

// Close stops every subscription and flushes pending publications.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	subs := k.subscriptions
	k.subscriptions = make(map[string]*kafkaSubscription)
	k.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}

	remaining := k.producer.Flush(5000)
	k.producer.Close()
	<-k.reports
	if remaining > 0 {
		return fmt.Errorf("%d pubsub events were not flushed", remaining)
	}
	return nil
}
