package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type redisSubscription struct {
	sub    *redis.PubSub
	cancel context.CancelFunc
}

// RedisPubSub broadcasts events over Redis PUBLISH/SUBSCRIBE. Events
// published while an instance is not subscribed are lost to it.
type RedisPubSub struct {
	client     *redis.Client
	ownsClient bool

	mu            sync.Mutex
	subscriptions map[string]*redisSubscription
}

// NewRedisPubSub dials its own client from cfg and closes it on Close.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ps := NewRedisPubSubWithClient(client)
	ps.ownsClient = true
	return ps, nil
}

// NewRedisPubSubWithClient shares client, which Close leaves open.
func NewRedisPubSubWithClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[string]*redisSubscription),
	}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so nothing
// published afterwards is missed. A second Subscribe to the same channel
// replaces the first.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	sub := r.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if prev, ok := r.subscriptions[channel]; ok {
		prev.cancel()
		prev.sub.Close()
	}
	r.subscriptions[channel] = &redisSubscription{sub: sub, cancel: cancel}
	r.mu.Unlock()

	out := make(chan *Event, subscriberBuffer)
	go func() {
		defer close(out)
		msgs := sub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-msgs:
				if !ok || !forward(subCtx, channel, []byte(msg.Payload), out) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	s, ok := r.subscriptions[channel]
	delete(r.subscriptions, channel)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	s.cancel()
	return s.sub.Close()
}

func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subscriptions
	r.subscriptions = make(map[string]*redisSubscription)
	r.mu.Unlock()

	for _, s := range subs {
		s.cancel()
		s.sub.Close()
	}
	if r.ownsClient {
		return r.client.Close()
	}
	return nil
}
