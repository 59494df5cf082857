package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/weiawesome/wes-io-chat/internal/config"
)

// Connect opens a Redis client and verifies it answers.
func Connect(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

type RedisParticipantCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisParticipantCache(client *redis.Client, cfg config.CacheConfig) *RedisParticipantCache {
	return &RedisParticipantCache{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
	}
}

func (c *RedisParticipantCache) BuildKeyByID(conversationID string) string {
	return fmt.Sprintf("%s:%s:participants", c.prefix, conversationID)
}

func (c *RedisParticipantCache) GetParticipants(ctx context.Context, conversationID string) ([]string, error) {
	data, err := c.client.Get(ctx, c.BuildKeyByID(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var participants []string
	if err := json.Unmarshal(data, &participants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return participants, nil
}

func (c *RedisParticipantCache) SetParticipants(ctx context.Context, conversationID string, participants []string) error {
	data, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, c.BuildKeyByID(conversationID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}
