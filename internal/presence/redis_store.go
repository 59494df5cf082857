package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// RedisStore keeps presence in Redis for deployments where the gateway may
// not write to the account database.
//
//	{prefix}:user:{user_id}:connections   SET<connection_id>
//	{prefix}:user:{user_id}               HASH last_seen, last_login (unix nanos)
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "chat:presence"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) connectionsKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:connections", s.prefix, userID)
}

func (s *RedisStore) userKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userID)
}

func (s *RedisStore) AddConnection(ctx context.Context, userID, connectionID string, at time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.connectionsKey(userID), connectionID)
	pipe.HSet(ctx, s.userKey(userID), "last_login", at.UnixNano())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add connection: %w", err)
	}
	return nil
}

func (s *RedisStore) RemoveConnection(ctx context.Context, userID, connectionID string, at time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.connectionsKey(userID), connectionID)
	pipe.HSet(ctx, s.userKey(userID), "last_seen", at.UnixNano())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove connection: %w", err)
	}
	return nil
}

func (s *RedisStore) Status(ctx context.Context, userID string) (*domain.PresenceStatus, error) {
	pipe := s.client.Pipeline()
	countCmd := pipe.SCard(ctx, s.connectionsKey(userID))
	fieldsCmd := pipe.HGetAll(ctx, s.userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load presence: %w", err)
	}

	fields := fieldsCmd.Val()
	count := int(countCmd.Val())
	if count == 0 && len(fields) == 0 {
		return nil, ErrUserNotFound
	}

	return &domain.PresenceStatus{
		UserID:      userID,
		Online:      count > 0,
		Connections: count,
		LastSeen:    parseNanos(fields["last_seen"]),
		LastLogin:   parseNanos(fields["last_login"]),
	}, nil
}

func parseNanos(s string) *time.Time {
	if s == "" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
