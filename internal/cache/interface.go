package cache

import (
	"context"
	"errors"
)

var ErrCacheMiss = errors.New("cache miss")

// ParticipantCache caches the participant set of a conversation. Participant
// sets never change after creation, so entries need no invalidation.
type ParticipantCache interface {
	GetParticipants(ctx context.Context, conversationID string) ([]string, error)
	SetParticipants(ctx context.Context, conversationID string, participants []string) error
}

// NoopCache always misses.
type NoopCache struct{}

func (NoopCache) GetParticipants(context.Context, string) ([]string, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) SetParticipants(context.Context, string, []string) error {
	return nil
}
