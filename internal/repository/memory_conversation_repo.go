package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// MemoryConversationRepository keeps conversations in process memory. One
// lock serialises every mutation, which gives the same pair-uniqueness and
// summary guarantees as the database driver.
type MemoryConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	byPair        map[string]string
	messages      map[string][]*domain.Message // ascending by creation
	now           func() time.Time
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		conversations: make(map[string]*domain.Conversation),
		byPair:        make(map[string]string),
		messages:      make(map[string][]*domain.Message),
		now:           time.Now,
	}
}

// WithClock replaces the time source.
func (r *MemoryConversationRepository) WithClock(now func() time.Time) *MemoryConversationRepository {
	r.now = now
	return r
}

func (r *MemoryConversationRepository) FindOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	if !validPair(userA, userB) {
		return nil, ErrInvalidParticipants
	}

	key := domain.PairKey(userA, userB)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPair[key]; ok {
		return cloneConversation(r.conversations[id]), nil
	}

	conv := &domain.Conversation{
		ID:           domain.NewConversationID(),
		Participants: domain.Participants(userA, userB),
		CreatedAt:    r.now().UTC(),
	}
	r.conversations[conv.ID] = conv
	r.byPair[key] = conv.ID
	return cloneConversation(conv), nil
}

func (r *MemoryConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *MemoryConversationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Conversation, 0)
	for _, conv := range r.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, cloneConversation(conv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryConversationRepository) AppendMessage(ctx context.Context, in AppendMessageInput) (*domain.Message, *domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[in.ConversationID]
	if !ok {
		return nil, nil, ErrConversationNotFound
	}
	if !conv.HasParticipant(in.SenderID) {
		return nil, nil, ErrNotAParticipant
	}
	if err := domain.ValidateContent(in.Content); err != nil {
		return nil, nil, err
	}

	createdAt := r.now().UTC()
	if conv.LastMessageTime != nil && conv.LastMessageTime.After(createdAt) {
		createdAt = *conv.LastMessageTime
	}

	msg := &domain.Message{
		ID:             domain.NewMessageID(createdAt),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		UUID:           in.UUID,
		CreatedAt:      createdAt,
	}
	r.messages[conv.ID] = append(r.messages[conv.ID], msg)

	conv.LastMessage = msg.Content
	conv.LastMessageTime = &createdAt

	cp := *msg
	return &cp, cloneConversation(conv), nil
}

func (r *MemoryConversationRepository) ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msgs := r.messages[conversationID]
	end := len(msgs)
	if q.Before != "" {
		end = -1
		for i, m := range msgs {
			if m.ID == q.Before {
				end = i
				break
			}
		}
		if end < 0 {
			return nil, ErrInvalidCursor
		}
	}

	out := make([]*domain.Message, 0, end)
	for i := end - 1; i >= 0; i-- {
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
		cp := *msgs[i]
		out = append(out, &cp)
	}
	return out, nil
}
