package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// GormConversationRepository implements ConversationRepository using GORM.
// Pair uniqueness is enforced by a unique index on pair_key; singleflight
// collapses concurrent creations of the same pair inside one process.
type GormConversationRepository struct {
	db    *gorm.DB
	group singleflight.Group
	now   func() time.Time
}

// NewGormConversationRepository creates a new GORM-based conversation repository.
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db, now: time.Now}
}

// Models lists the tables this repository needs migrated.
func Models() []interface{} {
	return []interface{}{
		&domain.ConversationModel{},
		&domain.ConversationMemberModel{},
		&domain.MessageModel{},
	}
}

func (r *GormConversationRepository) FindOrCreate(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	if !validPair(userA, userB) {
		return nil, ErrInvalidParticipants
	}

	// The shared call outlives any one caller; each caller still stops
	// waiting when its own ctx ends.
	key := domain.PairKey(userA, userB)
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.findOrCreate(shared, userA, userB, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneConversation(res.Val.(*domain.Conversation)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *GormConversationRepository) findOrCreate(ctx context.Context, userA, userB, key string) (*domain.Conversation, error) {
	conv, err := r.findByPairKey(ctx, key)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return nil, err
	}

	participants := domain.Participants(userA, userB)
	model := &domain.ConversationModel{
		ID:           domain.NewConversationID(),
		PairKey:      key,
		Participants: participants,
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		members := make([]domain.ConversationMemberModel, 0, len(participants))
		for _, p := range participants {
			members = append(members, domain.ConversationMemberModel{ConversationID: model.ID, UserID: p})
		}
		return tx.Create(&members).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			// Another instance created the pair first.
			return r.findByPairKey(ctx, key)
		}
		return nil, domain.PersistenceError("create conversation", err)
	}

	return model.ToDomain(), nil
}

func (r *GormConversationRepository) findByPairKey(ctx context.Context, key string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	result := r.db.WithContext(ctx).First(&model, "pair_key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, domain.PersistenceError("find conversation", result.Error)
	}
	return model.ToDomain(), nil
}

func (r *GormConversationRepository) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, domain.PersistenceError("get conversation", result.Error)
	}
	return model.ToDomain(), nil
}

func (r *GormConversationRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	var models []domain.ConversationModel
	result := r.db.WithContext(ctx).
		Joins("JOIN conversation_members ON conversation_members.conversation_id = conversations.id").
		Where("conversation_members.user_id = ?", userID).
		Order("conversations.updated_at DESC").
		Order("conversations.id").
		Find(&models)
	if result.Error != nil {
		return nil, domain.PersistenceError("list conversations", result.Error)
	}

	out := make([]*domain.Conversation, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out, nil
}

// AppendMessage locks the conversation row for the whole step, so message
// timestamps never go backwards within a conversation and the summary
// always reflects the newest message.
func (r *GormConversationRepository) AppendMessage(ctx context.Context, in AppendMessageInput) (*domain.Message, *domain.Conversation, error) {
	var (
		msg  *domain.Message
		conv *domain.Conversation
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cm domain.ConversationModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cm, "id = ?", in.ConversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		if !cm.Participants.Contains(in.SenderID) {
			return ErrNotAParticipant
		}
		if err := domain.ValidateContent(in.Content); err != nil {
			return err
		}

		createdAt := r.now().UTC()
		if cm.LastMessageTime != nil && cm.LastMessageTime.After(createdAt) {
			createdAt = cm.LastMessageTime.UTC()
		}

		mm := domain.MessageToModel(&domain.Message{
			ID:             domain.NewMessageID(createdAt),
			ConversationID: in.ConversationID,
			SenderID:       in.SenderID,
			Content:        in.Content,
			UUID:           in.UUID,
			CreatedAt:      createdAt,
		})
		if err := tx.Create(mm).Error; err != nil {
			return err
		}

		err := tx.Model(&domain.ConversationModel{}).
			Where("id = ? AND (last_message_time IS NULL OR last_message_time <= ?)", cm.ID, createdAt).
			Updates(map[string]interface{}{
				"last_message":      in.Content,
				"last_message_time": createdAt,
				"updated_at":        createdAt,
			}).Error
		if err != nil {
			return err
		}

		cm.LastMessage = in.Content
		cm.LastMessageTime = &createdAt
		msg = mm.ToDomain()
		conv = cm.ToDomain()
		return nil
	})
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, nil, err
		}
		return nil, nil, domain.PersistenceError("append message", err)
	}

	return msg, conv, nil
}

func (r *GormConversationRepository) ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]*domain.Message, error) {
	db := r.db.WithContext(ctx)
	query := db.Where("conversation_id = ?", conversationID)

	if q.Before != "" {
		var cursor domain.MessageModel
		if err := db.First(&cursor, "id = ? AND conversation_id = ?", q.Before, conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrInvalidCursor
			}
			return nil, domain.PersistenceError("load cursor", err)
		}
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	query = query.Order("created_at DESC").Order("id DESC")
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var models []domain.MessageModel
	if err := query.Find(&models).Error; err != nil {
		return nil, domain.PersistenceError("list messages", err)
	}

	out := make([]*domain.Message, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToDomain())
	}
	return out, nil
}

// isDuplicateKey recognises unique-constraint violations across drivers.
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || // PostgreSQL
		strings.Contains(errStr, "UNIQUE constraint") || // SQLite
		strings.Contains(errStr, "Duplicate entry") // MySQL
}
