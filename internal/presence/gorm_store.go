package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/database"
)

// GormStore keeps presence in the connection_ids, last_seen and last_login
// columns of the shared users table. It never creates user rows.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) AddConnection(ctx context.Context, userID, connectionID string, at time.Time) error {
	return s.mutate(ctx, userID, func(u *domain.UserModel) map[string]interface{} {
		conns := u.ConnectionIDs
		if !conns.Contains(connectionID) {
			conns = append(conns, connectionID)
		}
		return map[string]interface{}{
			"connection_ids": conns,
			"last_login":     at,
		}
	})
}

func (s *GormStore) RemoveConnection(ctx context.Context, userID, connectionID string, at time.Time) error {
	return s.mutate(ctx, userID, func(u *domain.UserModel) map[string]interface{} {
		conns := make(database.StringArray, 0, len(u.ConnectionIDs))
		for _, id := range u.ConnectionIDs {
			if id != connectionID {
				conns = append(conns, id)
			}
		}
		return map[string]interface{}{
			"connection_ids": conns,
			"last_seen":      at,
		}
	})
}

// mutate applies a read-modify-write to one user's presence columns with the
// row locked.
func (s *GormStore) mutate(ctx context.Context, userID string, fn func(*domain.UserModel) map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.UserModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "connection_ids").
			First(&user, "id = ?", userID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to load user presence: %w", err)
		}

		if err := tx.Model(&domain.UserModel{}).Where("id = ?", userID).Updates(fn(&user)).Error; err != nil {
			return fmt.Errorf("failed to update user presence: %w", err)
		}
		return nil
	})
}

func (s *GormStore) Status(ctx context.Context, userID string) (*domain.PresenceStatus, error) {
	var user domain.UserModel
	err := s.db.WithContext(ctx).
		Select("id", "connection_ids", "last_seen", "last_login").
		First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user presence: %w", err)
	}

	return &domain.PresenceStatus{
		UserID:      user.ID,
		Online:      len(user.ConnectionIDs) > 0,
		Connections: len(user.ConnectionIDs),
		LastSeen:    user.LastSeen,
		LastLogin:   user.LastLogin,
	}, nil
}
