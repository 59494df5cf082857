// Package directory resolves display identities from the account table.
package directory

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

// Directory looks up display identities for a batch of user ids. Unknown
// ids are absent from the result.
type Directory interface {
	Lookup(ctx context.Context, userIDs []string) (map[string]domain.Sender, error)
}

type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) Lookup(ctx context.Context, userIDs []string) (map[string]domain.Sender, error) {
	out := make(map[string]domain.Sender, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var users []domain.UserModel
	err := d.db.WithContext(ctx).
		Select("id", "first_name", "last_name").
		Where("id IN ?", userIDs).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up users: %w", err)
	}

	for _, u := range users {
		out[u.ID] = domain.Sender{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
	}
	return out, nil
}
