package presence

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/domain"
)

var ErrUserNotFound = errors.New("user not found")

// Store persists the presence fields of a user record.
type Store interface {
	// AddConnection adds connectionID to the user's active set and stamps
	// the login time.
	AddConnection(ctx context.Context, userID, connectionID string, at time.Time) error
	// RemoveConnection drops connectionID from the active set and stamps the
	// last-seen time, even when the set becomes empty.
	RemoveConnection(ctx context.Context, userID, connectionID string, at time.Time) error
	Status(ctx context.Context, userID string) (*domain.PresenceStatus, error)
}
